package models

import (
	"time"

	id "noticeops/pkg/domain"
)

// Source records which process wrote a ledger entry.
type Source string

const (
	SourcePayment   Source = "PAYMENT"
	SourceReduction Source = "REDUCTION"
	SourceLooping   Source = "LOOPING"
	SourceManual    Source = "MANUAL"
)

// LedgerEntry is one historical suspension event for a notice.
// Lifting a suspension sets DateOfRevival on the existing entry; it never appends.
type LedgerEntry struct {
	NoticeNo         id.NoticeNo      `json:"notice_no"`
	SequenceNo       int              `json:"sr_no"`
	Kind             SuspensionKind   `json:"suspension_kind"`
	Reason           SuspensionReason `json:"reason"`
	DateOfSuspension time.Time        `json:"date_of_suspension"`
	DueDateOfRevival *time.Time       `json:"due_date_of_revival,omitempty"`
	DateOfRevival    *time.Time       `json:"date_of_revival,omitempty"`
	Source           Source           `json:"source"`
	Actor            string           `json:"actor"`
	Remark           string           `json:"remark,omitempty"`
}

// IsActive reports whether the suspension has not been lifted.
func (e *LedgerEntry) IsActive() bool {
	return e.DateOfRevival == nil
}

// Revive lifts the suspension at the given time.
func (e *LedgerEntry) Revive(at time.Time) {
	e.DateOfRevival = &at
}

// Clone returns a deep copy.
func (e *LedgerEntry) Clone() *LedgerEntry {
	c := *e
	if e.DueDateOfRevival != nil {
		t := *e.DueDateOfRevival
		c.DueDateOfRevival = &t
	}
	if e.DateOfRevival != nil {
		t := *e.DateOfRevival
		c.DateOfRevival = &t
	}
	return &c
}

package models

import (
	"time"

	"github.com/shopspring/decimal"

	id "noticeops/pkg/domain"
	dErrors "noticeops/pkg/domain-errors"
)

// SyncStatus marks whether the mirror store reflects the latest primary change.
type SyncStatus string

const (
	SyncStatusSynced  SyncStatus = "SYNCED"
	SyncStatusPending SyncStatus = "PENDING"
)

// Notice is the aggregate root for an offence notice.
//
// Invariants:
//   - NoticeNo is immutable
//   - Kind None ⇔ Reason empty ⇔ DueDateOfRevival nil, except Temporary/HST which
//     keeps a due date that only schedules re-verification
//   - AmountPayable and AmountPaid are never negative
//   - Version increases on every primary mutation; SyncStatus is Pending until the
//     mirror acknowledges that version
type Notice struct {
	NoticeNo            id.NoticeNo      `json:"notice_no"`
	PartyID             id.PartyID       `json:"party_id"`
	RuleCode            string           `json:"rule_code"`
	CompositionAmount   decimal.Decimal  `json:"composition_amount"`
	AmountPayable       decimal.Decimal  `json:"amount_payable"`
	AmountPaid          decimal.Decimal  `json:"amount_paid"`
	SuspensionKind      SuspensionKind   `json:"suspension_kind"`
	SuspensionReason    SuspensionReason `json:"suspension_reason,omitempty"`
	SuspensionDate      *time.Time       `json:"suspension_date,omitempty"`
	DueDateOfRevival    *time.Time       `json:"due_date_of_revival,omitempty"`
	LastProcessingStage Stage            `json:"last_processing_stage"`
	NextProcessingStage Stage            `json:"next_processing_stage"`
	PaymentAllowed      bool             `json:"payment_allowed"`
	SyncStatus          SyncStatus       `json:"sync_status"`
	Version             int64            `json:"version"`
	LastSequenceNo      int              `json:"last_sequence_no"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// NewNotice constructs an unsuspended notice with the full composition amount payable.
func NewNotice(noticeNo id.NoticeNo, partyID id.PartyID, ruleCode string, composition decimal.Decimal, stage Stage, now time.Time) (*Notice, error) {
	if noticeNo.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "notice number cannot be empty")
	}
	if composition.IsNegative() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "composition amount cannot be negative")
	}
	return &Notice{
		NoticeNo:            noticeNo,
		PartyID:             partyID,
		RuleCode:            ruleCode,
		CompositionAmount:   composition,
		AmountPayable:       composition,
		AmountPaid:          decimal.Zero,
		SuspensionKind:      SuspensionNone,
		LastProcessingStage: stage,
		PaymentAllowed:      true,
		SyncStatus:          SyncStatusPending,
		Version:             1,
		UpdatedAt:           now,
	}, nil
}

// IsSuspended reports whether any suspension is in force.
func (n *Notice) IsSuspended() bool {
	return n.SuspensionKind != SuspensionNone
}

// IsFullyPaid reports whether the latest suspension records a full payment.
func (n *Notice) IsFullyPaid() bool {
	return n.SuspensionReason == ReasonFullPayment
}

// IsUnderReduction reports whether a reduction is currently applied.
func (n *Notice) IsUnderReduction() bool {
	return n.SuspensionKind == SuspensionTemporary && n.SuspensionReason == ReasonReduction
}

// IsLooping reports whether the notice is held by the unreachable-party suspension.
func (n *Notice) IsLooping() bool {
	return n.SuspensionKind == SuspensionTemporary && n.SuspensionReason == ReasonUnreachableParty
}

// ApplySuspension sets the denormalized suspension view.
func (n *Notice) ApplySuspension(reason SuspensionReason, at time.Time, due *time.Time) {
	n.SuspensionKind = reason.Kind()
	n.SuspensionReason = reason
	n.SuspensionDate = &at
	n.DueDateOfRevival = due
}

// ClearSuspension returns the notice to the unsuspended state.
func (n *Notice) ClearSuspension() {
	n.SuspensionKind = SuspensionNone
	n.SuspensionReason = ReasonNone
	n.SuspensionDate = nil
	n.DueDateOfRevival = nil
}

// Touch bumps the version and raises the resync marker. Every primary mutation calls it.
func (n *Notice) Touch(now time.Time) {
	n.Version++
	n.SyncStatus = SyncStatusPending
	n.UpdatedAt = now
}

// Projection returns the reduced view held by the mirror store.
func (n *Notice) Projection() MirrorNotice {
	return MirrorNotice{
		NoticeNo:         n.NoticeNo,
		SuspensionKind:   n.SuspensionKind,
		SuspensionReason: n.SuspensionReason,
		SuspensionDate:   n.SuspensionDate,
		AmountPayable:    n.AmountPayable,
		Version:          n.Version,
	}
}

// Clone returns a deep copy.
func (n *Notice) Clone() *Notice {
	c := *n
	if n.SuspensionDate != nil {
		t := *n.SuspensionDate
		c.SuspensionDate = &t
	}
	if n.DueDateOfRevival != nil {
		t := *n.DueDateOfRevival
		c.DueDateOfRevival = &t
	}
	return &c
}

// MirrorNotice is the projection of a Notice replicated to the mirror store.
type MirrorNotice struct {
	NoticeNo         id.NoticeNo      `json:"notice_no"`
	SuspensionKind   SuspensionKind   `json:"suspension_kind"`
	SuspensionReason SuspensionReason `json:"suspension_reason,omitempty"`
	SuspensionDate   *time.Time       `json:"suspension_date,omitempty"`
	AmountPayable    decimal.Decimal  `json:"amount_payable"`
	Version          int64            `json:"version"`
}

// RegisterNoticeCommand creates a notice handed over from the offence intake.
type RegisterNoticeCommand struct {
	NoticeNo          id.NoticeNo
	PartyID           id.PartyID
	RuleCode          string
	CompositionAmount decimal.Decimal
	Stage             Stage
}

// Validate checks the intake fields.
func (c *RegisterNoticeCommand) Validate() error {
	if c.NoticeNo.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "notice number is required")
	}
	if c.PartyID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "party id is required")
	}
	if !c.CompositionAmount.IsPositive() {
		return dErrors.New(dErrors.CodeValidation, "composition amount must be positive")
	}
	return nil
}

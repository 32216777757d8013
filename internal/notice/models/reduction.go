package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	id "noticeops/pkg/domain"
	dErrors "noticeops/pkg/domain-errors"
)

// ReductionRecord is one granted reduction. It shares the sequence counter with
// ledger entries of the same notice.
type ReductionRecord struct {
	NoticeNo        id.NoticeNo     `json:"notice_no"`
	SequenceNo      int             `json:"sr_no"`
	DateOfReduction time.Time       `json:"date_of_reduction"`
	OriginalAmount  decimal.Decimal `json:"original_amount"`
	AmountReduced   decimal.Decimal `json:"amount_reduced"`
	AmountPayable   decimal.Decimal `json:"amount_payable"`
	Reason          string          `json:"reason"`
	ExpiryDate      time.Time       `json:"expiry_date"`
	Actor           string          `json:"actor"`
}

// ReductionCommand is a request to reduce the amount payable on a notice.
type ReductionCommand struct {
	NoticeNo      id.NoticeNo
	AmountReduced decimal.Decimal
	NewPayable    decimal.Decimal
	Reason        string
	EffectiveDate time.Time
	ExpiryDate    time.Time
	Actor         string
}

// Normalize trims free text fields.
func (c *ReductionCommand) Normalize() {
	c.Reason = strings.TrimSpace(c.Reason)
	c.Actor = strings.TrimSpace(c.Actor)
}

// Validate checks presence of required fields. Amount and date consistency is
// checked by the eligibility engine in its fixed order.
func (c *ReductionCommand) Validate() error {
	if c.NoticeNo.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "notice number is required")
	}
	if c.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reduction reason is required")
	}
	if c.EffectiveDate.IsZero() || c.ExpiryDate.IsZero() {
		return dErrors.WithReason(dErrors.CodeValidation, ReasonCodeInvalidDates, "date of reduction and expiry date are required")
	}
	return nil
}

// ReductionStatus is the outcome of a reduction request that did not fail.
type ReductionStatus string

const (
	ReductionApplied        ReductionStatus = "APPLIED"
	ReductionAlreadyApplied ReductionStatus = "ALREADY_APPLIED"
)

// ReductionResult describes a successful (or no-op) reduction.
type ReductionResult struct {
	NoticeNo      id.NoticeNo     `json:"notice_no"`
	Status        ReductionStatus `json:"status"`
	SequenceNo    int             `json:"sr_no,omitempty"`
	AmountPayable decimal.Decimal `json:"amount_payable"`
	SyncPending   bool            `json:"sync_pending"`
}

// Machine-readable reasons attached to reduction rejections.
const (
	ReasonCodeInvalidReductionAmount = "InvalidReductionAmount"
	ReasonCodeInconsistentAmounts    = "InconsistentAmounts"
	ReasonCodeNegativeAmount         = "NegativeAmount"
	ReasonCodeInvalidDates           = "InvalidDates"
	ReasonCodeNoticeAlreadyPaid      = "NoticeAlreadyPaid"
	ReasonCodeNotEligible            = "NotEligible"
	ReasonCodeMissingRuleCode        = "MissingRuleCode"
	ReasonCodeMissingStage           = "MissingProcessingStage"
	ReasonCodeNoticeNotFound         = "NoticeNotFound"
)

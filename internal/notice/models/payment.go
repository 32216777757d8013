package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	id "noticeops/pkg/domain"
	dErrors "noticeops/pkg/domain-errors"
)

// PaymentOutcome classifies an incoming payment against the notice balance.
type PaymentOutcome string

const (
	OutcomeDoublePayment  PaymentOutcome = "DOUBLE_PAYMENT"
	OutcomeFullPayment    PaymentOutcome = "FULL_PAYMENT"
	OutcomePartialPayment PaymentOutcome = "PARTIAL_PAYMENT"
	OutcomeOverPayment    PaymentOutcome = "OVER_PAYMENT"
)

// IsValid checks if the outcome is one of the supported values.
func (o PaymentOutcome) IsValid() bool {
	switch o {
	case OutcomeDoublePayment, OutcomeFullPayment, OutcomePartialPayment, OutcomeOverPayment:
		return true
	}
	return false
}

// PaymentMethod is the channel a payment arrived through.
type PaymentMethod string

const (
	MethodCash     PaymentMethod = "CASH"
	MethodCard     PaymentMethod = "CARD"
	MethodEService PaymentMethod = "ESERVICE"
	MethodAXS      PaymentMethod = "AXS"
	MethodGIRO     PaymentMethod = "GIRO"
)

// IsValid checks if the method is one of the supported values.
func (m PaymentMethod) IsValid() bool {
	switch m {
	case MethodCash, MethodCard, MethodEService, MethodAXS, MethodGIRO:
		return true
	}
	return false
}

// PaymentCommand is an incoming payment event.
type PaymentCommand struct {
	NoticeNo  id.NoticeNo
	Amount    decimal.Decimal
	Method    PaymentMethod
	Reference string
	PaidAt    time.Time
}

// Normalize trims the reference.
func (c *PaymentCommand) Normalize() {
	c.Reference = strings.TrimSpace(c.Reference)
}

// Validate checks the event before anything is persisted.
func (c *PaymentCommand) Validate() error {
	if c.NoticeNo.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "notice number is required")
	}
	if !c.Amount.IsPositive() {
		return dErrors.New(dErrors.CodeValidation, "payment amount must be positive")
	}
	if !c.Method.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unsupported payment method")
	}
	if c.Reference == "" {
		return dErrors.New(dErrors.CodeValidation, "payment reference is required")
	}
	if c.PaidAt.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "payment timestamp is required")
	}
	return nil
}

// PaymentRecord is the durable audit row of a payment event. Outcome is nil until
// the payment has been classified and applied.
type PaymentRecord struct {
	ID        id.PaymentID    `json:"id"`
	NoticeNo  id.NoticeNo     `json:"notice_no"`
	Amount    decimal.Decimal `json:"amount"`
	Method    PaymentMethod   `json:"method"`
	Reference string          `json:"reference"`
	PaidAt    time.Time       `json:"paid_at"`
	Outcome   *PaymentOutcome `json:"outcome,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// RefundReason records why money is returned.
type RefundReason string

const (
	RefundDoublePayment RefundReason = "DOUBLE_PAYMENT"
	RefundOverPayment   RefundReason = "OVER_PAYMENT"
)

// RefundRecord is a refund owed to the payer.
type RefundRecord struct {
	ID               id.RefundID     `json:"id"`
	NoticeNo         id.NoticeNo     `json:"notice_no"`
	PaymentReference string          `json:"payment_reference"`
	Amount           decimal.Decimal `json:"amount"`
	Reason           RefundReason    `json:"reason"`
	CreatedAt        time.Time       `json:"created_at"`
}

// PaymentResult is returned to the caller of ApplyPayment.
type PaymentResult struct {
	NoticeNo          id.NoticeNo     `json:"notice_no"`
	Outcome           PaymentOutcome  `json:"outcome"`
	NewTotalPaid      decimal.Decimal `json:"new_total_paid"`
	OverpaymentAmount decimal.Decimal `json:"overpayment_amount"`
	RefundAmount      decimal.Decimal `json:"refund_amount"`
	Replayed          bool            `json:"replayed"`
	SyncPending       bool            `json:"sync_pending"`
}

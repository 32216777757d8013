package handler

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"noticeops/internal/notice/models"
	id "noticeops/pkg/domain"
	dErrors "noticeops/pkg/domain-errors"
)

// RegisterNoticeRequest is the body of POST /notices.
type RegisterNoticeRequest struct {
	NoticeNo          string          `json:"notice_no"`
	PartyID           string          `json:"party_id"`
	RuleCode          string          `json:"rule_code"`
	CompositionAmount decimal.Decimal `json:"composition_amount"`
	Stage             string          `json:"last_processing_stage"`

	parsedNoticeNo id.NoticeNo
	parsedPartyID  id.PartyID
}

func (r *RegisterNoticeRequest) Validate() error {
	noticeNo, err := id.ParseNoticeNo(r.NoticeNo)
	if err != nil {
		return err
	}
	partyID, err := id.ParsePartyID(r.PartyID)
	if err != nil {
		return err
	}
	r.parsedNoticeNo = noticeNo
	r.parsedPartyID = partyID
	r.RuleCode = strings.TrimSpace(r.RuleCode)
	r.Stage = strings.ToUpper(strings.TrimSpace(r.Stage))
	return nil
}

func (r *RegisterNoticeRequest) Command() models.RegisterNoticeCommand {
	return models.RegisterNoticeCommand{
		NoticeNo:          r.parsedNoticeNo,
		PartyID:           r.parsedPartyID,
		RuleCode:          r.RuleCode,
		CompositionAmount: r.CompositionAmount,
		Stage:             models.Stage(r.Stage),
	}
}

// PaymentRequest is the body of POST /notices/{noticeNo}/payments.
type PaymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	Reference string          `json:"reference"`
	PaidAt    *time.Time      `json:"paid_at,omitempty"`
}

func (r *PaymentRequest) Validate() error {
	r.Method = strings.ToUpper(strings.TrimSpace(r.Method))
	if !models.PaymentMethod(r.Method).IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unsupported payment method")
	}
	return nil
}

// Command builds the payment command. A missing paid_at defaults to now.
func (r *PaymentRequest) Command(noticeNo id.NoticeNo, now time.Time) models.PaymentCommand {
	paidAt := now
	if r.PaidAt != nil {
		paidAt = *r.PaidAt
	}
	return models.PaymentCommand{
		NoticeNo:  noticeNo,
		Amount:    r.Amount,
		Method:    models.PaymentMethod(r.Method),
		Reference: r.Reference,
		PaidAt:    paidAt,
	}
}

// ReductionRequest is the body of POST /notices/{noticeNo}/reductions.
type ReductionRequest struct {
	AmountReduced   decimal.Decimal `json:"amount_reduced"`
	AmountPayable   decimal.Decimal `json:"amount_payable"`
	Reason          string          `json:"reason_of_reduction"`
	DateOfReduction *time.Time      `json:"date_of_reduction,omitempty"`
	ExpiryDate      time.Time       `json:"expiry_date"`
	Remarks         string          `json:"remarks,omitempty"`
}

func (r *ReductionRequest) Validate() error {
	r.Reason = strings.TrimSpace(r.Reason)
	r.Remarks = strings.TrimSpace(r.Remarks)
	if r.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason_of_reduction is required")
	}
	if r.ExpiryDate.IsZero() {
		return dErrors.WithReason(dErrors.CodeValidation, models.ReasonCodeInvalidDates, "expiry_date is required")
	}
	return nil
}

// Command builds the reduction command. A missing date of reduction defaults to now.
func (r *ReductionRequest) Command(noticeNo id.NoticeNo, now time.Time) models.ReductionCommand {
	effective := now
	if r.DateOfReduction != nil {
		effective = *r.DateOfReduction
	}
	reason := r.Reason
	if r.Remarks != "" {
		reason = reason + ": " + r.Remarks
	}
	return models.ReductionCommand{
		NoticeNo:      noticeNo,
		AmountReduced: r.AmountReduced,
		NewPayable:    r.AmountPayable,
		Reason:        reason,
		EffectiveDate: effective,
		ExpiryDate:    r.ExpiryDate,
	}
}

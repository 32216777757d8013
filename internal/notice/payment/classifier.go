// Package payment classifies incoming payments against a notice balance.
package payment

import (
	"github.com/shopspring/decimal"

	"noticeops/internal/notice/models"
)

// Classification is the decision for one incoming payment.
type Classification struct {
	Outcome           models.PaymentOutcome
	NewTotalPaid      decimal.Decimal
	OverpaymentAmount decimal.Decimal
}

// Classify decides how an incoming amount relates to the notice balance.
//
// When the notice is already fully paid the whole amount is refundable and the
// total paid is left unchanged. Otherwise the new total is compared against the
// amount payable. Classify has no side effects.
func Classify(amountPaid, amountPayable, paidSoFar decimal.Decimal, alreadyFullyPaid bool) Classification {
	if alreadyFullyPaid {
		return Classification{
			Outcome:           models.OutcomeDoublePayment,
			NewTotalPaid:      paidSoFar,
			OverpaymentAmount: amountPaid,
		}
	}

	total := paidSoFar.Add(amountPaid)
	switch total.Cmp(amountPayable) {
	case 1:
		return Classification{
			Outcome:           models.OutcomeOverPayment,
			NewTotalPaid:      total,
			OverpaymentAmount: total.Sub(amountPayable),
		}
	case 0:
		return Classification{
			Outcome:           models.OutcomeFullPayment,
			NewTotalPaid:      total,
			OverpaymentAmount: decimal.Zero,
		}
	default:
		return Classification{
			Outcome:           models.OutcomePartialPayment,
			NewTotalPaid:      total,
			OverpaymentAmount: decimal.Zero,
		}
	}
}

// SettlesNotice reports whether the outcome closes payment acceptance.
func (c Classification) SettlesNotice() bool {
	switch c.Outcome {
	case models.OutcomeFullPayment, models.OutcomeOverPayment:
		return true
	case models.OutcomeDoublePayment, models.OutcomePartialPayment:
		return false
	}
	return false
}

// SuspensionReason returns the reason the notice is suspended with after this
// payment, or ReasonNone when the suspension is left untouched.
func (c Classification) SuspensionReason() models.SuspensionReason {
	switch c.Outcome {
	case models.OutcomeFullPayment, models.OutcomeOverPayment:
		return models.ReasonFullPayment
	case models.OutcomePartialPayment:
		return models.ReasonPartialPayment
	case models.OutcomeDoublePayment:
		return models.ReasonNone
	}
	return models.ReasonNone
}

// RefundAmount returns what is owed back to the payer and why.
func (c Classification) RefundAmount() (decimal.Decimal, models.RefundReason, bool) {
	switch c.Outcome {
	case models.OutcomeDoublePayment:
		return c.OverpaymentAmount, models.RefundDoublePayment, true
	case models.OutcomeOverPayment:
		return c.OverpaymentAmount, models.RefundOverPayment, true
	case models.OutcomeFullPayment, models.OutcomePartialPayment:
		return decimal.Zero, "", false
	}
	return decimal.Zero, "", false
}

// Package reduction decides whether a notice may have its amount payable reduced
// and validates proposed reduction amounts and dates.
package reduction

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"noticeops/internal/notice/models"
	dErrors "noticeops/pkg/domain-errors"
)

// eligibleRuleCodes are offence rule codes for which reductions are generally allowed.
var eligibleRuleCodes = map[string]struct{}{
	"10300": {},
	"10900": {},
	"20412": {},
	"30305": {},
	"30302": {},
	"31302": {},
}

// generallyEligibleStages are the pre-closure stages from new investigation through
// the redirect and driver stages.
var generallyEligibleStages = map[models.Stage]struct{}{
	models.StageNewInvestigation: {},
	models.StageRegisteredOwner:  {},
	models.StageEnquiry:          {},
	models.StageReminder1:        {},
	models.StageReminder2:        {},
	models.StageRedirectFinal:    {},
	models.StageDriverNotice1:    {},
	models.StageDriverNotice2:    {},
	models.StageDriverFinal:      {},
}

// finalRedirectStages are the only stages where codes outside the eligible set qualify.
var finalRedirectStages = map[models.Stage]struct{}{
	models.StageRedirectFinal: {},
	models.StageDriverFinal:   {},
}

// Engine evaluates reduction requests. It is stateless and safe for concurrent use.
type Engine struct{}

// NewEngine returns a reduction eligibility engine.
func NewEngine() *Engine {
	return &Engine{}
}

// IsEligible applies the two-tier rule table.
func (e *Engine) IsEligible(ruleCode string, lastStage models.Stage) bool {
	return e.IneligibilityReason(ruleCode, lastStage) == ""
}

// IneligibilityReason returns an empty string when eligible, otherwise a
// machine-readable reason.
func (e *Engine) IneligibilityReason(ruleCode string, lastStage models.Stage) string {
	code := strings.TrimSpace(ruleCode)
	stage := models.Stage(strings.TrimSpace(string(lastStage)))
	if code == "" {
		return models.ReasonCodeMissingRuleCode
	}
	if stage.IsBlank() {
		return models.ReasonCodeMissingStage
	}

	if _, ok := eligibleRuleCodes[code]; ok {
		if _, ok := generallyEligibleStages[stage]; ok {
			return ""
		}
		return models.ReasonCodeNotEligible
	}
	if _, ok := finalRedirectStages[stage]; ok {
		return ""
	}
	return models.ReasonCodeNotEligible
}

// ValidateAmounts checks the proposed figures against the original composition amount.
func (e *Engine) ValidateAmounts(original, reduced, proposedPayable decimal.Decimal) error {
	if reduced.GreaterThan(original) {
		return dErrors.WithReason(dErrors.CodeValidation, models.ReasonCodeInvalidReductionAmount,
			"amount reduced cannot exceed the original amount")
	}
	if !proposedPayable.Equal(original.Sub(reduced)) {
		return dErrors.WithReason(dErrors.CodeValidation, models.ReasonCodeInconsistentAmounts,
			"amount payable must equal original amount minus amount reduced")
	}
	if reduced.IsNegative() || proposedPayable.IsNegative() {
		return dErrors.WithReason(dErrors.CodeValidation, models.ReasonCodeNegativeAmount,
			"amounts cannot be negative")
	}
	return nil
}

// ValidateDates requires the expiry to fall strictly after the date of reduction.
func (e *Engine) ValidateDates(reducedOn, expiresOn time.Time) error {
	if !expiresOn.After(reducedOn) {
		return dErrors.WithReason(dErrors.CodeValidation, models.ReasonCodeInvalidDates,
			"expiry date must be after the date of reduction")
	}
	return nil
}

// Evaluate runs every check in a fixed order and returns the first failure:
// paid-check, amount-check, date-check, eligibility-check.
// latest is the notice's most recent ledger entry, or nil.
func (e *Engine) Evaluate(cmd models.ReductionCommand, notice *models.Notice, latest *models.LedgerEntry) error {
	if latest != nil && latest.Reason.IsPayment() {
		return dErrors.WithReason(dErrors.CodeBusinessRule, models.ReasonCodeNoticeAlreadyPaid,
			"notice has already been paid")
	}
	if err := e.ValidateAmounts(notice.CompositionAmount, cmd.AmountReduced, cmd.NewPayable); err != nil {
		return err
	}
	if err := e.ValidateDates(cmd.EffectiveDate, cmd.ExpiryDate); err != nil {
		return err
	}
	if reason := e.IneligibilityReason(notice.RuleCode, notice.LastProcessingStage); reason != "" {
		return dErrors.WithReason(dErrors.CodeBusinessRule, reason,
			"notice is not eligible for reduction at stage "+notice.LastProcessingStage.String())
	}
	return nil
}

// EligibleRuleCodes returns a copy of the eligible rule code set.
func EligibleRuleCodes() []string {
	out := make([]string, 0, len(eligibleRuleCodes))
	for code := range eligibleRuleCodes {
		out = append(out, code)
	}
	return out
}

// GenerallyEligibleStages returns a copy of the generally eligible stage set.
func GenerallyEligibleStages() []models.Stage {
	out := make([]models.Stage, 0, len(generallyEligibleStages))
	for s := range generallyEligibleStages {
		out = append(out, s)
	}
	return out
}

// FinalRedirectStages returns a copy of the special-case stage set.
func FinalRedirectStages() []models.Stage {
	out := make([]models.Stage, 0, len(finalRedirectStages))
	for s := range finalRedirectStages {
		out = append(out, s)
	}
	return out
}

// Package borrower turns upstream borrower payloads into CRM state: the
// reloan source bucket, the primary loan, and the persisted loan plans.
package borrower

import "github.com/sells-group/lead-crm/internal/model"

const flagYes = "Yes"

// Flags are the upstream bucket markers. Only the exact string "Yes"
// counts; "yes", "Y" and true are all treated as unset.
type Flags struct {
	IsInAttrition      string `json:"is_in_attrition"`
	IsInClosedLoan     string `json:"is_in_closed_loan"`
	IsInSecondReloan   string `json:"is_in_2nd_reloan"`
	IsInLastPaymentDue string `json:"is_in_last_payment_due"`
	IsInBHV1           string `json:"is_in_bhv1"`
}

// ClassifySource returns the highest-ranked bucket whose flag is set, or
// SourceNotEligible when none are.
func ClassifySource(f Flags) model.BorrowerSource {
	switch {
	case f.IsInAttrition == flagYes:
		return model.SourceAttritionRisk
	case f.IsInClosedLoan == flagYes:
		return model.SourceClosedLoan
	case f.IsInSecondReloan == flagYes:
		return model.SourceSecondReloan
	case f.IsInLastPaymentDue == flagYes:
		return model.SourceLastPaymentDue
	case f.IsInBHV1 == flagYes:
		return model.SourceBHV1
	default:
		return model.SourceNotEligible
	}
}

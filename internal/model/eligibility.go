package model

// EligibilityReason tags why a phone was (or was not) accepted.
type EligibilityReason string

const (
	ReasonEligible            EligibilityReason = "eligible"
	ReasonInvalidPhone        EligibilityReason = "invalid_phone"
	ReasonListed              EligibilityReason = "listed"
	ReasonDuplicateLead       EligibilityReason = "duplicate_lead"
	ReasonDuplicateBorrower   EligibilityReason = "duplicate_borrower"
	ReasonUpstreamUnavailable EligibilityReason = "upstream_unavailable"
	ReasonUnknown             EligibilityReason = "unknown"
)

// EligibilityResult is the verdict for one phone number. It is computed per
// request and never stored on its own; Status and Notes are copied onto the
// lead created from it.
type EligibilityResult struct {
	IsEligible       bool              `json:"isEligible"`
	Status           LeadStatus        `json:"status"`
	Notes            string            `json:"notes,omitempty"`
	Reason           EligibilityReason `json:"reason"`
	Lists            []string          `json:"lists,omitempty"`
	ExistingLead     *LeadRef          `json:"existingLead,omitempty"`
	ExistingBorrower *BorrowerRef      `json:"existingBorrower,omitempty"`
}

// Ineligible builds a rejected verdict.
func Ineligible(reason EligibilityReason, notes string) EligibilityResult {
	return EligibilityResult{
		IsEligible: false,
		Status:     LeadStatusUnqualified,
		Notes:      notes,
		Reason:     reason,
	}
}

// Eligible builds an accepted verdict.
func Eligible() EligibilityResult {
	return EligibilityResult{
		IsEligible: true,
		Status:     LeadStatusNew,
		Reason:     ReasonEligible,
	}
}

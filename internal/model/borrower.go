package model

import "time"

// BorrowerSource is the ranked reloan bucket written to borrowers.source.
type BorrowerSource string

const (
	SourceAttritionRisk  BorrowerSource = "Attrition Risk"
	SourceClosedLoan     BorrowerSource = "Closed Loan"
	SourceSecondReloan   BorrowerSource = "2nd Reloan"
	SourceLastPaymentDue BorrowerSource = "Last Payment Due"
	SourceBHV1           BorrowerSource = "BHV1"
	SourceNotEligible    BorrowerSource = "Not Eligible"
)

// Borrower is a customer with an existing or past loan relationship.
type Borrower struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Phone         string         `json:"phone"`
	Status        LeadStatus     `json:"status"`
	Source        BorrowerSource `json:"source,omitempty"`
	PrimaryLoanID string         `json:"primary_loan_id,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Ref returns the lightweight reference embedded in eligibility results.
func (b *Borrower) Ref() *BorrowerRef {
	return &BorrowerRef{ID: b.ID, Status: b.Status, Phone: b.Phone}
}

// BorrowerRef identifies an existing borrower that vetoed an eligibility check.
type BorrowerRef struct {
	ID     string     `json:"id"`
	Status LeadStatus `json:"status"`
	Phone  string     `json:"phone"`
}

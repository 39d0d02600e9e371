package model

import "time"

// LeadStatus is the pipeline column a lead sits in.
type LeadStatus string

const (
	LeadStatusNew         LeadStatus = "new"
	LeadStatusOpen        LeadStatus = "open"
	LeadStatusContacted   LeadStatus = "contacted"
	LeadStatusQualified   LeadStatus = "qualified"
	LeadStatusConverted   LeadStatus = "converted"
	LeadStatusUnqualified LeadStatus = "unqualified"
)

// Lead is a prospective customer record, pre-loan.
type Lead struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Phone     string     `json:"phone"`
	Email     string     `json:"email,omitempty"`
	Source    string     `json:"source,omitempty"`
	Status    LeadStatus `json:"status"`
	Notes     string     `json:"notes,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Ref returns the lightweight reference embedded in eligibility results.
func (l *Lead) Ref() *LeadRef {
	return &LeadRef{ID: l.ID, Status: l.Status, Phone: l.Phone}
}

// LeadRef identifies an existing lead that vetoed an eligibility check.
type LeadRef struct {
	ID     string     `json:"id"`
	Status LeadStatus `json:"status"`
	Phone  string     `json:"phone"`
}

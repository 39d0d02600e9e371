package model

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// FlexString decodes a JSON string or number into its string form. The
// upstream loan feed sends ids and amounts in either shape.
type FlexString string

// UnmarshalJSON accepts "123", 123 and null.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// LoanRecord is one loan from an upstream borrower payload.
type LoanRecord struct {
	LoanID                FlexString `json:"loan_id"`
	IsOverdue             string     `json:"is_overdue"`
	LoanCompletedDate     string     `json:"loan_completed_date"`
	EstimatedReloanAmount FlexString `json:"estimated_reloan_amount"`
	HasBD                 string     `json:"has_bd"`
	HasBHV                string     `json:"has_bhv"`
	HasDNC                string     `json:"has_dnc"`
	ProductName           string     `json:"product_name"`
	LoanComments          []string   `json:"loan_comments"`
}

// Active reports whether the loan has no completion date.
func (l LoanRecord) Active() bool {
	return strings.TrimSpace(l.LoanCompletedDate) == ""
}

// Overdue reports whether the upstream flagged the loan as overdue.
func (l LoanRecord) Overdue() bool {
	return l.IsOverdue == "Yes"
}

// LoanPlan is a persisted loan_plans row.
type LoanPlan struct {
	BorrowerID string     `json:"borrower_id"`
	Loan       LoanRecord `json:"loan"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Package store persists leads, borrowers and their loan plans.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-crm/internal/model"
)

// ErrNotFound is returned (wrapped) by the Get and Update methods when no
// row matches.
var ErrNotFound = eris.New("store: not found")

// LeadFilter specifies criteria for listing leads.
type LeadFilter struct {
	Status model.LeadStatus `json:"status,omitempty"`
	Source string           `json:"source,omitempty"`
	Limit  int              `json:"limit,omitempty"`
	Offset int              `json:"offset,omitempty"`
}

// Store defines the persistence interface for the CRM.
type Store interface {
	// Leads
	FindActiveLeadByPhones(ctx context.Context, phones []string) (*model.Lead, error)
	CreateLead(ctx context.Context, lead *model.Lead) error
	GetLead(ctx context.Context, id string) (*model.Lead, error)
	UpdateLeadStatus(ctx context.Context, id string, status model.LeadStatus, notes string) error
	ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error)

	// Borrowers
	FindActiveBorrowerByPhones(ctx context.Context, phones []string) (*model.Borrower, error)
	CreateBorrower(ctx context.Context, b *model.Borrower) error
	GetBorrower(ctx context.Context, id string) (*model.Borrower, error)
	UpdateBorrowerSource(ctx context.Context, id string, source model.BorrowerSource, primaryLoanID string) error

	// Loan plans
	UpsertLoanPlans(ctx context.Context, borrowerID string, loans []model.LoanRecord) (int64, error)
	ListLoanPlans(ctx context.Context, borrowerID string) ([]model.LoanPlan, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// uniqueLoans keeps one record per loan id: the last one in the payload
// wins, at the position of the first.
func uniqueLoans(loans []model.LoanRecord) []model.LoanRecord {
	seen := make(map[model.FlexString]int, len(loans))
	out := make([]model.LoanRecord, 0, len(loans))
	for _, l := range loans {
		if i, ok := seen[l.LoanID]; ok {
			out[i] = l
			continue
		}
		seen[l.LoanID] = len(out)
		out = append(out, l)
	}
	return out
}

const defaultListLimit = 100

func listLimit(n int) int {
	if n <= 0 || n > 1000 {
		return defaultListLimit
	}
	return n
}

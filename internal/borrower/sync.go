package borrower

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-crm/internal/metrics"
	"github.com/sells-group/lead-crm/internal/model"
	"github.com/sells-group/lead-crm/internal/phone"
	"github.com/sells-group/lead-crm/internal/store"
	"github.com/sells-group/lead-crm/pkg/webhook"
)

// ErrMissingID is returned when Sync is called without a borrower id.
var ErrMissingID = eris.New("borrower: empty borrower id")

// Store is the persistence the syncer needs.
type Store interface {
	GetBorrower(ctx context.Context, id string) (*model.Borrower, error)
	CreateBorrower(ctx context.Context, b *model.Borrower) error
	UpdateBorrowerSource(ctx context.Context, id string, source model.BorrowerSource, primaryLoanID string) error
	UpsertLoanPlans(ctx context.Context, borrowerID string, loans []model.LoanRecord) (int64, error)
}

// SyncResult summarises one sync.
type SyncResult struct {
	BorrowerID    string               `json:"borrower_id"`
	Created       bool                 `json:"created"`
	Source        model.BorrowerSource `json:"source"`
	PrimaryLoan   *model.LoanRecord    `json:"primary_loan,omitempty"`
	LoansUpserted int64                `json:"loans_upserted"`
}

// Syncer applies upstream borrower payloads to the store.
type Syncer struct {
	store  Store
	events webhook.Publisher
}

// NewSyncer wires a syncer. events may be nil.
func NewSyncer(st Store, events webhook.Publisher) *Syncer {
	if events == nil {
		events = webhook.Nop{}
	}
	return &Syncer{store: st, events: events}
}

// Sync decodes raw, classifies the borrower, selects the primary loan,
// upserts every loan into loan_plans and records the result on the
// borrower. Unknown borrowers are created from the payload's name and phone.
// Loan plans are never deleted.
func (s *Syncer) Sync(ctx context.Context, borrowerID string, raw []byte) (*SyncResult, error) {
	if borrowerID == "" {
		return nil, ErrMissingID
	}

	p, err := ParsePayload(raw)
	if err != nil {
		return nil, err
	}

	res := &SyncResult{BorrowerID: borrowerID}

	if _, err := s.store.GetBorrower(ctx, borrowerID); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, eris.Wrapf(err, "borrower: load %s", borrowerID)
		}
		b := &model.Borrower{
			ID:    borrowerID,
			Name:  p.Name,
			Phone: phone.Clean(string(p.Phone)),
		}
		if err := s.store.CreateBorrower(ctx, b); err != nil {
			return nil, eris.Wrapf(err, "borrower: create %s", borrowerID)
		}
		res.Created = true
	}

	res.Source = ClassifySource(p.Flags)
	res.PrimaryLoan = SelectPrimary(p.Loans)

	n, err := s.store.UpsertLoanPlans(ctx, borrowerID, p.Loans)
	if err != nil {
		return nil, eris.Wrapf(err, "borrower: upsert loans for %s", borrowerID)
	}
	res.LoansUpserted = n

	var primaryID string
	if res.PrimaryLoan != nil {
		primaryID = string(res.PrimaryLoan.LoanID)
	}
	if err := s.store.UpdateBorrowerSource(ctx, borrowerID, res.Source, primaryID); err != nil {
		return nil, eris.Wrapf(err, "borrower: update source for %s", borrowerID)
	}

	metrics.BorrowerSyncs.WithLabelValues(string(res.Source)).Inc()
	zap.L().Info("borrower: synced",
		zap.String("borrower_id", borrowerID),
		zap.String("source", string(res.Source)),
		zap.String("primary_loan_id", primaryID),
		zap.Int64("loans", n),
		zap.Bool("created", res.Created),
	)

	if err := s.events.Publish(ctx, webhook.EventBorrowerSynced, res); err != nil {
		zap.L().Warn("borrower: event delivery failed", zap.String("borrower_id", borrowerID), zap.Error(err))
	}
	return res, nil
}

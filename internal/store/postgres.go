package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-crm/internal/db"
	"github.com/sells-group/lead-crm/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name       TEXT NOT NULL DEFAULT '',
	phone      TEXT NOT NULL,
	email      TEXT NOT NULL DEFAULT '',
	source     TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'new',
	notes      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS borrowers (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name            TEXT NOT NULL DEFAULT '',
	phone           TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'open',
	source          TEXT NOT NULL DEFAULT '',
	primary_loan_id TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS loan_plans (
	borrower_id             TEXT NOT NULL REFERENCES borrowers(id),
	loan_id                 TEXT NOT NULL,
	is_overdue              TEXT NOT NULL DEFAULT '',
	loan_completed_date     TEXT NOT NULL DEFAULT '',
	estimated_reloan_amount TEXT NOT NULL DEFAULT '',
	has_bd                  TEXT NOT NULL DEFAULT '',
	has_bhv                 TEXT NOT NULL DEFAULT '',
	has_dnc                 TEXT NOT NULL DEFAULT '',
	product_name            TEXT NOT NULL DEFAULT '',
	loan_comments           JSONB NOT NULL DEFAULT '[]',
	updated_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (borrower_id, loan_id)
);

CREATE INDEX IF NOT EXISTS idx_leads_phone ON leads(phone);
CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
CREATE INDEX IF NOT EXISTS idx_borrowers_phone ON borrowers(phone);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const leadColumns = `id, name, phone, email, source, status, notes, created_at, updated_at`

func (s *PostgresStore) FindActiveLeadByPhones(ctx context.Context, phones []string) (*model.Lead, error) {
	if len(phones) == 0 {
		return nil, nil
	}
	var l model.Lead
	err := s.pool.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE phone = ANY($1) AND status <> $2 ORDER BY updated_at DESC LIMIT 1`,
		phones, string(model.LeadStatusUnqualified),
	).Scan(&l.ID, &l.Name, &l.Phone, &l.Email, &l.Source, &l.Status, &l.Notes, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find lead by phones")
	}
	return &l, nil
}

func (s *PostgresStore) CreateLead(ctx context.Context, lead *model.Lead) error {
	if lead.ID == "" {
		lead.ID = uuid.New().String()
	}
	if lead.Status == "" {
		lead.Status = model.LeadStatusNew
	}
	now := time.Now().UTC()
	lead.CreatedAt, lead.UpdatedAt = now, now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO leads (`+leadColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		lead.ID, lead.Name, lead.Phone, lead.Email, lead.Source, string(lead.Status), lead.Notes, now, now,
	)
	return eris.Wrap(err, "postgres: insert lead")
}

func (s *PostgresStore) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	var l model.Lead
	err := s.pool.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE id = $1`, id,
	).Scan(&l.ID, &l.Name, &l.Phone, &l.Email, &l.Source, &l.Status, &l.Notes, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "lead %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get lead %s", id)
	}
	return &l, nil
}

func (s *PostgresStore) UpdateLeadStatus(ctx context.Context, id string, status model.LeadStatus, notes string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET status = $1, notes = $2, updated_at = $3 WHERE id = $4`,
		string(status), notes, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update lead status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "lead %s", id)
	}
	return nil
}

func (s *PostgresStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Source != "" {
		query += fmt.Sprintf(` AND source = $%d`, argIdx)
		args = append(args, filter.Source)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		var l model.Lead
		if err := rows.Scan(&l.ID, &l.Name, &l.Phone, &l.Email, &l.Source, &l.Status, &l.Notes, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		leads = append(leads, l)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: list leads iterate")
}

const borrowerColumns = `id, name, phone, status, source, primary_loan_id, created_at, updated_at`

func (s *PostgresStore) FindActiveBorrowerByPhones(ctx context.Context, phones []string) (*model.Borrower, error) {
	if len(phones) == 0 {
		return nil, nil
	}
	var b model.Borrower
	err := s.pool.QueryRow(ctx,
		`SELECT `+borrowerColumns+` FROM borrowers WHERE phone = ANY($1) AND status <> $2 ORDER BY updated_at DESC LIMIT 1`,
		phones, string(model.LeadStatusUnqualified),
	).Scan(&b.ID, &b.Name, &b.Phone, &b.Status, &b.Source, &b.PrimaryLoanID, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find borrower by phones")
	}
	return &b, nil
}

func (s *PostgresStore) CreateBorrower(ctx context.Context, b *model.Borrower) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.Status == "" {
		b.Status = model.LeadStatusOpen
	}
	now := time.Now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO borrowers (`+borrowerColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		b.ID, b.Name, b.Phone, string(b.Status), string(b.Source), b.PrimaryLoanID, now, now,
	)
	return eris.Wrap(err, "postgres: insert borrower")
}

func (s *PostgresStore) GetBorrower(ctx context.Context, id string) (*model.Borrower, error) {
	var b model.Borrower
	err := s.pool.QueryRow(ctx,
		`SELECT `+borrowerColumns+` FROM borrowers WHERE id = $1`, id,
	).Scan(&b.ID, &b.Name, &b.Phone, &b.Status, &b.Source, &b.PrimaryLoanID, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "borrower %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get borrower %s", id)
	}
	return &b, nil
}

func (s *PostgresStore) UpdateBorrowerSource(ctx context.Context, id string, source model.BorrowerSource, primaryLoanID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE borrowers SET source = $1, primary_loan_id = $2, updated_at = $3 WHERE id = $4`,
		string(source), primaryLoanID, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update borrower source %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "borrower %s", id)
	}
	return nil
}

var loanPlanColumns = []string{
	"borrower_id", "loan_id", "is_overdue", "loan_completed_date",
	"estimated_reloan_amount", "has_bd", "has_bhv", "has_dnc",
	"product_name", "loan_comments", "updated_at",
}

func (s *PostgresStore) UpsertLoanPlans(ctx context.Context, borrowerID string, loans []model.LoanRecord) (int64, error) {
	loans = uniqueLoans(loans)
	now := time.Now().UTC()
	rows := make([][]any, 0, len(loans))
	for _, l := range loans {
		comments, err := marshalComments(l.LoanComments)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal loan comments")
		}
		rows = append(rows, []any{
			borrowerID, string(l.LoanID), l.IsOverdue, l.LoanCompletedDate,
			string(l.EstimatedReloanAmount), l.HasBD, l.HasBHV, l.HasDNC,
			l.ProductName, comments, now,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "loan_plans",
		Columns:      loanPlanColumns,
		ConflictKeys: []string{"borrower_id", "loan_id"},
	}, rows)
	return n, eris.Wrapf(err, "postgres: upsert loan plans for %s", borrowerID)
}

func (s *PostgresStore) ListLoanPlans(ctx context.Context, borrowerID string) ([]model.LoanPlan, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT loan_id, is_overdue, loan_completed_date, estimated_reloan_amount, has_bd, has_bhv, has_dnc, product_name, loan_comments, updated_at
		 FROM loan_plans WHERE borrower_id = $1 ORDER BY loan_id`,
		borrowerID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list loan plans %s", borrowerID)
	}
	defer rows.Close()

	var plans []model.LoanPlan
	for rows.Next() {
		p := model.LoanPlan{BorrowerID: borrowerID}
		var loanID, amount string
		var comments []byte
		if err := rows.Scan(&loanID, &p.Loan.IsOverdue, &p.Loan.LoanCompletedDate, &amount,
			&p.Loan.HasBD, &p.Loan.HasBHV, &p.Loan.HasDNC, &p.Loan.ProductName, &comments, &p.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan loan plan")
		}
		p.Loan.LoanID = model.FlexString(loanID)
		p.Loan.EstimatedReloanAmount = model.FlexString(amount)
		if err := json.Unmarshal(comments, &p.Loan.LoanComments); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal loan comments")
		}
		plans = append(plans, p)
	}
	return plans, eris.Wrap(rows.Err(), "postgres: list loan plans iterate")
}

func marshalComments(c []string) ([]byte, error) {
	if c == nil {
		c = []string{}
	}
	return json.Marshal(c)
}

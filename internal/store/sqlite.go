package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lead-crm/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs local
// runs and tests.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	phone      TEXT NOT NULL,
	email      TEXT NOT NULL DEFAULT '',
	source     TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'new',
	notes      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS borrowers (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL DEFAULT '',
	phone           TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'open',
	source          TEXT NOT NULL DEFAULT '',
	primary_loan_id TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now'))
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
	loan_comments           TEXT NOT NULL DEFAULT '[]',
	updated_at              DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (borrower_id, loan_id)
);

CREATE INDEX IF NOT EXISTS idx_leads_phone ON leads(phone);
CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
CREATE INDEX IF NOT EXISTS idx_borrowers_phone ON borrowers(phone);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// inClause returns "?, ?, ?" and the matching args.
func inClause(values []string) (string, []any) {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", "), args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLead(row scanner) (*model.Lead, error) {
	var l model.Lead
	if err := row.Scan(&l.ID, &l.Name, &l.Phone, &l.Email, &l.Source, &l.Status, &l.Notes, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}

func scanBorrower(row scanner) (*model.Borrower, error) {
	var b model.Borrower
	if err := row.Scan(&b.ID, &b.Name, &b.Phone, &b.Status, &b.Source, &b.PrimaryLoanID, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *SQLiteStore) FindActiveLeadByPhones(ctx context.Context, phones []string) (*model.Lead, error) {
	if len(phones) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(phones)
	args = append(args, string(model.LeadStatusUnqualified))

	l, err := scanLead(s.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE phone IN (`+placeholders+`) AND status <> ? ORDER BY updated_at DESC LIMIT 1`,
		args...,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return l, eris.Wrap(err, "sqlite: find lead by phones")
}

func (s *SQLiteStore) CreateLead(ctx context.Context, lead *model.Lead) error {
	if lead.ID == "" {
		lead.ID = uuid.New().String()
	}
	if lead.Status == "" {
		lead.Status = model.LeadStatusNew
	}
	now := time.Now().UTC()
	lead.CreatedAt, lead.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO leads (`+leadColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lead.ID, lead.Name, lead.Phone, lead.Email, lead.Source, string(lead.Status), lead.Notes, now, now,
	)
	return eris.Wrap(err, "sqlite: insert lead")
}

func (s *SQLiteStore) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	l, err := scanLead(s.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "lead %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get lead %s", id)
	}
	return l, nil
}

func (s *SQLiteStore) UpdateLeadStatus(ctx context.Context, id string, status model.LeadStatus, notes string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET status = ?, notes = ?, updated_at = ? WHERE id = ?`,
		string(status), notes, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update lead status %s", id)
	}
	return checkRowsAffected(res, "lead", id)
}

func (s *SQLiteStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, filter.Source)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close() //nolint:errcheck

	var leads []model.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: list leads iterate")
}

func (s *SQLiteStore) FindActiveBorrowerByPhones(ctx context.Context, phones []string) (*model.Borrower, error) {
	if len(phones) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(phones)
	args = append(args, string(model.LeadStatusUnqualified))

	b, err := scanBorrower(s.db.QueryRowContext(ctx,
		`SELECT `+borrowerColumns+` FROM borrowers WHERE phone IN (`+placeholders+`) AND status <> ? ORDER BY updated_at DESC LIMIT 1`,
		args...,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return b, eris.Wrap(err, "sqlite: find borrower by phones")
}

func (s *SQLiteStore) CreateBorrower(ctx context.Context, b *model.Borrower) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.Status == "" {
		b.Status = model.LeadStatusOpen
	}
	now := time.Now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO borrowers (`+borrowerColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Name, b.Phone, string(b.Status), string(b.Source), b.PrimaryLoanID, now, now,
	)
	return eris.Wrap(err, "sqlite: insert borrower")
}

func (s *SQLiteStore) GetBorrower(ctx context.Context, id string) (*model.Borrower, error) {
	b, err := scanBorrower(s.db.QueryRowContext(ctx, `SELECT `+borrowerColumns+` FROM borrowers WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "borrower %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get borrower %s", id)
	}
	return b, nil
}

func (s *SQLiteStore) UpdateBorrowerSource(ctx context.Context, id string, source model.BorrowerSource, primaryLoanID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE borrowers SET source = ?, primary_loan_id = ?, updated_at = ? WHERE id = ?`,
		string(source), primaryLoanID, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update borrower source %s", id)
	}
	return checkRowsAffected(res, "borrower", id)
}

func (s *SQLiteStore) UpsertLoanPlans(ctx context.Context, borrowerID string, loans []model.LoanRecord) (int64, error) {
	if len(loans) == 0 {
		return 0, nil
	}
	loans = uniqueLoans(loans)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO loan_plans (borrower_id, loan_id, is_overdue, loan_completed_date, estimated_reloan_amount,
			has_bd, has_bhv, has_dnc, product_name, loan_comments, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (borrower_id, loan_id) DO UPDATE SET
			is_overdue = excluded.is_overdue,
			loan_completed_date = excluded.loan_completed_date,
			estimated_reloan_amount = excluded.estimated_reloan_amount,
			has_bd = excluded.has_bd,
			has_bhv = excluded.has_bhv,
			has_dnc = excluded.has_dnc,
			product_name = excluded.product_name,
			loan_comments = excluded.loan_comments,
			updated_at = excluded.updated_at`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare loan plan upsert")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	var n int64
	for _, l := range loans {
		comments, err := marshalComments(l.LoanComments)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: marshal loan comments")
		}
		if _, err := stmt.ExecContext(ctx,
			borrowerID, string(l.LoanID), l.IsOverdue, l.LoanCompletedDate, string(l.EstimatedReloanAmount),
			l.HasBD, l.HasBHV, l.HasDNC, l.ProductName, string(comments), now,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert loan plan %s/%s", borrowerID, l.LoanID)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit loan plans")
	}
	return n, nil
}

func (s *SQLiteStore) ListLoanPlans(ctx context.Context, borrowerID string) ([]model.LoanPlan, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT loan_id, is_overdue, loan_completed_date, estimated_reloan_amount, has_bd, has_bhv, has_dnc, product_name, loan_comments, updated_at
		 FROM loan_plans WHERE borrower_id = ? ORDER BY loan_id`,
		borrowerID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list loan plans %s", borrowerID)
	}
	defer rows.Close() //nolint:errcheck

	var plans []model.LoanPlan
	for rows.Next() {
		p := model.LoanPlan{BorrowerID: borrowerID}
		var loanID, amount, comments string
		if err := rows.Scan(&loanID, &p.Loan.IsOverdue, &p.Loan.LoanCompletedDate, &amount,
			&p.Loan.HasBD, &p.Loan.HasBHV, &p.Loan.HasDNC, &p.Loan.ProductName, &comments, &p.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan loan plan")
		}
		p.Loan.LoanID = model.FlexString(loanID)
		p.Loan.EstimatedReloanAmount = model.FlexString(amount)
		if err := json.Unmarshal([]byte(comments), &p.Loan.LoanComments); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal loan comments")
		}
		plans = append(plans, p)
	}
	return plans, eris.Wrap(rows.Err(), "sqlite: list loan plans iterate")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", entity, id)
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

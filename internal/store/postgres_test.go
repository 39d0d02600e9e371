package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-crm/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var leadCols = []string{"id", "name", "phone", "email", "source", "status", "notes", "created_at", "updated_at"}

func TestPostgresStore_FindActiveLeadByPhones(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	phones := []string{"91234567", "6591234567", "+6591234567"}
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .+ FROM leads WHERE phone = ANY\(\$1\) AND status <> \$2 ORDER BY updated_at DESC LIMIT 1`).
		WithArgs(phones, "unqualified").
		WillReturnRows(pgxmock.NewRows(leadCols).
			AddRow("lead-1", "Tan", "91234567", "", "web", "open", "", now, now))

	l, err := s.FindActiveLeadByPhones(context.Background(), phones)
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, "lead-1", l.ID)
	assert.Equal(t, model.LeadStatusOpen, l.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindActiveLeadByPhones_NoRows(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM leads WHERE phone = ANY`).
		WithArgs([]string{"91234567"}, "unqualified").
		WillReturnError(pgx.ErrNoRows)

	l, err := s.FindActiveLeadByPhones(context.Background(), []string{"91234567"})
	require.NoError(t, err)
	assert.Nil(t, l)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindActiveLeadByPhones_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	l, err := s.FindActiveLeadByPhones(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, l)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindActiveBorrowerByPhones_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM borrowers WHERE phone = ANY`).
		WithArgs([]string{"91234567"}, "unqualified").
		WillReturnError(errors.New("connection refused"))

	_, err := s.FindActiveBorrowerByPhones(context.Background(), []string{"91234567"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "find borrower by phones")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateLead(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO leads`).
		WithArgs(pgxmock.AnyArg(), "Tan", "91234567", "tan@example.com", "web", "new", "", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	lead := &model.Lead{Name: "Tan", Phone: "91234567", Email: "tan@example.com", Source: "web"}
	require.NoError(t, s.CreateLead(context.Background(), lead))
	assert.NotEmpty(t, lead.ID)
	assert.Equal(t, model.LeadStatusNew, lead.Status)
	assert.False(t, lead.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetLead_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM leads WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetLead(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateLeadStatus_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE leads SET status = \$1, notes = \$2, updated_at = \$3 WHERE id = \$4`).
		WithArgs("contacted", "called", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateLeadStatus(context.Background(), "missing", model.LeadStatusContacted, "called")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListLeads_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM leads WHERE true AND status = \$1 AND source = \$2 ORDER BY created_at DESC LIMIT \$3 OFFSET \$4`).
		WithArgs("new", "import", 20, 40).
		WillReturnRows(pgxmock.NewRows(leadCols).
			AddRow("a", "A", "81234567", "", "import", "new", "", now, now).
			AddRow("b", "B", "91234567", "", "import", "new", "", now, now))

	leads, err := s.ListLeads(context.Background(), LeadFilter{Status: model.LeadStatusNew, Source: "import", Limit: 20, Offset: 40})
	require.NoError(t, err)
	assert.Len(t, leads, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListLeads_DefaultLimit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM leads WHERE true ORDER BY created_at DESC LIMIT \$1$`).
		WithArgs(100).
		WillReturnRows(pgxmock.NewRows(leadCols))

	leads, err := s.ListLeads(context.Background(), LeadFilter{})
	require.NoError(t, err)
	assert.Empty(t, leads)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateBorrowerSource(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE borrowers SET source = \$1, primary_loan_id = \$2`).
		WithArgs("Closed Loan", "L-9", pgxmock.AnyArg(), "b-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.UpdateBorrowerSource(context.Background(), "b-1", model.SourceClosedLoan, "L-9"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertLoanPlans(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	loans := []model.LoanRecord{
		{LoanID: "L1", IsOverdue: "Yes", ProductName: "Personal", LoanComments: []string{"called"}},
		{LoanID: "L2", LoanCompletedDate: "2024-03-01"},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_loan_plans"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_loan_plans"}, loanPlanColumns).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "loan_plans" .+ ON CONFLICT \("borrower_id", "loan_id"\)`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := s.UpsertLoanPlans(context.Background(), "b-1", loans)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertLoanPlans_RepeatedLoanID(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	loans := []model.LoanRecord{
		{LoanID: "L1", IsOverdue: "No"},
		{LoanID: "L1", IsOverdue: "Yes"},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_loan_plans"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_loan_plans"}, loanPlanColumns).
		WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "loan_plans" .+ ON CONFLICT \("borrower_id", "loan_id"\)`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := s.UpsertLoanPlans(context.Background(), "b-1", loans)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUniqueLoans(t *testing.T) {
	got := uniqueLoans([]model.LoanRecord{
		{LoanID: "L1", IsOverdue: "No"},
		{LoanID: "L2"},
		{LoanID: "L1", IsOverdue: "Yes"},
	})
	require.Len(t, got, 2)
	assert.Equal(t, model.LoanRecord{LoanID: "L1", IsOverdue: "Yes"}, got[0])
	assert.Equal(t, model.FlexString("L2"), got[1].LoanID)
}

func TestPostgresStore_ListLoanPlans(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM loan_plans WHERE borrower_id = \$1 ORDER BY loan_id`).
		WithArgs("b-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"loan_id", "is_overdue", "loan_completed_date", "estimated_reloan_amount",
			"has_bd", "has_bhv", "has_dnc", "product_name", "loan_comments", "updated_at",
		}).AddRow("L1", "Yes", "", "5000", "No", "No", "No", "Personal", []byte(`["called","no answer"]`), now))

	plans, err := s.ListLoanPlans(context.Background(), "b-1")
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, "b-1", plans[0].BorrowerID)
	assert.Equal(t, model.FlexString("L1"), plans[0].Loan.LoanID)
	assert.Equal(t, model.FlexString("5000"), plans[0].Loan.EstimatedReloanAmount)
	assert.Equal(t, []string{"called", "no answer"}, plans[0].Loan.LoanComments)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MigrateAndPing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS leads`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`SELECT 1`).WillReturnResult(pgxmock.NewResult("SELECT", 1))

	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, s.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

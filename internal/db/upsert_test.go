package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var loanPlanUpsert = UpsertConfig{
	Table:        "loan_plans",
	Columns:      []string{"borrower_id", "loan_id", "is_overdue"},
	ConflictKeys: []string{"borrower_id", "loan_id"},
}

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, loanPlanUpsert, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "loan_plans",
		ConflictKeys: []string{"loan_id"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:   "loan_plans",
		Columns: []string{"borrower_id", "loan_id"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_Success(t *testing.T) {
	mock := newMockPool(t)
	rows := [][]any{{"b-1", "L1", "Yes"}, {"b-1", "L2", "No"}}

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_loan_plans" \(LIKE "loan_plans" INCLUDING DEFAULTS\) ON COMMIT DROP`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_loan_plans"}, loanPlanUpsert.Columns).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "loan_plans" .+ ON CONFLICT \("borrower_id", "loan_id"\) DO UPDATE SET "is_overdue" = EXCLUDED."is_overdue"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, loanPlanUpsert, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_CopyFails(t *testing.T) {
	mock := newMockPool(t)

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_loan_plans"}, loanPlanUpsert.Columns).
		WillReturnError(errors.New("copy failed"))
	mock.ExpectRollback()

	_, err := BulkUpsert(context.Background(), mock, loanPlanUpsert, [][]any{{"b-1", "L1", "Yes"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into temp table for loan_plans")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDedupeRows_LastWins(t *testing.T) {
	rows := [][]any{
		{"b-1", "L1", "No"},
		{"b-1", "L2", "No"},
		{"b-1", "L1", "Yes"},
		{"b-2", "L1", "No"},
	}

	got, err := dedupeRows(loanPlanUpsert.Columns, loanPlanUpsert.ConflictKeys, rows)
	require.NoError(t, err)
	assert.Equal(t, [][]any{
		{"b-1", "L1", "Yes"},
		{"b-1", "L2", "No"},
		{"b-2", "L1", "No"},
	}, got)
}

func TestDedupeRows_UnknownKey(t *testing.T) {
	_, err := dedupeRows([]string{"borrower_id"}, []string{"loan_id"}, [][]any{{"b-1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `conflict key "loan_id"`)
}

func TestBulkUpsert_DuplicateKeysCollapsed(t *testing.T) {
	mock := newMockPool(t)
	rows := [][]any{{"b-1", "L1", "No"}, {"b-1", "L1", "Yes"}}

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_loan_plans"}, loanPlanUpsert.Columns).
		WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "loan_plans"`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, loanPlanUpsert, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"leads", `"leads"`},
		{"crm.loan_plans", `"crm"."loan_plans"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeTable(tt.input))
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"borrower_id", "loan_id"`, quoteAndJoin([]string{"borrower_id", "loan_id"}))
}

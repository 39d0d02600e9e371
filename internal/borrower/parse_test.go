package borrower

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-crm/internal/model"
)

func TestParseLoans_Array(t *testing.T) {
	raw := []byte(`[
		{"loan_id": "L1", "is_overdue": "Yes", "estimated_reloan_amount": 2500.5, "loan_comments": ["called", "promised"]},
		{"loan_id": 42, "loan_completed_date": "2024-01-31", "has_dnc": null}
	]`)

	loans, err := ParseLoans(raw)
	require.NoError(t, err)
	require.Len(t, loans, 2)
	assert.Equal(t, model.FlexString("L1"), loans[0].LoanID)
	assert.Equal(t, model.FlexString("2500.5"), loans[0].EstimatedReloanAmount)
	assert.Equal(t, []string{"called", "promised"}, loans[0].LoanComments)
	assert.Equal(t, model.FlexString("42"), loans[1].LoanID)
	assert.Equal(t, "2024-01-31", loans[1].LoanCompletedDate)
	assert.Empty(t, loans[1].HasDNC)
}

func TestParseLoans_StringEncodedArray(t *testing.T) {
	raw := []byte(`"[{\"loan_id\":\"L9\",\"is_overdue\":\"No\"}]"`)

	loans, err := ParseLoans(raw)
	require.NoError(t, err)
	require.Len(t, loans, 1)
	assert.Equal(t, model.FlexString("L9"), loans[0].LoanID)
}

func TestParseLoans_NullAndEmpty(t *testing.T) {
	for _, raw := range []string{``, `null`, `""`, `[]`} {
		loans, err := ParseLoans([]byte(raw))
		require.NoError(t, err, raw)
		assert.Empty(t, loans, raw)
	}
}

func TestParseLoans_RejectsMalformed(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		problem string
	}{
		{"trailing comma", `[{"loan_id": "L1",}]`, "malformed JSON"},
		{"single quotes", `[{'loan_id': 'L1'}]`, "malformed JSON"},
		{"missing loan id", `[{"is_overdue": "Yes"}]`, "loan_id"},
		{"boolean flag", `[{"loan_id": "L1", "is_overdue": true}]`, "is_overdue"},
		{"comments not strings", `[{"loan_id": "L1", "loan_comments": [1, 2]}]`, "loan_comments"},
		{"object not array", `{"loan_id": "L1"}`, "Invalid type"},
		{"double encoded string", `"\"[]\""`, "Invalid type"},
		{"broken inner string", `"[{\"loan_id\": }]"`, "malformed JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLoans([]byte(tt.raw))
			require.Error(t, err)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "want ValidationError, got %v", err)
			assert.Contains(t, verr.Error(), tt.problem)
		})
	}
}

func TestParseLoans_ReportsEveryProblem(t *testing.T) {
	_, err := ParseLoans([]byte(`[{"is_overdue": 1}, {"loan_id": true}]`))
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.GreaterOrEqual(t, len(verr.Problems), 3)
}

func TestParsePayload(t *testing.T) {
	raw := []byte(`{
		"name": "Lim Bee Hoon",
		"phone": 6598765432,
		"is_in_attrition": "No",
		"is_in_closed_loan": "Yes",
		"loans": "[{\"loan_id\":\"L1\",\"loan_completed_date\":\"2024-05-01\"}]"
	}`)

	p, err := ParsePayload(raw)
	require.NoError(t, err)
	assert.Equal(t, "Lim Bee Hoon", p.Name)
	assert.Equal(t, model.FlexString("6598765432"), p.Phone)
	assert.Equal(t, "Yes", p.IsInClosedLoan)
	require.Len(t, p.Loans, 1)
	assert.Equal(t, model.FlexString("L1"), p.Loans[0].LoanID)
}

func TestParsePayload_ReloanFlag(t *testing.T) {
	p, err := ParsePayload([]byte(`{"is_in_2nd_reloan": "Yes", "is_in_bhv1": "Yes"}`))
	require.NoError(t, err)
	assert.Equal(t, "Yes", p.IsInSecondReloan)
	assert.Equal(t, model.SourceSecondReloan, ClassifySource(p.Flags))

	p, err = ParsePayload([]byte(`{"is_in_second_reloan": "Yes"}`))
	require.NoError(t, err)
	assert.Empty(t, p.IsInSecondReloan)
	assert.Equal(t, model.SourceNotEligible, ClassifySource(p.Flags))
}

func TestParsePayload_NoLoans(t *testing.T) {
	p, err := ParsePayload([]byte(`{"is_in_bhv1": "Yes"}`))
	require.NoError(t, err)
	assert.Empty(t, p.Loans)
	assert.Equal(t, model.SourceBHV1, ClassifySource(p.Flags))
}

func TestParsePayload_Rejects(t *testing.T) {
	for _, raw := range []string{`[]`, `{"is_in_attrition": true}`, `{"loans": 5}`, `not json`} {
		_, err := ParsePayload([]byte(raw))
		var verr *ValidationError
		assert.True(t, errors.As(err, &verr), raw)
	}
}

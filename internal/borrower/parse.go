package borrower

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/xeipuuv/gojsonschema"

	"github.com/sells-group/lead-crm/internal/model"
)

const payloadSchemaJSON = `{
	"type": "object",
	"properties": {
		"name":                   {"type": ["string", "null"]},
		"phone":                  {"type": ["string", "number", "null"]},
		"is_in_attrition":        {"type": ["string", "null"]},
		"is_in_closed_loan":      {"type": ["string", "null"]},
		"is_in_2nd_reloan":       {"type": ["string", "null"]},
		"is_in_last_payment_due": {"type": ["string", "null"]},
		"is_in_bhv1":             {"type": ["string", "null"]},
		"loans":                  {"type": ["array", "string", "null"]}
	}
}`

const loansSchemaJSON = `{
	"type": "array",
	"items": {
		"type": "object",
		"required": ["loan_id"],
		"properties": {
			"loan_id":                 {"type": ["string", "integer"], "minLength": 1},
			"is_overdue":              {"type": ["string", "null"]},
			"loan_completed_date":     {"type": ["string", "null"]},
			"estimated_reloan_amount": {"type": ["string", "number", "null"]},
			"has_bd":                  {"type": ["string", "null"]},
			"has_bhv":                 {"type": ["string", "null"]},
			"has_dnc":                 {"type": ["string", "null"]},
			"product_name":            {"type": ["string", "null"]},
			"loan_comments":           {"type": ["array", "null"], "items": {"type": "string"}}
		}
	}
}`

var (
	payloadSchema = mustSchema(payloadSchemaJSON)
	loansSchema   = mustSchema(loansSchemaJSON)
)

func mustSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(err)
	}
	return schema
}

// ValidationError lists every schema violation found in a payload.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "borrower: invalid payload: " + strings.Join(e.Problems, "; ")
}

// Payload is a decoded upstream borrower record.
type Payload struct {
	Name  string           `json:"name"`
	Phone model.FlexString `json:"phone"`
	Flags
	Loans []model.LoanRecord `json:"-"`
}

// ParsePayload validates raw against the borrower schema and decodes it.
// The loans field may be an array or a JSON-encoded string holding one.
func ParsePayload(raw []byte) (*Payload, error) {
	if err := validate(payloadSchema, raw); err != nil {
		return nil, err
	}

	var envelope struct {
		Payload
		Loans json.RawMessage `json:"loans"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, eris.Wrap(err, "borrower: decode payload")
	}

	loans, err := ParseLoans(envelope.Loans)
	if err != nil {
		return nil, err
	}
	p := envelope.Payload
	p.Loans = loans
	return &p, nil
}

// ParseLoans decodes a loans array. A JSON string is unwrapped once and its
// contents validated the same way; nothing is repaired.
func ParseLoans(raw []byte) ([]model.LoanRecord, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, eris.Wrap(err, "borrower: unwrap loans string")
		}
		raw = bytes.TrimSpace([]byte(inner))
		if len(raw) == 0 {
			return nil, nil
		}
	}

	if err := validate(loansSchema, raw); err != nil {
		return nil, err
	}

	var loans []model.LoanRecord
	if err := json.Unmarshal(raw, &loans); err != nil {
		return nil, eris.Wrap(err, "borrower: decode loans")
	}
	return loans, nil
}

func validate(schema *gojsonschema.Schema, raw []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return &ValidationError{Problems: []string{"malformed JSON: " + err.Error()}}
	}
	if result.Valid() {
		return nil
	}
	problems := make([]string, len(result.Errors()))
	for i, desc := range result.Errors() {
		problems[i] = desc.String()
	}
	return &ValidationError{Problems: problems}
}

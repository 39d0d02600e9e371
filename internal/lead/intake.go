// Package lead creates leads from web forms and bulk imports. Every lead is
// persisted with the status and notes of its eligibility verdict.
package lead

import (
	"context"
	"net/mail"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-crm/internal/metrics"
	"github.com/sells-group/lead-crm/internal/model"
	"github.com/sells-group/lead-crm/internal/phone"
	"github.com/sells-group/lead-crm/pkg/webhook"
)

// ErrInvalidInput marks a submission rejected before any lookup.
var ErrInvalidInput = eris.New("lead: invalid input")

// Checker produces an eligibility verdict for a raw phone.
type Checker interface {
	Check(ctx context.Context, raw string) model.EligibilityResult
}

// Store persists new leads.
type Store interface {
	CreateLead(ctx context.Context, lead *model.Lead) error
}

// Input is one submitted lead.
type Input struct {
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Email  string `json:"email"`
	Source string `json:"source"`
}

// Result is the stored lead and the verdict that shaped it.
type Result struct {
	Lead        *model.Lead             `json:"lead"`
	Eligibility model.EligibilityResult `json:"eligibility"`
}

// Intake runs the eligibility gate and stores the lead.
type Intake struct {
	checker Checker
	store   Store
	events  webhook.Publisher
}

// NewIntake wires an intake. events may be nil.
func NewIntake(checker Checker, st Store, events webhook.Publisher) *Intake {
	if events == nil {
		events = webhook.Nop{}
	}
	return &Intake{checker: checker, store: st, events: events}
}

// Submit checks in.Phone and stores a lead carrying the verdict's status and
// notes. Ineligible leads are stored too, as unqualified, so the sales team
// can see why they were turned away.
func (in *Intake) Submit(ctx context.Context, input Input) (*Result, error) {
	input, err := clean(input)
	if err != nil {
		return nil, err
	}

	verdict := in.checker.Check(ctx, input.Phone)

	l := &model.Lead{
		Name:   input.Name,
		Phone:  storedPhone(input.Phone),
		Email:  input.Email,
		Source: input.Source,
		Status: verdict.Status,
		Notes:  verdict.Notes,
	}
	if err := in.store.CreateLead(ctx, l); err != nil {
		return nil, eris.Wrap(err, "lead: create")
	}

	metrics.LeadsCreated.WithLabelValues(string(l.Status)).Inc()
	zap.L().Info("lead: created",
		zap.String("lead_id", l.ID),
		zap.String("status", string(l.Status)),
		zap.String("reason", string(verdict.Reason)),
		zap.String("source", l.Source),
	)

	res := &Result{Lead: l, Eligibility: verdict}
	if err := in.events.Publish(ctx, webhook.EventLeadCreated, res); err != nil {
		zap.L().Warn("lead: event delivery failed", zap.String("lead_id", l.ID), zap.Error(err))
	}
	return res, nil
}

func clean(in Input) (Input, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Source = strings.TrimSpace(in.Source)

	if in.Phone == "" {
		return in, eris.Wrap(ErrInvalidInput, "phone is required")
	}
	if in.Email != "" {
		addr, err := mail.ParseAddress(in.Email)
		if err != nil {
			return in, eris.Wrapf(ErrInvalidInput, "email %q", in.Email)
		}
		in.Email = addr.Address
	}
	return in, nil
}

// storedPhone keeps the canonical local number when there is one so later
// variant lookups hit it.
func storedPhone(raw string) string {
	if local := phone.Local(raw); local != "" {
		return local
	}
	return phone.Clean(raw)
}

// Package eligibility decides whether a phone number may be onboarded as a
// new lead. A number is rejected when it is malformed, sits on a partner
// suppression list, or already belongs to an active lead or borrower.
package eligibility

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/lead-crm/internal/metrics"
	"github.com/sells-group/lead-crm/internal/model"
	"github.com/sells-group/lead-crm/internal/phone"
)

// ListChecker reports the partner lists a digits-only phone appears on.
type ListChecker interface {
	Check(ctx context.Context, phone string) ([]string, error)
}

// RecordFinder looks up the most recently updated active record among the
// given phone variants. Both methods return nil, nil when nothing matches.
type RecordFinder interface {
	FindActiveLeadByPhones(ctx context.Context, phones []string) (*model.Lead, error)
	FindActiveBorrowerByPhones(ctx context.Context, phones []string) (*model.Borrower, error)
}

// Resolver runs the eligibility checks in a fixed order: format, partner
// lists, then local records. It holds no per-request state.
type Resolver struct {
	lists   ListChecker
	records RecordFinder
}

// NewResolver wires a resolver.
func NewResolver(lists ListChecker, records RecordFinder) *Resolver {
	return &Resolver{lists: lists, records: records}
}

// Check returns the verdict for raw. It never returns an error: failures are
// reported as an ineligible result whose Notes carry the cause.
func (r *Resolver) Check(ctx context.Context, raw string) (result model.EligibilityResult) {
	log := zap.L().With(zap.String("phone", phone.Clean(raw)))

	defer func() {
		if p := recover(); p != nil {
			log.Error("eligibility: recovered panic", zap.Any("panic", p))
			result = model.Ineligible(model.ReasonUnknown, fmt.Sprintf("Unexpected error: %v", p))
		}
		metrics.EligibilityChecks.WithLabelValues(string(result.Reason)).Inc()
		log.Debug("eligibility: verdict",
			zap.Bool("eligible", result.IsEligible),
			zap.String("reason", string(result.Reason)),
		)
	}()

	if !phone.IsValid(raw) {
		return model.Ineligible(model.ReasonInvalidPhone, "Invalid phone number format")
	}

	lists, err := r.checkLists(ctx, phone.Digits(raw))
	if err != nil {
		log.Warn("eligibility: list check failed", zap.Error(err))
		return model.Ineligible(model.ReasonUpstreamUnavailable, "List check failed: "+err.Error())
	}

	variants := phone.Normalize(raw)

	lead, err := r.records.FindActiveLeadByPhones(ctx, variants)
	if err != nil {
		log.Error("eligibility: lead lookup failed", zap.Error(err))
		return model.Ineligible(model.ReasonUnknown, "Record lookup failed: "+err.Error())
	}

	var borrower *model.Borrower
	if lead == nil {
		borrower, err = r.records.FindActiveBorrowerByPhones(ctx, variants)
		if err != nil {
			log.Error("eligibility: borrower lookup failed", zap.Error(err))
			return model.Ineligible(model.ReasonUnknown, "Record lookup failed: "+err.Error())
		}
	}

	return verdict(lists, lead, borrower)
}

func (r *Resolver) checkLists(ctx context.Context, digits string) ([]string, error) {
	start := time.Now()
	lists, err := r.lists.Check(ctx, digits)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.ListCheckDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	return lists, err
}

// verdict applies the priority: partner list, then existing lead, then
// existing borrower.
func verdict(lists []string, lead *model.Lead, borrower *model.Borrower) model.EligibilityResult {
	switch {
	case len(lists) > 0:
		res := model.Ineligible(model.ReasonListed, "Phone number found in lists: "+strings.Join(lists, ", "))
		res.Lists = lists
		res.ExistingLead = refLead(lead)
		res.ExistingBorrower = refBorrower(borrower)
		return res
	case lead != nil:
		res := model.Ineligible(model.ReasonDuplicateLead,
			fmt.Sprintf("Duplicate of existing lead %s (status: %s)", lead.ID, lead.Status))
		res.ExistingLead = lead.Ref()
		return res
	case borrower != nil:
		res := model.Ineligible(model.ReasonDuplicateBorrower,
			fmt.Sprintf("Existing borrower %s (status: %s)", borrower.ID, borrower.Status))
		res.ExistingBorrower = borrower.Ref()
		return res
	}
	return model.Eligible()
}

func refLead(l *model.Lead) *model.LeadRef {
	if l == nil {
		return nil
	}
	return l.Ref()
}

func refBorrower(b *model.Borrower) *model.BorrowerRef {
	if b == nil {
		return nil
	}
	return b.Ref()
}

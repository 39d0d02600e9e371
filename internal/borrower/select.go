package borrower

import (
	"strings"
	"time"

	"github.com/sells-group/lead-crm/internal/model"
)

// completionLayouts are the date shapes seen in loan_completed_date.
var completionLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02/01/2006",
	"2006/01/02",
}

// parseCompletion returns the zero time when s matches no known layout.
func parseCompletion(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range completionLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// SelectPrimary picks the loan the sales team should work on: the first
// active overdue loan, else the first active loan, else the completed loan
// with the latest completion date (earliest in input order on ties). It
// returns nil for an empty slice. The result points into loans.
func SelectPrimary(loans []model.LoanRecord) *model.LoanRecord {
	var (
		firstActive *model.LoanRecord
		latest      *model.LoanRecord
		latestAt    time.Time
	)

	for i := range loans {
		l := &loans[i]
		if l.Active() {
			if l.Overdue() {
				return l
			}
			if firstActive == nil {
				firstActive = l
			}
			continue
		}
		at := parseCompletion(l.LoanCompletedDate)
		if latest == nil || at.After(latestAt) {
			latest, latestAt = l, at
		}
	}

	if firstActive != nil {
		return firstActive
	}
	return latest
}

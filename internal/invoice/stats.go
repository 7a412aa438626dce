package invoice

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	recentLimit = 5
	statsMonths = 6
)

type Stats struct {
	TotalRevenue  int64
	PendingAmount int64
	OverdueAmount int64

	InvoiceCount   int
	PaidCount      int
	PendingCount   int
	OverdueCount   int
	CancelledCount int

	Recent  []*Invoice
	Monthly []MonthStats
}

type MonthStats struct {
	Year    int
	Month   time.Month
	Revenue int64
	Created int
}

// Stats aggregates the owner's invoices for the dashboard. Revenue is
// bucketed by payment month, creation counts by creation month, over the
// last six calendar months including the current one.
func (s *Service) Stats(ctx context.Context, ownerID uuid.UUID) (*Stats, error) {
	invoices, err := s.List(ctx, ownerID, ListFilter{})
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(statsMonths - 1), 0)

	st := &Stats{
		InvoiceCount: len(invoices),
		Recent:       invoices[:min(recentLimit, len(invoices))],
		Monthly:      make([]MonthStats, statsMonths),
	}

	for i := range st.Monthly {
		m := first.AddDate(0, i, 0)
		st.Monthly[i] = MonthStats{Year: m.Year(), Month: m.Month()}
	}

	bucket := func(t time.Time) int {
		t = t.UTC()
		idx := (t.Year()-first.Year())*12 + int(t.Month()-first.Month())

		if idx < 0 || idx >= statsMonths {
			return -1
		}

		return idx
	}

	for _, inv := range invoices {
		switch inv.Status {
		case StatusPaid:
			st.PaidCount++
			st.TotalRevenue += inv.Total

			if inv.PaidAt != nil {
				if i := bucket(*inv.PaidAt); i >= 0 {
					st.Monthly[i].Revenue += inv.Total
				}
			}
		case StatusPending:
			st.PendingCount++
			st.PendingAmount += inv.Total
		case StatusOverdue:
			st.OverdueCount++
			st.OverdueAmount += inv.Total
		case StatusCancelled:
			st.CancelledCount++
		}

		if i := bucket(inv.CreatedAt); i >= 0 {
			st.Monthly[i].Created++
		}
	}

	return st, nil
}

package invoice_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/MrJamesThe3rd/cryptofund/internal/invoice"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from invoice.Status
		to   invoice.Status
		want bool
	}{
		{invoice.StatusPending, invoice.StatusPaid, true},
		{invoice.StatusPending, invoice.StatusCancelled, true},
		{invoice.StatusPending, invoice.StatusOverdue, true},
		{invoice.StatusOverdue, invoice.StatusPaid, true},
		{invoice.StatusOverdue, invoice.StatusCancelled, true},
		{invoice.StatusOverdue, invoice.StatusPending, false},
		{invoice.StatusPending, invoice.StatusPending, false},
		{invoice.StatusPaid, invoice.StatusCancelled, false},
		{invoice.StatusPaid, invoice.StatusPending, false},
		{invoice.StatusCancelled, invoice.StatusPaid, false},
		{invoice.StatusCancelled, invoice.StatusOverdue, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, invoice.CanTransition(tt.from, tt.to))
		})
	}
}

func TestStatus_Terminal(t *testing.T) {
	assert.True(t, invoice.StatusPaid.Terminal())
	assert.True(t, invoice.StatusCancelled.Terminal())
	assert.False(t, invoice.StatusPending.Terminal())
	assert.False(t, invoice.StatusOverdue.Terminal())
	assert.False(t, invoice.Status("archived").Valid())
}

func TestEffective(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, invoice.StatusOverdue, invoice.Effective(invoice.StatusPending, now.Add(-time.Second), now))
	assert.Equal(t, invoice.StatusPending, invoice.Effective(invoice.StatusPending, now, now))
	assert.Equal(t, invoice.StatusPending, invoice.Effective(invoice.StatusPending, now.Add(time.Hour), now))
	assert.Equal(t, invoice.StatusPaid, invoice.Effective(invoice.StatusPaid, now.Add(-time.Hour), now))
	assert.Equal(t, invoice.StatusCancelled, invoice.Effective(invoice.StatusCancelled, now.Add(-time.Hour), now))
}

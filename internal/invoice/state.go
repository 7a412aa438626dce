package invoice

import (
	"slices"
	"time"
)

type transitionChart map[Status][]Status

// Paid and cancelled have no entry and are therefore terminal.
var transitions = transitionChart{
	StatusPending: {StatusPaid, StatusCancelled, StatusOverdue},
	StatusOverdue: {StatusPaid, StatusCancelled},
}

func (c transitionChart) Allowed(from, to Status) bool {
	return slices.Contains(c[from], to)
}

// Sources lists every status from which to can be reached.
func (c transitionChart) Sources(to Status) []Status {
	var from []Status

	for _, s := range statuses {
		if c.Allowed(s, to) {
			from = append(from, s)
		}
	}

	return from
}

func CanTransition(from, to Status) bool {
	return transitions.Allowed(from, to)
}

// Effective derives the status reported to readers: a pending invoice past
// its due date is overdue.
func Effective(status Status, due, now time.Time) Status {
	if status == StatusPending && due.Before(now) {
		return StatusOverdue
	}

	return status
}

// Package calendar provides access to the user's busy blocks. Concrete
// sources (mock, ICS subscription) are injected; callers never branch on
// the implementation.
package calendar

import (
	"context"
	"sort"
	"time"

	"railwatch/internal/model"
)

// Source exposes the calendar collaborator contract. No ordering guarantee
// is required of the result; callers re-sort.
type Source interface {
	BusyBlocks(ctx context.Context, from, to time.Time) ([]model.BusyBlock, error)
}

// NextUpcoming returns the busy block with the soonest start strictly after
// now, or ok=false when none exists.
func NextUpcoming(blocks []model.BusyBlock, now time.Time) (model.BusyBlock, bool) {
	future := make([]model.BusyBlock, 0, len(blocks))
	for _, b := range blocks {
		if b.Start.After(now) {
			future = append(future, b)
		}
	}
	if len(future) == 0 {
		return model.BusyBlock{}, false
	}
	sort.Slice(future, func(i, j int) bool { return future[i].Start.Before(future[j].Start) })
	return future[0], true
}

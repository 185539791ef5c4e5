package metrics

import (
	"time"

	"github.com/pable/go-smash-metrics/internal/model"
)

// Filter is a predicate over a player aggregate. Filters are independent
// of one another, so application order never changes the result.
type Filter func(*model.PlayerAggregate) bool

// ByState keeps players whose home state (explicit or inferred) is one of
// the given states.
func ByState(states ...string) Filter {
	set := make(map[string]struct{}, len(states))
	for _, s := range states {
		set[s] = struct{}{}
	}
	return func(a *model.PlayerAggregate) bool {
		_, ok := set[a.State]
		return ok
	}
}

// MinAvgEntrants keeps players whose average event size is at least n.
// Players with no event-size data are dropped.
func MinAvgEntrants(n float64) Filter {
	return func(a *model.PlayerAggregate) bool {
		return a.AvgEventEntrants != nil && *a.AvgEventEntrants >= n
	}
}

// MaxAvgEntrants keeps players whose average event size is at most n.
func MaxAvgEntrants(n float64) Filter {
	return func(a *model.PlayerAggregate) bool {
		return a.AvgEventEntrants != nil && *a.AvgEventEntrants <= n
	}
}

// ActiveSince keeps players whose most recent event started at or after t.
func ActiveSince(t time.Time) Filter {
	return func(a *model.PlayerAggregate) bool {
		return !a.LastEventAt.Before(t)
	}
}

// MinSets keeps players with at least n decided sets.
func MinSets(n int) Filter {
	return func(a *model.PlayerAggregate) bool {
		return a.SetCount() >= n
	}
}

// Apply filters aggregates, preserving order. No filters means identity.
func Apply(aggs []model.PlayerAggregate, filters ...Filter) []model.PlayerAggregate {
	if len(filters) == 0 {
		return aggs
	}
	out := make([]model.PlayerAggregate, 0, len(aggs))
	for i := range aggs {
		keep := true
		for _, f := range filters {
			if !f(&aggs[i]) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, aggs[i])
		}
	}
	return out
}

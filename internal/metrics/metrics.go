// Package metrics aggregates player event records into per-player
// competency metrics.
package metrics

import (
	"sort"
	"strings"
	"time"

	"github.com/pable/go-smash-metrics/internal/model"
)

// Default bounds for the opponent-strength set weighting. A set against
// the top seed of an event weighs DefaultMaxSetWeight, a set against the
// bottom seed weighs DefaultMinSetWeight.
const (
	DefaultMinSetWeight = 0.25
	DefaultMaxSetWeight = 1.75
)

// Options tunes an aggregation run.
type Options struct {
	// TargetCharacter scopes the character metrics, e.g. "Fox".
	TargetCharacter string
	// AssumeTargetMain treats players with zero target-character sets as
	// target mains: their character metrics fall back to overall rates.
	AssumeTargetMain bool
	// MinSetWeight/MaxSetWeight bound the per-set weight. Zero values
	// fall back to the defaults.
	MinSetWeight float64
	MaxSetWeight float64
}

func (o Options) weights() (lo, hi float64) {
	lo, hi = o.MinSetWeight, o.MaxSetWeight
	if lo == 0 && hi == 0 {
		lo, hi = DefaultMinSetWeight, DefaultMaxSetWeight
	}
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo, hi
}

// setWeight maps an opponent's seed percentile onto [lo, hi] linearly.
// Unseeded opponents take the midpoint.
func setWeight(pct float64, lo, hi float64) float64 {
	if pct <= 0 {
		return (lo + hi) / 2
	}
	if pct > 1 {
		pct = 1
	}
	return lo + (hi-lo)*pct
}

// accum carries one player's running tallies across records.
type accum struct {
	tag string

	explicitState string
	stateCounts   map[string]int
	stateLatest   map[string]time.Time

	events      int
	tournaments map[string]struct{}

	setsPlayed int
	wins       int
	losses     int

	weightSum    float64
	weightedWins float64

	seedDeltaSum float64
	seedDeltaN   int

	oppPctSum float64
	oppPctN   int

	upsets   int
	upsetOps int

	knownGames  int
	targetGames int

	charSets        int
	charSetWins     int
	charWeightSum   float64
	charWeightedWin float64

	entrantsSum int
	entrantsN   int
	maxEntrants int
	lastEvent   time.Time
}

// Aggregate computes one PlayerAggregate per player seen in records. The
// result is deterministic: sorted by player id and independent of record
// order. Metrics with a zero denominator stay nil.
func Aggregate(records []model.PlayerEventResult, opts Options) []model.PlayerAggregate {
	lo, hi := opts.weights()
	target := strings.ToLower(strings.TrimSpace(opts.TargetCharacter))

	// ---- Pass 1: accumulate per player. ----

	players := make(map[string]*accum)
	for _, r := range records {
		a := players[r.PlayerID]
		if a == nil {
			a = &accum{
				stateCounts: make(map[string]int),
				stateLatest: make(map[string]time.Time),
				tournaments: make(map[string]struct{}),
			}
			players[r.PlayerID] = a
		}
		switch {
		case a.tag == "" || r.StartAt.After(a.lastEvent):
			a.tag = r.GamerTag
		case r.StartAt.Equal(a.lastEvent) && r.GamerTag != "" && r.GamerTag < a.tag:
			// Equal timestamps break lexically so the kept tag never
			// depends on input order.
			a.tag = r.GamerTag
		}
		if a.explicitState == "" && r.PlayerState != "" {
			a.explicitState = r.PlayerState
		}
		if r.EventState != "" {
			a.stateCounts[r.EventState]++
			if r.StartAt.After(a.stateLatest[r.EventState]) {
				a.stateLatest[r.EventState] = r.StartAt
			}
		}

		a.events++
		if r.TournamentID != "" {
			a.tournaments[r.TournamentID] = struct{}{}
		}
		if r.Entrants > 0 {
			a.entrantsSum += r.Entrants
			a.entrantsN++
			if r.Entrants > a.maxEntrants {
				a.maxEntrants = r.Entrants
			}
		}
		if r.StartAt.After(a.lastEvent) {
			a.lastEvent = r.StartAt
		}
		if r.Seed > 0 && r.Placement > 0 {
			a.seedDeltaSum += float64(r.Seed - r.Placement)
			a.seedDeltaN++
		}

		for _, s := range r.Sets {
			accumulateSet(a, &r, &s, target, lo, hi)
		}
	}

	// ---- Pass 2: finalize into aggregates. ----

	out := make([]model.PlayerAggregate, 0, len(players))
	for id, a := range players {
		out = append(out, finalize(id, a, opts))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out
}

func accumulateSet(a *accum, r *model.PlayerEventResult, s *model.SetResult, target string, lo, hi float64) {
	a.setsPlayed++
	if s.Won {
		a.wins++
	} else {
		a.losses++
	}

	pct := r.SeedPercentile(s.OpponentSeed)
	w := setWeight(pct, lo, hi)
	a.weightSum += w
	if s.Won {
		a.weightedWins += w
	}
	if s.OpponentSeed > 0 {
		a.oppPctSum += pct
		a.oppPctN++
	}
	if s.OpponentSeed > 0 && r.Seed > 0 {
		a.upsetOps++
		if s.Won && s.OpponentSeed < r.Seed {
			a.upsets++
		}
	}

	if target == "" {
		return
	}
	onTarget := false
	for _, g := range s.Games {
		if !g.HasPick || !g.Character.Known {
			continue
		}
		a.knownGames++
		if strings.EqualFold(g.Character.Name, target) {
			a.targetGames++
			onTarget = true
		}
	}
	if onTarget {
		a.charSets++
		a.charWeightSum += w
		if s.Won {
			a.charSetWins++
			a.charWeightedWin += w
		}
	}
}

func finalize(id string, a *accum, opts Options) model.PlayerAggregate {
	agg := model.PlayerAggregate{
		PlayerID:          id,
		GamerTag:          a.tag,
		Events:            a.events,
		TournamentsPlayed: len(a.tournaments),
		SetsPlayed:        a.setsPlayed,
		SetWins:           a.wins,
		SetLosses:         a.losses,
		MaxEventEntrants:  a.maxEntrants,
		LastEventAt:       a.lastEvent,
		ActivityScore:     float64(a.events) + 0.1*float64(a.setsPlayed),
	}

	agg.State, agg.StateInferred, agg.StateConfidence = resolveState(a)

	if n := a.wins + a.losses; n > 0 {
		agg.WinRate = ratio(float64(a.wins), float64(n))
	}
	if a.weightSum > 0 {
		agg.WeightedWinRate = ratio(a.weightedWins, a.weightSum)
	}
	if a.seedDeltaN > 0 {
		agg.SeedDelta = ratio(a.seedDeltaSum, float64(a.seedDeltaN))
	}
	if a.oppPctN > 0 {
		agg.OpponentStrength = ratio(a.oppPctSum, float64(a.oppPctN))
	}
	if a.upsetOps > 0 {
		agg.UpsetRate = ratio(float64(a.upsets), float64(a.upsetOps))
	}
	if a.entrantsN > 0 {
		agg.AvgEventEntrants = ratio(float64(a.entrantsSum), float64(a.entrantsN))
	}

	if opts.TargetCharacter == "" {
		return agg
	}

	switch {
	case a.targetGames > 0:
		agg.CharacterUsageRate = ratio(float64(a.targetGames), float64(a.knownGames))
		agg.CharacterSets = a.charSets
		if a.charSets > 0 {
			agg.CharacterWinRate = ratio(float64(a.charSetWins), float64(a.charSets))
		}
		if a.charWeightSum > 0 {
			agg.CharacterWeightedWinRate = ratio(a.charWeightedWin, a.charWeightSum)
		}
	case opts.AssumeTargetMain && a.setsPlayed > 0:
		// No target-character sets: optionally assume the player mains
		// the target and reuse the overall rates.
		agg.AssumedMain = true
		one := 1.0
		agg.CharacterUsageRate = &one
		agg.CharacterSets = a.setsPlayed
		agg.CharacterWinRate = agg.WinRate
		agg.CharacterWeightedWinRate = agg.WeightedWinRate
	case a.knownGames > 0:
		zero := 0.0
		agg.CharacterUsageRate = &zero
	}
	return agg
}

// resolveState picks the home state: explicit profile state wins outright,
// otherwise the modal event state with most-recent-event tie-breaking.
func resolveState(a *accum) (state string, inferred bool, confidence float64) {
	if a.explicitState != "" {
		return a.explicitState, false, 1.0
	}
	total := 0
	for _, n := range a.stateCounts {
		total += n
	}
	if total == 0 {
		return "", false, 0
	}
	best, bestN := "", 0
	for s, n := range a.stateCounts {
		switch {
		case n > bestN:
			best, bestN = s, n
		case n == bestN && a.stateLatest[s].After(a.stateLatest[best]):
			best = s
		case n == bestN && a.stateLatest[s].Equal(a.stateLatest[best]) && s < best:
			// Full tie: fall back to lexical order so results stay
			// deterministic.
			best = s
		}
	}
	return best, true, float64(bestN) / float64(total)
}

func ratio(num, den float64) *float64 {
	v := num / den
	return &v
}

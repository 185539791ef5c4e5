package model

import "time"

// Character is a normalized character pick. Known is false when the raw
// selection could not be resolved against the videogame's character list;
// such picks are excluded from character metrics but still count toward
// win/loss tallies.
type Character struct {
	Name  string
	Known bool
}

// GameResult is a single game inside a set, from the player's perspective.
type GameResult struct {
	Won       bool
	Character Character
	HasPick   bool // false when the game reported no selection for the player
}

// SetResult is one completed set from the player's perspective.
type SetResult struct {
	SetID        string
	Won          bool
	OpponentID   string
	OpponentTag  string
	OpponentSeed int // 0 when the opponent had no seed
	Round        string
	DisplayScore string
	CompletedAt  time.Time
	Games        []GameResult
}

// PlayerEventResult is the canonical record: one player's complete run
// through one event. Sets may be empty (bye or DQ before playing).
type PlayerEventResult struct {
	PlayerID       string
	GamerTag       string
	EventID        string
	EventName      string
	TournamentID   string
	TournamentName string
	EventState     string // US state code of the hosting tournament, may be empty
	StartAt        time.Time
	Entrants       int
	Seed           int // 0 when the player was unseeded
	Placement      int // 0 when no final placement was published
	Sets           []SetResult
	PlayerState    string // explicit state from the player's profile, may be empty
}

// SeedPercentile maps a seed within this event onto [0,1], 1.0 for the top
// seed. Returns 0 for unseeded players or empty events.
func (r *PlayerEventResult) SeedPercentile(seed int) float64 {
	if seed <= 0 || r.Entrants <= 0 {
		return 0
	}
	p := 1 - float64(seed-1)/float64(r.Entrants)
	if p < 0 {
		return 0
	}
	return p
}

// PlayerAggregate holds metrics for a single player aggregated across all
// assembled event results. Pointer fields are nil when the underlying
// denominator is zero; they are never reported as 0.
type PlayerAggregate struct {
	PlayerID string
	GamerTag string

	// Home state: explicit profile state when available, otherwise the
	// modal state across attended events. Confidence is the share of
	// events in the modal state (1.0 for explicit).
	State           string
	StateInferred   bool
	StateConfidence float64

	Events            int
	TournamentsPlayed int
	SetsPlayed        int
	SetWins           int
	SetLosses         int

	WinRate          *float64
	WeightedWinRate  *float64
	SeedDelta        *float64 // mean(seed − placement), positive = outperformed seed
	OpponentStrength *float64 // mean opponent seed percentile over decided sets
	UpsetRate        *float64 // share of decided sets won against better-seeded opponents

	// Target-character metrics. AssumedMain marks players with zero
	// target-character sets whose character metrics fell back to overall
	// rates.
	CharacterUsageRate       *float64 // target games / games with a known pick
	CharacterSets            int
	CharacterWinRate         *float64
	CharacterWeightedWinRate *float64
	AssumedMain              bool

	ActivityScore    float64 // events + 0.1 per set played
	AvgEventEntrants *float64
	MaxEventEntrants int
	LastEventAt      time.Time
}

// SetCount returns decided sets (wins + losses).
func (a *PlayerAggregate) SetCount() int {
	return a.SetWins + a.SetLosses
}

// TournamentSummary is a lightweight record for list/summary commands.
type TournamentSummary struct {
	ID           string
	Name         string
	Slug         string
	State        string
	StartAt      time.Time
	NumAttendees int
	EventCount   int
}

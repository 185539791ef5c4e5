// Package assembler joins raw event payloads (seeds, standings, sets)
// into per-player per-event records.
package assembler

import (
	"fmt"
	"strconv"
	"time"

	crerr "github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/pable/go-smash-metrics/internal/model"
	"github.com/pable/go-smash-metrics/internal/startgg"
)

// ErrMalformedRecord marks payload units that could not be assembled.
// Malformed units are logged and skipped, never silently dropped.
var ErrMalformedRecord = crerr.New("assembler: malformed record")

// Skips tallies the units dropped during assembly.
type Skips struct {
	Events   int
	Entrants int
	Sets     int
}

// Total returns the sum of all skip counters.
func (s Skips) Total() int {
	return s.Events + s.Entrants + s.Sets
}

// Assembler turns event bundles into player records.
type Assembler struct {
	norm *Normalizer
	log  *zap.Logger
}

// New returns an assembler using the given character normalizer. A nil
// logger disables logging.
func New(norm *Normalizer, log *zap.Logger) *Assembler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Assembler{norm: norm, log: log}
}

// Assemble produces one record per entrant in each bundle's standings.
// Entrants without any sets (byes, DQs before playing) keep an empty Sets
// slice. Non-singles events are skipped entirely.
func (a *Assembler) Assemble(bundles []*startgg.EventBundle) ([]model.PlayerEventResult, Skips) {
	var out []model.PlayerEventResult
	var skips Skips

	for _, b := range bundles {
		records, err := a.assembleEvent(b)
		if err != nil {
			a.log.Warn("skipping event",
				zap.Int64("event_id", b.Event.ID),
				zap.String("tournament", b.Tournament.Name),
				zap.Error(err))
			skips.Events++
			continue
		}
		for _, r := range records {
			if r.err != nil {
				a.log.Warn("skipping entrant",
					zap.Int64("event_id", b.Event.ID),
					zap.Error(r.err))
				skips.Entrants++
				continue
			}
			skips.Sets += r.skippedSets
			out = append(out, r.result)
		}
	}
	return out, skips
}

type entrantRecord struct {
	result      model.PlayerEventResult
	skippedSets int
	err         error
}

func (a *Assembler) assembleEvent(b *startgg.EventBundle) ([]entrantRecord, error) {
	if b.Event.ID == 0 {
		return nil, fmt.Errorf("%w: event without id", ErrMalformedRecord)
	}
	if !b.Event.Singles() {
		return nil, fmt.Errorf("%w: not a singles event", ErrMalformedRecord)
	}
	if len(b.Standings) == 0 {
		return nil, fmt.Errorf("%w: event has no standings", ErrMalformedRecord)
	}

	entrants := b.Event.NumEntrantsOr(len(b.Standings))

	seedOf := make(map[int64]int, len(b.Seeds))
	for _, s := range b.Seeds {
		if s.Entrant == nil {
			continue
		}
		seedOf[s.Entrant.ID] = s.SeedNum
	}

	setsOf := make(map[int64][]startgg.Set)
	for _, set := range b.Sets {
		for _, slot := range set.Slots {
			if slot.Entrant != nil {
				setsOf[slot.Entrant.ID] = append(setsOf[slot.Entrant.ID], set)
			}
		}
	}

	var state string
	if b.Tournament.AddrState != nil {
		state = *b.Tournament.AddrState
	}
	var startAt time.Time
	if ts := b.Event.StartAt; ts != nil {
		startAt = time.Unix(*ts, 0).UTC()
	} else if ts := b.Tournament.StartAt; ts != nil {
		startAt = time.Unix(*ts, 0).UTC()
	}

	records := make([]entrantRecord, 0, len(b.Standings))
	for _, st := range b.Standings {
		rec := a.assembleEntrant(b, st, seedOf, setsOf, state, startAt, entrants)
		records = append(records, rec)
	}
	return records, nil
}

func (a *Assembler) assembleEntrant(
	b *startgg.EventBundle,
	st startgg.Standing,
	seedOf map[int64]int,
	setsOf map[int64][]startgg.Set,
	state string,
	startAt time.Time,
	entrants int,
) entrantRecord {
	if st.Entrant == nil {
		return entrantRecord{err: fmt.Errorf("%w: standing without entrant", ErrMalformedRecord)}
	}
	entrant := st.Entrant
	if len(entrant.Participants) != 1 {
		return entrantRecord{err: fmt.Errorf(
			"%w: entrant %d has %d participants, want 1",
			ErrMalformedRecord, entrant.ID, len(entrant.Participants))}
	}
	part := entrant.Participants[0]

	playerID, tag := identify(entrant, part)
	if playerID == "" {
		return entrantRecord{err: fmt.Errorf(
			"%w: entrant %d has no resolvable player", ErrMalformedRecord, entrant.ID)}
	}

	result := model.PlayerEventResult{
		PlayerID:       playerID,
		GamerTag:       tag,
		EventID:        strconv.FormatInt(b.Event.ID, 10),
		EventName:      b.Event.Name,
		TournamentID:   strconv.FormatInt(b.Tournament.ID, 10),
		TournamentName: b.Tournament.Name,
		EventState:     state,
		StartAt:        startAt,
		Entrants:       entrants,
		Seed:           seedOf[entrant.ID],
		Placement:      st.Placement,
		PlayerState:    profileState(part),
		Sets:           []model.SetResult{},
	}

	var skipped int
	for _, set := range setsOf[entrant.ID] {
		sr, err := a.assembleSet(set, entrant.ID, seedOf)
		if err != nil {
			a.log.Debug("skipping set",
				zap.Int64("set_id", set.ID), zap.Error(err))
			skipped++
			continue
		}
		result.Sets = append(result.Sets, sr)
	}
	return entrantRecord{result: result, skippedSets: skipped}
}

func (a *Assembler) assembleSet(set startgg.Set, entrantID int64, seedOf map[int64]int) (model.SetResult, error) {
	if len(set.Slots) != 2 {
		return model.SetResult{}, fmt.Errorf(
			"%w: set %d has %d slots", ErrMalformedRecord, set.ID, len(set.Slots))
	}
	var opponent *startgg.Entrant
	for _, slot := range set.Slots {
		if slot.Entrant == nil {
			return model.SetResult{}, fmt.Errorf(
				"%w: set %d has an empty slot", ErrMalformedRecord, set.ID)
		}
		if slot.Entrant.ID != entrantID {
			opponent = slot.Entrant
		}
	}
	if opponent == nil {
		return model.SetResult{}, fmt.Errorf(
			"%w: set %d does not include entrant %d's opponent", ErrMalformedRecord, set.ID, entrantID)
	}
	if set.WinnerID == nil {
		return model.SetResult{}, fmt.Errorf(
			"%w: set %d has no winner", ErrMalformedRecord, set.ID)
	}

	sr := model.SetResult{
		SetID:        strconv.FormatInt(set.ID, 10),
		Won:          *set.WinnerID == entrantID,
		OpponentID:   opponentPlayerID(opponent),
		OpponentTag:  opponentTag(opponent),
		OpponentSeed: seedOf[opponent.ID],
	}
	if set.FullRoundText != nil {
		sr.Round = *set.FullRoundText
	}
	if set.DisplayScore != nil {
		sr.DisplayScore = *set.DisplayScore
	}
	if set.CompletedAt != nil {
		sr.CompletedAt = time.Unix(*set.CompletedAt, 0).UTC()
	}

	for _, g := range set.Games {
		gr := model.GameResult{}
		if g.WinnerID != nil {
			gr.Won = *g.WinnerID == entrantID
		}
		for _, sel := range g.Selections {
			if sel.SelectionType != "" && sel.SelectionType != "CHARACTER" {
				continue
			}
			if sel.Entrant == nil || sel.Entrant.ID != entrantID {
				continue
			}
			gr.Character = a.resolveSelection(sel)
			gr.HasPick = true
		}
		sr.Games = append(sr.Games, gr)
	}
	return sr, nil
}

// resolveSelection prefers the inline character name and falls back to the
// numeric selection value through the character map.
func (a *Assembler) resolveSelection(sel startgg.Selection) model.Character {
	if sel.Character != nil && sel.Character.Name != nil && *sel.Character.Name != "" {
		return a.norm.ResolveName(*sel.Character.Name)
	}
	if sel.SelectionValue != nil {
		return a.norm.ResolveID(*sel.SelectionValue)
	}
	return model.Character{}
}

// identify resolves the stable player id and display tag for an entrant.
// The persistent player id is preferred; participant id is the fallback
// for profiles without one.
func identify(entrant *startgg.Entrant, part startgg.Participant) (id, tag string) {
	if part.Player != nil && part.Player.ID != 0 {
		id = strconv.FormatInt(part.Player.ID, 10)
		tag = part.Player.GamerTag
	} else if part.ID != 0 {
		id = "p" + strconv.FormatInt(part.ID, 10)
		tag = part.GamerTag
	}
	if tag == "" {
		tag = entrant.Name
	}
	return id, tag
}

func opponentPlayerID(e *startgg.Entrant) string {
	if len(e.Participants) == 1 {
		id, _ := identify(e, e.Participants[0])
		return id
	}
	return "e" + strconv.FormatInt(e.ID, 10)
}

func opponentTag(e *startgg.Entrant) string {
	if len(e.Participants) == 1 {
		_, tag := identify(e, e.Participants[0])
		return tag
	}
	return e.Name
}

func profileState(part startgg.Participant) string {
	if part.User != nil && part.User.Location != nil && part.User.Location.State != nil {
		return *part.User.Location.State
	}
	return ""
}

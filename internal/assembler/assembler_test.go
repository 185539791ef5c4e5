package assembler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pable/go-smash-metrics/internal/startgg"
)

const (
	playerFox   = int64(100)
	playerMarth = int64(200)
	playerPuff  = int64(300)
)

func ptr[T any](v T) *T { return &v }

func testNormalizer() *Normalizer {
	return NewNormalizer([]startgg.Character{
		{ID: 1, Name: "Fox"},
		{ID: 2, Name: "Marth"},
		{ID: 3, Name: "Jigglypuff"},
	})
}

// makeEntrant builds a singles entrant whose persistent player id matches
// the entrant id.
func makeEntrant(id int64, tag string) *startgg.Entrant {
	return &startgg.Entrant{
		ID:   id,
		Name: tag,
		Participants: []startgg.Participant{{
			ID:       id + 9000,
			GamerTag: tag,
			Player:   &startgg.Player{ID: id, GamerTag: tag},
		}},
	}
}

func makeSet(id int64, a, b *startgg.Entrant, winnerID int64) startgg.Set {
	return startgg.Set{
		ID:       id,
		WinnerID: ptr(winnerID),
		Slots:    []startgg.SetSlot{{Entrant: a}, {Entrant: b}},
	}
}

func makeBundle(sets []startgg.Set, seeds []startgg.Seed, standings []startgg.Standing) *startgg.EventBundle {
	return &startgg.EventBundle{
		Tournament: startgg.Tournament{
			ID: 1, Name: "Weekly #12", AddrState: ptr("GA"), StartAt: ptr(int64(1700000000)),
		},
		Event: startgg.Event{
			ID: 10, Name: "Melee Singles", NumEntrants: ptr(len(standings)),
		},
		Seeds:     seeds,
		Standings: standings,
		Sets:      sets,
	}
}

// Two entrants, one set: both get a record, joined by entrant id, with
// seeds and placements attached.
func TestAssembleJoinsSeedsStandingsSets(t *testing.T) {
	fox := makeEntrant(playerFox, "fox_main")
	marth := makeEntrant(playerMarth, "swordie")

	bundle := makeBundle(
		[]startgg.Set{makeSet(1, fox, marth, playerFox)},
		[]startgg.Seed{
			{ID: 1, SeedNum: 1, Entrant: fox},
			{ID: 2, SeedNum: 2, Entrant: marth},
		},
		[]startgg.Standing{
			{Placement: 1, Entrant: fox},
			{Placement: 2, Entrant: marth},
		},
	)

	a := New(testNormalizer(), nil)
	records, skips := a.Assemble([]*startgg.EventBundle{bundle})

	require.Len(t, records, 2)
	assert.Zero(t, skips.Total())

	foxRec := records[0]
	assert.Equal(t, "100", foxRec.PlayerID)
	assert.Equal(t, "fox_main", foxRec.GamerTag)
	assert.Equal(t, "GA", foxRec.EventState)
	assert.Equal(t, 1, foxRec.Seed)
	assert.Equal(t, 1, foxRec.Placement)
	assert.Equal(t, 2, foxRec.Entrants)
	require.Len(t, foxRec.Sets, 1)
	assert.True(t, foxRec.Sets[0].Won)
	assert.Equal(t, "200", foxRec.Sets[0].OpponentID)
	assert.Equal(t, 2, foxRec.Sets[0].OpponentSeed)

	marthRec := records[1]
	require.Len(t, marthRec.Sets, 1)
	assert.False(t, marthRec.Sets[0].Won)
	assert.Equal(t, "100", marthRec.Sets[0].OpponentID)
}

// An entrant present in standings but in no set still yields a record
// with an empty set list (bye or DQ before playing).
func TestAssembleKeepsByeEntrants(t *testing.T) {
	fox := makeEntrant(playerFox, "fox_main")
	marth := makeEntrant(playerMarth, "swordie")
	puff := makeEntrant(playerPuff, "resting")

	bundle := makeBundle(
		[]startgg.Set{makeSet(1, fox, marth, playerFox)},
		nil,
		[]startgg.Standing{
			{Placement: 1, Entrant: fox},
			{Placement: 2, Entrant: marth},
			{Placement: 3, Entrant: puff},
		},
	)

	a := New(testNormalizer(), nil)
	records, skips := a.Assemble([]*startgg.EventBundle{bundle})

	require.Len(t, records, 3)
	assert.Zero(t, skips.Total())
	assert.Empty(t, records[2].Sets)
	assert.Equal(t, 3, records[2].Placement)
}

// Character selections resolve through the normalizer: inline names are
// alias-folded, numeric values go through the id map, and unknown picks
// are flagged rather than dropped.
func TestAssembleResolvesCharacters(t *testing.T) {
	fox := makeEntrant(playerFox, "fox_main")
	puff := makeEntrant(playerPuff, "resting")

	set := makeSet(1, fox, puff, playerFox)
	set.Games = []startgg.Game{
		{
			WinnerID: ptr(playerFox),
			Selections: []startgg.Selection{
				{
					SelectionType: "CHARACTER",
					Entrant:       &startgg.EntrantRef{ID: playerFox},
					Character:     &startgg.CharacterRef{ID: 1, Name: ptr("FOX")},
				},
				{
					SelectionType:  "CHARACTER",
					Entrant:        &startgg.EntrantRef{ID: playerPuff},
					SelectionValue: ptr(int64(3)),
				},
			},
		},
		{
			WinnerID: ptr(playerPuff),
			Selections: []startgg.Selection{
				{
					SelectionType: "CHARACTER",
					Entrant:       &startgg.EntrantRef{ID: playerFox},
					Character:     &startgg.CharacterRef{ID: 99, Name: ptr("Some Modded Char")},
				},
			},
		},
	}

	bundle := makeBundle(
		[]startgg.Set{set},
		nil,
		[]startgg.Standing{
			{Placement: 1, Entrant: fox},
			{Placement: 2, Entrant: puff},
		},
	)

	a := New(testNormalizer(), nil)
	records, _ := a.Assemble([]*startgg.EventBundle{bundle})

	require.Len(t, records, 2)
	foxGames := records[0].Sets[0].Games
	require.Len(t, foxGames, 2)
	assert.True(t, foxGames[0].HasPick)
	assert.Equal(t, "Fox", foxGames[0].Character.Name)
	assert.True(t, foxGames[0].Character.Known)
	assert.True(t, foxGames[1].HasPick)
	assert.False(t, foxGames[1].Character.Known)
	assert.Equal(t, "Some Modded Char", foxGames[1].Character.Name)

	puffGames := records[1].Sets[0].Games
	require.Len(t, puffGames, 2)
	assert.Equal(t, "Jigglypuff", puffGames[0].Character.Name)
	assert.True(t, puffGames[0].Character.Known)
	assert.False(t, puffGames[1].HasPick)
}

// Malformed units are skipped and counted, never fatal: an event with no
// standings, a doubles entrant, and a winnerless set each bump their
// counter while the rest assembles.
func TestAssembleSkipsMalformedUnits(t *testing.T) {
	fox := makeEntrant(playerFox, "fox_main")
	marth := makeEntrant(playerMarth, "swordie")

	empty := makeBundle(nil, nil, nil)

	duo := &startgg.Entrant{
		ID: 999, Name: "team",
		Participants: []startgg.Participant{{ID: 1}, {ID: 2}},
	}
	brokenSet := startgg.Set{
		ID:    7,
		Slots: []startgg.SetSlot{{Entrant: fox}, {Entrant: marth}},
		// no winner
	}
	mixed := makeBundle(
		[]startgg.Set{makeSet(1, fox, marth, playerMarth), brokenSet},
		nil,
		[]startgg.Standing{
			{Placement: 1, Entrant: marth},
			{Placement: 2, Entrant: fox},
			{Placement: 3, Entrant: duo},
		},
	)

	a := New(testNormalizer(), nil)
	records, skips := a.Assemble([]*startgg.EventBundle{empty, mixed})

	assert.Equal(t, 1, skips.Events)
	assert.Equal(t, 1, skips.Entrants)
	assert.Equal(t, 2, skips.Sets) // the winnerless set, seen from both entrants
	require.Len(t, records, 2)
	for _, r := range records {
		require.Len(t, r.Sets, 1)
	}
}

// Non-singles events are skipped wholesale.
func TestAssembleSkipsTeamEvents(t *testing.T) {
	fox := makeEntrant(playerFox, "fox_main")
	bundle := makeBundle(nil, nil, []startgg.Standing{{Placement: 1, Entrant: fox}})
	bundle.Event.TeamRosterSize = &startgg.TeamRosterSize{MinPlayers: 2, MaxPlayers: 2}

	a := New(testNormalizer(), nil)
	records, skips := a.Assemble([]*startgg.EventBundle{bundle})

	assert.Empty(t, records)
	assert.Equal(t, 1, skips.Events)
}

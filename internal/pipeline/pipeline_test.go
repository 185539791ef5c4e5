package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	crerr "github.com/cockroachdb/errors"

	"github.com/pable/go-smash-metrics/internal/model"
	"github.com/pable/go-smash-metrics/internal/startgg"
	"github.com/pable/go-smash-metrics/internal/storage"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

// fakeFetcher serves a canned dataset and counts remote calls.
type fakeFetcher struct {
	mu              sync.Mutex
	tournaments     []startgg.Tournament
	chars           []startgg.Character
	bundles         map[int64]*startgg.EventBundle
	tournamentCalls int
	bundleCalls     int
	lastFilter      startgg.TournamentFilter
}

func (f *fakeFetcher) Tournaments(_ context.Context, filter startgg.TournamentFilter) ([]startgg.Tournament, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tournamentCalls++
	f.lastFilter = filter
	var out []startgg.Tournament
	for _, t := range f.tournaments {
		if t.StartAt != nil && time.Unix(*t.StartAt, 0).Before(filter.AfterDate) {
			continue
		}
		if !filter.BeforeDate.IsZero() && t.StartAt != nil && time.Unix(*t.StartAt, 0).After(filter.BeforeDate) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeFetcher) FetchEventBundle(_ context.Context, t startgg.Tournament, e startgg.Event) (*startgg.EventBundle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bundleCalls++
	b, ok := f.bundles[e.ID]
	if !ok {
		b = &startgg.EventBundle{Tournament: t, Event: e}
	}
	return b, nil
}

func (f *fakeFetcher) Characters(context.Context, int64) ([]startgg.Character, error) {
	return f.chars, nil
}

func (f *fakeFetcher) calls() (tournaments, bundles int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tournamentCalls, f.bundleCalls
}

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

// fourEntrantDataset builds one tournament with one singles event:
// seeds [1,2,3,4], placements [2,1,4,3], and a single reported set, the
// final, where seed 2 beats seed 1.
func fourEntrantDataset() *fakeFetcher {
	e1 := makeEntrant(1, "alpha")
	e2 := makeEntrant(2, "bravo")
	e3 := makeEntrant(3, "charlie")
	e4 := makeEntrant(4, "delta")

	startAt := testNow.AddDate(0, -1, 0).Unix()
	event := startgg.Event{
		ID: 10, Name: "Melee Singles", NumEntrants: ptr(4), StartAt: ptr(startAt),
	}
	tournament := startgg.Tournament{
		ID: 1, Name: "Monthly", Slug: "tournament/monthly",
		AddrState: ptr("GA"), StartAt: ptr(startAt), NumAttendees: ptr(4),
		Events: []startgg.Event{event},
	}

	bundle := &startgg.EventBundle{
		Tournament: tournament,
		Event:      event,
		Seeds: []startgg.Seed{
			{ID: 1, SeedNum: 1, Entrant: e1},
			{ID: 2, SeedNum: 2, Entrant: e2},
			{ID: 3, SeedNum: 3, Entrant: e3},
			{ID: 4, SeedNum: 4, Entrant: e4},
		},
		Standings: []startgg.Standing{
			{Placement: 2, Entrant: e1},
			{Placement: 1, Entrant: e2},
			{Placement: 4, Entrant: e3},
			{Placement: 3, Entrant: e4},
		},
		Sets: []startgg.Set{
			makeSet(103, e1, e2, 2),
		},
	}

	return &fakeFetcher{
		tournaments: []startgg.Tournament{tournament},
		chars:       []startgg.Character{{ID: 1, Name: "Fox"}},
		bundles:     map[int64]*startgg.EventBundle{10: bundle},
	}
}

func newTestPipeline(t *testing.T, f Fetcher, withStore bool) *Pipeline {
	t.Helper()
	var db *storage.DB
	if withStore {
		var err error
		db, err = storage.Open(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
	}
	p := New(f, db, nil)
	p.now = func() time.Time { return testNow }
	return p
}

func findPlayer(t *testing.T, players []model.PlayerAggregate, id string) model.PlayerAggregate {
	t.Helper()
	for _, p := range players {
		if p.PlayerID == id {
			return p
		}
	}
	t.Fatalf("player %s not in result", id)
	return model.PlayerAggregate{}
}

// End-to-end over the 4-entrant scenario.
func TestGenerateFourEntrantScenario(t *testing.T) {
	p := newTestPipeline(t, fourEntrantDataset(), false)

	res, err := p.Generate(context.Background(), Options{State: "GA"})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Tournaments)
	assert.Equal(t, 1, res.Events)
	assert.Zero(t, res.Skips.Total())
	require.Len(t, res.Players, 4)

	// Seed 1 placed 2nd: delta −1.
	alpha := findPlayer(t, res.Players, "1")
	require.NotNil(t, alpha.SeedDelta)
	assert.InDelta(t, -1.0, *alpha.SeedDelta, 1e-9)

	// The winner beat the top seed; nobody faced stronger opposition.
	bravo := findPlayer(t, res.Players, "2")
	require.NotNil(t, bravo.OpponentStrength)
	assert.InDelta(t, 1.0, *bravo.OpponentStrength, 1e-9)
	for _, other := range res.Players {
		if other.OpponentStrength != nil {
			assert.GreaterOrEqual(t, *bravo.OpponentStrength, *other.OpponentStrength)
		}
	}
	require.NotNil(t, bravo.WinRate)
	assert.InDelta(t, 1.0, *bravo.WinRate, 1e-9)

	// All aggregates inferred GA from the hosting tournament.
	for _, pl := range res.Players {
		assert.Equal(t, "GA", pl.State)
		assert.True(t, pl.StateInferred)
	}
}

// Invalid options fail before any remote call.
func TestGenerateValidatesBeforeFetching(t *testing.T) {
	f := fourEntrantDataset()
	p := newTestPipeline(t, f, false)

	cases := []Options{
		{},                             // missing state
		{State: "Georgia"},             // not a 2-letter code
		{State: "GA", MonthsBack: 120}, // window too wide
		{State: "GA", MinAvgEntrants: 50, MaxAvgEntrants: 10}, // inverted bounds
	}
	for _, opts := range cases {
		_, err := p.Generate(context.Background(), opts)
		assert.ErrorIs(t, err, ErrConfiguration, "opts %+v", opts)
	}

	tc, bc := f.calls()
	assert.Zero(t, tc)
	assert.Zero(t, bc)
}

// With the index in front, a second run inside the freshness window makes
// zero remote calls and returns the same result.
func TestGenerateServesSecondRunFromIndex(t *testing.T) {
	f := fourEntrantDataset()
	p := newTestPipeline(t, f, true)

	first, err := p.Generate(context.Background(), Options{State: "GA"})
	require.NoError(t, err)
	tc1, bc1 := f.calls()
	assert.Equal(t, 1, tc1)
	assert.Equal(t, 1, bc1)

	second, err := p.Generate(context.Background(), Options{State: "GA"})
	require.NoError(t, err)
	tc2, bc2 := f.calls()
	assert.Equal(t, tc1, tc2, "second run hit the network for discovery")
	assert.Equal(t, bc1, bc2, "second run refetched bundles")
	assert.Equal(t, first.Players, second.Players)
}

// A narrower window after a wide sync is fully covered; a wider window
// fetches only the extension (bounded by the previously covered cutoff).
func TestGenerateWidensWindowIncrementally(t *testing.T) {
	f := fourEntrantDataset()
	p := newTestPipeline(t, f, true)

	_, err := p.Generate(context.Background(), Options{State: "GA", MonthsBack: 3})
	require.NoError(t, err)

	// Narrower: no new discovery call.
	tcBefore, _ := f.calls()
	_, err = p.Generate(context.Background(), Options{State: "GA", MonthsBack: 1})
	require.NoError(t, err)
	tcAfter, _ := f.calls()
	assert.Equal(t, tcBefore, tcAfter)

	// Wider: one extension fetch, clamped to the old cutoff.
	_, err = p.Generate(context.Background(), Options{State: "GA", MonthsBack: 6})
	require.NoError(t, err)
	tcWide, _ := f.calls()
	assert.Equal(t, tcAfter+1, tcWide)

	f.mu.Lock()
	ext := f.lastFilter
	f.mu.Unlock()
	oldCutoff := testNow.AddDate(0, 0, -90)
	newCutoff := testNow.AddDate(0, 0, -180)
	assert.WithinDuration(t, newCutoff, ext.AfterDate, time.Second)
	assert.WithinDuration(t, oldCutoff, ext.BeforeDate, time.Second)
}

// Sync warms the index so a later Generate is network-free.
func TestSyncThenGenerate(t *testing.T) {
	f := fourEntrantDataset()
	p := newTestPipeline(t, f, true)

	ts, evs, err := p.Sync(context.Background(), Options{State: "GA"})
	require.NoError(t, err)
	assert.Equal(t, 1, ts)
	assert.Equal(t, 1, evs)

	tcBefore, bcBefore := f.calls()
	res, err := p.Generate(context.Background(), Options{State: "GA"})
	require.NoError(t, err)
	require.Len(t, res.Players, 4)
	tcAfter, bcAfter := f.calls()
	assert.Equal(t, tcBefore, tcAfter)
	assert.Equal(t, bcBefore, bcAfter)
}

// Sync without a database is a configuration error.
func TestSyncRequiresStore(t *testing.T) {
	p := newTestPipeline(t, fourEntrantDataset(), false)
	_, _, err := p.Sync(context.Background(), Options{State: "GA"})
	assert.True(t, crerr.Is(err, ErrConfiguration))
}

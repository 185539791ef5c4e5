package storage

import (
	"testing"
	"time"

	"github.com/pable/go-smash-metrics/internal/startgg"
)

func openMemDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr[T any](v T) *T { return &v }

func sampleTournament(id int64, state string, startAt time.Time) startgg.Tournament {
	return startgg.Tournament{
		ID:           id,
		Name:         "Weekly #1",
		Slug:         "tournament/weekly-1",
		AddrState:    ptr(state),
		StartAt:      ptr(startAt.Unix()),
		NumAttendees: ptr(32),
		Events: []startgg.Event{
			{ID: id * 10, Name: "Singles", NumEntrants: ptr(32), StartAt: ptr(startAt.Unix())},
		},
	}
}

func TestUpsertAndQueryTournaments(t *testing.T) {
	db := openMemDB(t)

	now := time.Now().UTC().Truncate(time.Second)
	ts := []startgg.Tournament{
		sampleTournament(1, "GA", now.AddDate(0, 0, -10)),
		sampleTournament(2, "GA", now.AddDate(0, 0, -1)),
		sampleTournament(3, "TX", now.AddDate(0, 0, -2)),
	}
	if err := db.UpsertTournaments(ts); err != nil {
		t.Fatalf("UpsertTournaments: %v", err)
	}
	// Re-upsert must be idempotent.
	if err := db.UpsertTournaments(ts); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	got, err := db.TournamentsSince("GA", now.AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("TournamentsSince: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 GA tournaments, got %d", len(got))
	}
	// Ordered by start_at DESC — the newest first.
	if got[0].ID != 2 {
		t.Errorf("expected tournament 2 first (newest), got %d", got[0].ID)
	}
	// Payload round-trips the nested events.
	if len(got[0].Events) != 1 || got[0].Events[0].ID != 20 {
		t.Errorf("event payload not reconstructed: %+v", got[0].Events)
	}

	// Cutoff excludes the older tournament.
	got, err = db.TournamentsSince("GA", now.AddDate(0, 0, -5))
	if err != nil {
		t.Fatalf("TournamentsSince: %v", err)
	}
	if len(got) != 1 || got[0].ID != 2 {
		t.Errorf("cutoff query returned %d tournaments", len(got))
	}
}

func TestEventBundleRoundTrip(t *testing.T) {
	db := openMemDB(t)

	tn := sampleTournament(1, "GA", time.Now().UTC())
	if err := db.UpsertTournaments([]startgg.Tournament{tn}); err != nil {
		t.Fatalf("UpsertTournaments: %v", err)
	}

	bundle := &startgg.EventBundle{
		Tournament: tn,
		Event:      tn.Events[0],
		Seeds: []startgg.Seed{
			{ID: 1, SeedNum: 1, Entrant: &startgg.Entrant{ID: 100, Name: "mango"}},
		},
		Standings: []startgg.Standing{
			{Placement: 1, Entrant: &startgg.Entrant{ID: 100, Name: "mango"}},
		},
		Sets: []startgg.Set{
			{ID: 500, WinnerID: ptr(int64(100))},
		},
	}
	if err := db.PutEventBundle(bundle); err != nil {
		t.Fatalf("PutEventBundle: %v", err)
	}

	got, ok, err := db.GetEventBundle(tn, tn.Events[0])
	if err != nil {
		t.Fatalf("GetEventBundle: %v", err)
	}
	if !ok {
		t.Fatal("expected stored bundle")
	}
	if len(got.Seeds) != 1 || got.Seeds[0].SeedNum != 1 {
		t.Errorf("seeds not reconstructed: %+v", got.Seeds)
	}
	if len(got.Sets) != 1 || got.Sets[0].WinnerID == nil || *got.Sets[0].WinnerID != 100 {
		t.Errorf("sets not reconstructed: %+v", got.Sets)
	}

	_, ok, err = db.GetEventBundle(tn, startgg.Event{ID: 999})
	if err != nil {
		t.Fatalf("GetEventBundle miss: %v", err)
	}
	if ok {
		t.Error("expected miss for unstored event")
	}
}

func TestDiscoveryFreshnessAndCoverage(t *testing.T) {
	db := openMemDB(t)

	d, err := db.GetDiscovery("GA", 1386)
	if err != nil {
		t.Fatalf("GetDiscovery: %v", err)
	}
	if d != nil {
		t.Fatal("expected nil discovery before any sync")
	}

	now := time.Now().UTC().Truncate(time.Second)
	cutoff := now.AddDate(0, -6, 0)
	if err := db.PutDiscovery(Discovery{
		State: "GA", VideogameID: 1386, LastSynced: now, CoveredAfter: cutoff,
	}); err != nil {
		t.Fatalf("PutDiscovery: %v", err)
	}

	d, err = db.GetDiscovery("GA", 1386)
	if err != nil {
		t.Fatalf("GetDiscovery: %v", err)
	}
	if d == nil {
		t.Fatal("expected discovery after sync")
	}
	if !d.Fresh(now, DiscoveryTTL) {
		t.Error("just-synced discovery reported stale")
	}
	// Freshness follows the supplied clock, not the wall clock.
	if d.Fresh(now.Add(8*24*time.Hour), DiscoveryTTL) {
		t.Error("discovery still fresh past the TTL")
	}
	// A narrower window is covered, a wider one is not.
	if !d.Covers(now.AddDate(0, -3, 0)) {
		t.Error("3-month window should be covered by 6-month sync")
	}
	if d.Covers(now.AddDate(0, -12, 0)) {
		t.Error("12-month window should not be covered by 6-month sync")
	}

	// A later narrower sync must not shrink the covered window.
	if err := db.PutDiscovery(Discovery{
		State: "GA", VideogameID: 1386,
		LastSynced: now.Add(time.Hour), CoveredAfter: now.AddDate(0, -1, 0),
	}); err != nil {
		t.Fatalf("PutDiscovery narrow: %v", err)
	}
	d, _ = db.GetDiscovery("GA", 1386)
	if !d.Covers(now.AddDate(0, -6, 0)) {
		t.Error("narrow re-sync shrank the covered window")
	}
}

func TestListTournamentsAndCounts(t *testing.T) {
	db := openMemDB(t)

	now := time.Now().UTC()
	if err := db.UpsertTournaments([]startgg.Tournament{
		sampleTournament(1, "GA", now.AddDate(0, 0, -3)),
		sampleTournament(2, "TX", now.AddDate(0, 0, -1)),
	}); err != nil {
		t.Fatalf("UpsertTournaments: %v", err)
	}

	list, err := db.ListTournaments()
	if err != nil {
		t.Fatalf("ListTournaments: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 tournaments, got %d", len(list))
	}
	if list[0].State != "TX" {
		t.Errorf("expected TX first (newest), got %s", list[0].State)
	}
	if list[0].EventCount != 1 {
		t.Errorf("expected 1 event, got %d", list[0].EventCount)
	}

	tc, ec, pc, err := db.Counts()
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if tc != 2 || ec != 2 || pc != 0 {
		t.Errorf("counts = %d/%d/%d, want 2/2/0", tc, ec, pc)
	}
}

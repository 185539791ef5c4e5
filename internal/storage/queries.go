package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pable/go-smash-metrics/internal/model"
	"github.com/pable/go-smash-metrics/internal/startgg"
)

// DiscoveryTTL is how long a discovery row is considered fresh.
const DiscoveryTTL = 7 * 24 * time.Hour

// Discovery records one completed sync of a (state, videogame) pair and
// the window it covered.
type Discovery struct {
	State        string
	VideogameID  int64
	LastSynced   time.Time
	CoveredAfter time.Time // oldest tournament start covered by the sync
}

// Fresh reports whether the discovery is younger than ttl as of now. The
// caller supplies the clock so callers with an injected clock stay
// consistent.
func (d *Discovery) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(d.LastSynced) <= ttl
}

// Covers reports whether the discovery's window includes tournaments
// starting at or after the given cutoff.
func (d *Discovery) Covers(after time.Time) bool {
	return !after.Before(d.CoveredAfter)
}

// GetDiscovery returns the discovery row for a (state, videogame) pair,
// or nil when none exists.
func (db *DB) GetDiscovery(state string, videogameID int64) (*Discovery, error) {
	var lastSynced, coveredAfter int64
	err := db.conn.QueryRow(`
		SELECT last_synced, covered_after FROM discoveries
		WHERE state = ? AND videogame_id = ?`, state, videogameID,
	).Scan(&lastSynced, &coveredAfter)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Discovery{
		State:        state,
		VideogameID:  videogameID,
		LastSynced:   time.Unix(lastSynced, 0).UTC(),
		CoveredAfter: time.Unix(coveredAfter, 0).UTC(),
	}, nil
}

// PutDiscovery records a completed sync. An existing row only ever widens:
// the stored covered_after never moves forward, so narrower re-syncs keep
// the older coverage.
func (db *DB) PutDiscovery(d Discovery) error {
	_, err := db.conn.Exec(`
		INSERT INTO discoveries(state, videogame_id, last_synced, covered_after)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(state, videogame_id) DO UPDATE SET
			last_synced = excluded.last_synced,
			covered_after = MIN(covered_after, excluded.covered_after)`,
		d.State, d.VideogameID, d.LastSynced.Unix(), d.CoveredAfter.Unix(),
	)
	return err
}

// UpsertTournaments bulk-inserts tournaments and their event rows in a
// transaction. Full payloads are kept as JSON so reads reconstruct the
// exact upstream shape.
func (db *DB) UpsertTournaments(ts []startgg.Tournament) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tstmt, err := tx.Prepare(`
		INSERT INTO tournaments(id, name, slug, state, start_at, num_attendees, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, slug = excluded.slug, state = excluded.state,
			start_at = excluded.start_at, num_attendees = excluded.num_attendees,
			payload = excluded.payload`)
	if err != nil {
		return err
	}
	defer tstmt.Close()

	estmt, err := tx.Prepare(`
		INSERT INTO events(id, tournament_id, name, num_entrants, start_at, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tournament_id = excluded.tournament_id, name = excluded.name,
			num_entrants = excluded.num_entrants, start_at = excluded.start_at,
			payload = excluded.payload`)
	if err != nil {
		return err
	}
	defer estmt.Close()

	for _, t := range ts {
		payload, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encode tournament %d: %w", t.ID, err)
		}
		var state string
		if t.AddrState != nil {
			state = *t.AddrState
		}
		var startAt int64
		if t.StartAt != nil {
			startAt = *t.StartAt
		}
		var attendees int
		if t.NumAttendees != nil {
			attendees = *t.NumAttendees
		}
		if _, err := tstmt.Exec(t.ID, t.Name, t.Slug, state, startAt, attendees, string(payload)); err != nil {
			return fmt.Errorf("insert tournament %d: %w", t.ID, err)
		}

		for _, e := range t.Events {
			epayload, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("encode event %d: %w", e.ID, err)
			}
			var entrants int
			if e.NumEntrants != nil {
				entrants = *e.NumEntrants
			}
			var estart int64
			if e.StartAt != nil {
				estart = *e.StartAt
			}
			if _, err := estmt.Exec(e.ID, t.ID, e.Name, entrants, estart, string(epayload)); err != nil {
				return fmt.Errorf("insert event %d: %w", e.ID, err)
			}
		}
	}
	return tx.Commit()
}

// TournamentsSince returns stored tournaments for a state starting at or
// after the cutoff, newest first, reconstructed from their payloads.
func (db *DB) TournamentsSince(state string, after time.Time) ([]startgg.Tournament, error) {
	rows, err := db.conn.Query(`
		SELECT payload FROM tournaments
		WHERE state = ? AND start_at >= ?
		ORDER BY start_at DESC`, state, after.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []startgg.Tournament
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var t startgg.Tournament
		if err := json.Unmarshal([]byte(payload), &t); err != nil {
			return nil, fmt.Errorf("decode tournament payload: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// PutEventBundle stores the seeds/standings/sets payloads for one event.
func (db *DB) PutEventBundle(b *startgg.EventBundle) error {
	seeds, err := json.Marshal(b.Seeds)
	if err != nil {
		return fmt.Errorf("encode seeds: %w", err)
	}
	standings, err := json.Marshal(b.Standings)
	if err != nil {
		return fmt.Errorf("encode standings: %w", err)
	}
	sets, err := json.Marshal(b.Sets)
	if err != nil {
		return fmt.Errorf("encode sets: %w", err)
	}
	_, err = db.conn.Exec(`
		INSERT INTO event_payloads(event_id, seeds, standings, sets)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(event_id) DO UPDATE SET
			seeds = excluded.seeds, standings = excluded.standings, sets = excluded.sets`,
		b.Event.ID, string(seeds), string(standings), string(sets),
	)
	return err
}

// GetEventBundle reconstructs a stored bundle. ok is false when the event
// has no stored payloads.
func (db *DB) GetEventBundle(tournament startgg.Tournament, event startgg.Event) (*startgg.EventBundle, bool, error) {
	var seedsJSON, standingsJSON, setsJSON string
	err := db.conn.QueryRow(`
		SELECT seeds, standings, sets FROM event_payloads WHERE event_id = ?`,
		event.ID,
	).Scan(&seedsJSON, &standingsJSON, &setsJSON)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	b := &startgg.EventBundle{Tournament: tournament, Event: event}
	if err := json.Unmarshal([]byte(seedsJSON), &b.Seeds); err != nil {
		return nil, false, fmt.Errorf("decode seeds for event %d: %w", event.ID, err)
	}
	if err := json.Unmarshal([]byte(standingsJSON), &b.Standings); err != nil {
		return nil, false, fmt.Errorf("decode standings for event %d: %w", event.ID, err)
	}
	if err := json.Unmarshal([]byte(setsJSON), &b.Sets); err != nil {
		return nil, false, fmt.Errorf("decode sets for event %d: %w", event.ID, err)
	}
	return b, true, nil
}

// ListTournaments returns summaries of all stored tournaments, newest first.
func (db *DB) ListTournaments() ([]model.TournamentSummary, error) {
	rows, err := db.conn.Query(`
		SELECT t.id, t.name, t.slug, t.state, t.start_at, t.num_attendees,
		       COUNT(e.id)
		FROM tournaments t
		LEFT JOIN events e ON e.tournament_id = t.id
		GROUP BY t.id
		ORDER BY t.start_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TournamentSummary
	for rows.Next() {
		var s model.TournamentSummary
		var id, startAt int64
		if err := rows.Scan(&id, &s.Name, &s.Slug, &s.State, &startAt, &s.NumAttendees, &s.EventCount); err != nil {
			return nil, err
		}
		s.ID = fmt.Sprintf("%d", id)
		s.StartAt = time.Unix(startAt, 0).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// QueryRaw runs an arbitrary query and returns column names plus rows as
// strings, for the sql command.
func (db *DB) QueryRaw(query string) ([]string, [][]string, error) {
	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var out [][]string
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		row := make([]string, len(cols))
		for i, v := range vals {
			switch t := v.(type) {
			case nil:
				row[i] = ""
			case []byte:
				row[i] = string(t)
			default:
				row[i] = fmt.Sprintf("%v", t)
			}
		}
		out = append(out, row)
	}
	return cols, out, rows.Err()
}

// Counts returns row counts for the summary command.
func (db *DB) Counts() (tournaments, events, payloads int, err error) {
	if err = db.conn.QueryRow("SELECT COUNT(1) FROM tournaments").Scan(&tournaments); err != nil {
		return
	}
	if err = db.conn.QueryRow("SELECT COUNT(1) FROM events").Scan(&events); err != nil {
		return
	}
	err = db.conn.QueryRow("SELECT COUNT(1) FROM event_payloads").Scan(&payloads)
	return
}

// Package pipeline wires discovery, assembly, and aggregation into the
// single entry point the CLI calls.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/pable/go-smash-metrics/internal/assembler"
	"github.com/pable/go-smash-metrics/internal/metrics"
	"github.com/pable/go-smash-metrics/internal/model"
	"github.com/pable/go-smash-metrics/internal/startgg"
	"github.com/pable/go-smash-metrics/internal/storage"
)

// MeleeVideogameID is the start.gg videogame id for Super Smash Bros. Melee.
const MeleeVideogameID = 1386

// ErrConfiguration marks invalid options, reported before any network or
// disk activity.
var ErrConfiguration = crerr.New("pipeline: invalid configuration")

// Fetcher is the remote surface the pipeline needs. *startgg.Client
// satisfies it.
type Fetcher interface {
	Tournaments(ctx context.Context, filter startgg.TournamentFilter) ([]startgg.Tournament, error)
	FetchEventBundle(ctx context.Context, t startgg.Tournament, e startgg.Event) (*startgg.EventBundle, error)
	Characters(ctx context.Context, videogameID int64) ([]startgg.Character, error)
}

// Options selects what to aggregate. The zero value is invalid: State is
// required.
type Options struct {
	State            string `validate:"required,len=2,alpha"`
	VideogameID      int64  `validate:"min=0"`
	MonthsBack       int    `validate:"min=0,max=60"`
	TargetCharacter  string
	AssumeTargetMain bool

	MinSetWeight float64 `validate:"min=0"`
	MaxSetWeight float64 `validate:"min=0"`

	MinAvgEntrants float64 `validate:"min=0"`
	MaxAvgEntrants float64 `validate:"min=0"`
	ActiveSince    time.Time
	MinSets        int `validate:"min=0"`

	Concurrency int `validate:"min=0,max=16"`
}

var validate = validator.New()

// normalize applies defaults and checks cross-field constraints.
func (o *Options) normalize() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if o.VideogameID == 0 {
		o.VideogameID = MeleeVideogameID
	}
	if o.MonthsBack == 0 {
		o.MonthsBack = 6
	}
	if o.Concurrency == 0 {
		o.Concurrency = 3
	}
	if o.MaxAvgEntrants > 0 && o.MaxAvgEntrants < o.MinAvgEntrants {
		return fmt.Errorf("%w: max avg entrants %.0f below min %.0f",
			ErrConfiguration, o.MaxAvgEntrants, o.MinAvgEntrants)
	}
	return nil
}

// Cutoff returns the oldest tournament start the options cover. The
// window is measured in 30-day months.
func (o *Options) Cutoff(now time.Time) time.Time {
	return now.AddDate(0, 0, -30*o.MonthsBack)
}

// Result is a completed aggregation run.
type Result struct {
	Players     []model.PlayerAggregate
	Skips       assembler.Skips
	Tournaments int
	Events      int
}

// Pipeline generates player metrics from remote payloads, with an
// optional persistent index in front of the network.
type Pipeline struct {
	fetcher Fetcher
	store   *storage.DB // nil disables the persistent index
	log     *zap.Logger
	now     func() time.Time
}

// New returns a pipeline. store may be nil; a nil logger disables logging.
func New(fetcher Fetcher, store *storage.DB, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{fetcher: fetcher, store: store, log: log, now: time.Now}
}

// Generate runs the full pipeline: discover tournaments, fetch event
// bundles, assemble records, aggregate, filter. Options are validated
// before anything else runs.
func (p *Pipeline) Generate(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	cutoff := opts.Cutoff(p.now())

	tournaments, err := p.discover(ctx, opts, cutoff)
	if err != nil {
		return nil, err
	}
	p.log.Info("discovered tournaments",
		zap.String("state", opts.State), zap.Int("count", len(tournaments)))

	chars, err := p.fetcher.Characters(ctx, opts.VideogameID)
	if err != nil {
		return nil, fmt.Errorf("character map: %w", err)
	}

	bundles, err := p.fetchBundles(ctx, opts, tournaments)
	if err != nil {
		return nil, err
	}

	asm := assembler.New(assembler.NewNormalizer(chars), p.log)
	records, skips := asm.Assemble(bundles)
	if skips.Total() > 0 {
		p.log.Warn("skipped malformed units",
			zap.Int("events", skips.Events),
			zap.Int("entrants", skips.Entrants),
			zap.Int("sets", skips.Sets))
	}

	aggs := metrics.Aggregate(records, metrics.Options{
		TargetCharacter:  opts.TargetCharacter,
		AssumeTargetMain: opts.AssumeTargetMain,
		MinSetWeight:     opts.MinSetWeight,
		MaxSetWeight:     opts.MaxSetWeight,
	})
	aggs = metrics.Apply(aggs, opts.filters()...)

	return &Result{
		Players:     aggs,
		Skips:       skips,
		Tournaments: len(tournaments),
		Events:      len(bundles),
	}, nil
}

// Sync warms the persistent index for the options' window without
// aggregating anything.
func (p *Pipeline) Sync(ctx context.Context, opts Options) (tournaments, events int, err error) {
	if err := opts.normalize(); err != nil {
		return 0, 0, err
	}
	if p.store == nil {
		return 0, 0, fmt.Errorf("%w: sync requires a database", ErrConfiguration)
	}
	cutoff := opts.Cutoff(p.now())

	ts, err := p.discover(ctx, opts, cutoff)
	if err != nil {
		return 0, 0, err
	}
	bundles, err := p.fetchBundles(ctx, opts, ts)
	if err != nil {
		return 0, 0, err
	}
	return len(ts), len(bundles), nil
}

func (o *Options) filters() []metrics.Filter {
	filters := []metrics.Filter{metrics.ByState(o.State)}
	if o.MinAvgEntrants > 0 {
		filters = append(filters, metrics.MinAvgEntrants(o.MinAvgEntrants))
	}
	if o.MaxAvgEntrants > 0 {
		filters = append(filters, metrics.MaxAvgEntrants(o.MaxAvgEntrants))
	}
	if !o.ActiveSince.IsZero() {
		filters = append(filters, metrics.ActiveSince(o.ActiveSince))
	}
	if o.MinSets > 0 {
		filters = append(filters, metrics.MinSets(o.MinSets))
	}
	return filters
}

// discover returns tournaments for the window, serving from the index
// when a fresh discovery covers it and fetching only the uncovered
// extension otherwise.
func (p *Pipeline) discover(ctx context.Context, opts Options, cutoff time.Time) ([]startgg.Tournament, error) {
	filter := startgg.TournamentFilter{
		State:       opts.State,
		VideogameID: opts.VideogameID,
		AfterDate:   cutoff,
	}

	if p.store == nil {
		return p.fetcher.Tournaments(ctx, filter)
	}

	d, err := p.store.GetDiscovery(opts.State, opts.VideogameID)
	if err != nil {
		return nil, fmt.Errorf("read discovery: %w", err)
	}

	switch {
	case d != nil && d.Fresh(p.now(), storage.DiscoveryTTL) && d.Covers(cutoff):
		p.log.Debug("serving discovery from index", zap.String("state", opts.State))
	case d != nil && d.Fresh(p.now(), storage.DiscoveryTTL):
		// Fresh but narrower than requested: fetch only the extension.
		ext := filter
		ext.BeforeDate = d.CoveredAfter
		ts, err := p.fetcher.Tournaments(ctx, ext)
		if err != nil {
			return nil, err
		}
		if err := p.store.UpsertTournaments(ts); err != nil {
			return nil, fmt.Errorf("index tournaments: %w", err)
		}
		if err := p.recordDiscovery(opts, cutoff); err != nil {
			return nil, err
		}
	default:
		ts, err := p.fetcher.Tournaments(ctx, filter)
		if err != nil {
			return nil, err
		}
		if err := p.store.UpsertTournaments(ts); err != nil {
			return nil, fmt.Errorf("index tournaments: %w", err)
		}
		if err := p.recordDiscovery(opts, cutoff); err != nil {
			return nil, err
		}
	}
	return p.store.TournamentsSince(opts.State, cutoff)
}

func (p *Pipeline) recordDiscovery(opts Options, cutoff time.Time) error {
	err := p.store.PutDiscovery(storage.Discovery{
		State:        opts.State,
		VideogameID:  opts.VideogameID,
		LastSynced:   p.now(),
		CoveredAfter: cutoff,
	})
	if err != nil {
		return fmt.Errorf("record discovery: %w", err)
	}
	return nil
}

// fetchBundles collects event bundles for every singles event, reading
// stored payloads first and fetching the rest concurrently under the
// client's shared rate ceiling.
func (p *Pipeline) fetchBundles(ctx context.Context, opts Options, tournaments []startgg.Tournament) ([]*startgg.EventBundle, error) {
	type task struct {
		tournament startgg.Tournament
		event      startgg.Event
	}
	var tasks []task
	var bundles []*startgg.EventBundle
	var mu sync.Mutex

	for _, t := range tournaments {
		for _, e := range t.Events {
			if !e.Singles() {
				continue
			}
			if e.Videogame != nil && e.Videogame.ID != opts.VideogameID {
				continue
			}
			if p.store != nil {
				b, ok, err := p.store.GetEventBundle(t, e)
				if err != nil {
					return nil, fmt.Errorf("read bundle: %w", err)
				}
				if ok {
					bundles = append(bundles, b)
					continue
				}
			}
			tasks = append(tasks, task{tournament: t, event: e})
		}
	}

	wp := pool.New().WithMaxGoroutines(opts.Concurrency).WithContext(ctx).WithCancelOnError()
	for _, tk := range tasks {
		tk := tk
		wp.Go(func(ctx context.Context) error {
			b, err := p.fetcher.FetchEventBundle(ctx, tk.tournament, tk.event)
			if err != nil {
				return fmt.Errorf("event %d: %w", tk.event.ID, err)
			}
			if p.store != nil {
				if err := p.store.PutEventBundle(b); err != nil {
					return fmt.Errorf("index bundle %d: %w", tk.event.ID, err)
				}
			}
			mu.Lock()
			bundles = append(bundles, b)
			mu.Unlock()
			return nil
		})
	}
	if err := wp.Wait(); err != nil {
		return nil, err
	}

	// Concurrent fetch order is arbitrary; keep output deterministic.
	sort.Slice(bundles, func(i, j int) bool { return bundles[i].Event.ID < bundles[j].Event.ID })
	return bundles, nil
}

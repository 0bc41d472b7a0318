// Package scrape is the Scraper Scheduler: it drives clinics through the
// two back-end families one family at a time, bounding concurrency
// within each family so neither reservation system's servers see more
// than a handful of simultaneous sessions, and guarantees one clinic's
// failure never aborts the run.
package scrape

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"dentslot/internal/core/adapters"
	"dentslot/internal/platform/browserpool"
	"dentslot/internal/platform/logger"
	"dentslot/internal/services/rules"
)

// legacyConcurrency and spaConcurrency are the per-back-end parallelism
// caps, tuned to each reservation system's observed server tolerance
const (
	legacyConcurrency = 3
	spaConcurrency    = 4
)

// launchRate caps how often a new clinic's login sequence may start
// within one family, independent of the concurrency cap — it smooths
// out bursts when many clinics become acquirable at once (e.g. right
// after the prior family drains)
const launchRate = 2 // per second

// PageBackend is the concrete shape both adapter packages satisfy: the
// shared extraction protocol plus the per-clinic page lifecycle that
// adapters.Backend itself does not need to expose to callers that already
// hold an open page
type PageBackend interface {
	adapters.Backend
	Open(ctx context.Context) error
	Close()
}

// Factory builds a fresh backend instance bound to pool for one clinic.
// Adapters are not safe to reuse across clinics since each owns exactly
// one page/tab
type Factory func(pool *browserpool.Pool) PageBackend

// Result is one clinic's raw scrape outcome: staff name -> ordered
// minute-of-day observations, or an error if the clinic could not be
// scraped at all (in which case Slots is always empty, never nil)
type Result struct {
	Clinic rules.ClinicConfig
	Slots  map[string][]int
	Err    error
}

// Scheduler runs the two back-end families sequentially — legacy
// completing fully before SPA starts, to avoid browser-resource
// contention — each internally bounded by its own per-clinic
// concurrency limit
type Scheduler struct {
	pool   *browserpool.Pool
	store  rules.Store
	legacy Factory
	spa    Factory
}

// New constructs a Scheduler. legacyFactory/spaFactory build one adapter
// instance per clinic for their respective system
func New(pool *browserpool.Pool, store rules.Store, legacyFactory, spaFactory Factory) *Scheduler {
	return &Scheduler{pool: pool, store: store, legacy: legacyFactory, spa: spaFactory}
}

// ProgressFunc reports how many of the total enabled clinics have been
// scraped so far, and which one just finished
type ProgressFunc func(current, total int, clinic string)

// Run scrapes every enabled clinic and returns one Result per clinic, in
// no particular order — callers requiring canonical ordering should sort
// with rules.OrderClinics. onProgress may be nil. system restricts the run
// to one back-end family ("legacy" or "spa"); empty scrapes both
func (s *Scheduler) Run(ctx context.Context, system string, onProgress ProgressFunc) ([]Result, error) {
	log := logger.Named("scrape")

	clinics, err := s.store.EnabledClinics(ctx)
	if err != nil {
		return nil, fmt.Errorf("scrape: list enabled clinics: %w", err)
	}

	var legacyClinics, spaClinics []rules.ClinicConfig
	for _, c := range clinics {
		switch c.System {
		case "legacy":
			legacyClinics = append(legacyClinics, c)
		case "spa":
			spaClinics = append(spaClinics, c)
		default:
			log.Warn().Str("clinic", c.Name).Str("system", c.System).Msg("unknown backend system, skipping")
		}
	}

	if system != "" && system != "legacy" {
		legacyClinics = nil
	}
	if system != "" && system != "spa" {
		spaClinics = nil
	}

	total := len(legacyClinics) + len(spaClinics)
	var (
		resultsMu sync.Mutex
		results   []Result
		done      int
	)
	appendResult := func(r Result) {
		resultsMu.Lock()
		results = append(results, r)
		done++
		if onProgress != nil {
			onProgress(done, total, r.Clinic.Name)
		}
		resultsMu.Unlock()
	}

	// legacy completes fully before SPA starts, to avoid contending for
	// the same browser process across both reservation systems at once
	if err := s.scrapeFamily(ctx, "legacy", legacyClinics, s.legacy, legacyConcurrency, appendResult); err != nil {
		return results, err
	}
	if err := s.scrapeFamily(ctx, "spa", spaClinics, s.spa, spaConcurrency, appendResult); err != nil {
		return results, err
	}
	return results, nil
}

// scrapeFamily scrapes every clinic in one back-end family, at most
// concurrency at a time
func (s *Scheduler) scrapeFamily(ctx context.Context, system string, clinics []rules.ClinicConfig, factory Factory, concurrency int, emit func(Result)) error {
	if len(clinics) == 0 || factory == nil {
		return nil
	}
	log := logger.Named("scrape").With().Str("system", system).Logger()
	log.Info().Int("clinics", len(clinics)).Msg("starting family scrape")

	sem := semaphore.NewWeighted(int64(concurrency))
	limiter := rate.NewLimiter(rate.Limit(launchRate), 1)
	g, gctx := errgroup.WithContext(ctx)

	for _, clinic := range clinics {
		clinic := clinic
		if err := sem.Acquire(gctx, 1); err != nil {
			// context cancelled; stop launching new work but let
			// already-running clinics finish via g.Wait below
			break
		}
		if err := limiter.Wait(gctx); err != nil {
			sem.Release(1)
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			emit(s.scrapeOne(gctx, system, clinic, factory))
			return nil
		})
	}

	return g.Wait()
}

// scrapeOne runs the full login -> advance -> extract -> close sequence
// for a single clinic, recovering from any panic so that one
// misbehaving clinic never aborts the run, per the source's
// return_exceptions=True contract
func (s *Scheduler) scrapeOne(ctx context.Context, system string, clinic rules.ClinicConfig, factory Factory) (result Result) {
	log := logger.Named("scrape").With().Str("clinic", clinic.Name).Str("system", system).Logger()
	result = Result{Clinic: clinic, Slots: map[string][]int{}}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("scrape panicked, recording empty observation")
			result.Slots = map[string][]int{}
			result.Err = fmt.Errorf("scrape: clinic %s panicked: %v", clinic.Name, r)
		}
	}()

	backend := factory(s.pool)

	if err := backend.Open(ctx); err != nil {
		log.Error().Err(err).Msg("open page failed")
		result.Err = err
		return result
	}
	defer backend.Close()

	clinicArg := adapters.Clinic{
		Name: clinic.Name, System: clinic.System, URL: clinic.URL,
		Username: clinic.Username, Password: clinic.Password, DisplayName: clinic.DisplayName,
		ExcludePatterns: clinic.ExcludeTags,
	}

	ok, err := backend.Login(ctx, clinicArg)
	if err != nil || !ok {
		log.Error().Err(err).Bool("ok", ok).Msg("login failed")
		if err == nil {
			err = fmt.Errorf("scrape: login to clinic %s failed", clinic.Name)
		}
		result.Err = err
		return result
	}

	if _, err := backend.AdvanceToTomorrow(ctx); err != nil {
		// a failure to advance is non-fatal; the adapter itself already
		// logs and falls back to today's grid
		log.Warn().Err(err).Msg("advance to tomorrow returned an error, proceeding anyway")
	}

	slots, err := backend.Extract(ctx, clinicArg)
	if err != nil {
		log.Error().Err(err).Msg("extraction failed")
		result.Err = err
		return result
	}

	log.Info().Int("staff", len(slots)).Msg("scrape complete")
	result.Slots = slots
	return result
}

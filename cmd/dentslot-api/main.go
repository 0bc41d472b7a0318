// @title         Dentslot API
// @version       0.1.0
// @description   Admin surface for triggering and inspecting clinic slot-availability runs

package main

import (
	"context"

	"dentslot/internal/core/adapters"
	"dentslot/internal/core/adapters/legacytable"
	"dentslot/internal/core/adapters/spagrid"
	modkit "dentslot/internal/modkit"
	"dentslot/internal/platform/browserpool"
	"dentslot/internal/platform/config"
	"dentslot/internal/platform/logger"
	phttp "dentslot/internal/platform/net/http"
	"dentslot/internal/platform/objectstorage"
	"dentslot/internal/services/api"
	"dentslot/internal/services/rules"
	"dentslot/internal/services/scrape"
	"dentslot/internal/services/tasks"

	"dentslot/internal/services/output"
)

func main() {
	// service-scoped config for HTTP etc (CORE_API_*)
	root := config.New()
	apiCfg := root.Prefix("CORE_API_")

	// domain config lives under SERVICE_SCRAPE_*
	scrapeCfg := root.Prefix("SERVICE_SCRAPE_")

	l := logger.Get()
	ctx := context.Background()

	store := rules.NewFileStore(
		scrapeCfg.MayString("CLINICS_FILE", "config/clinics.yaml"),
		scrapeCfg.MayString("RULES_FILE", "config/staff_rules.yaml"),
	)
	if err := store.Load(ctx); err != nil {
		l.Panic().Err(err).Msg("rules store load failed")
	}

	objStore, err := objectstorage.New(ctx, scrapeCfg.MayString("GCS_BUCKET", ""))
	if err != nil {
		l.Panic().Err(err).Msg("objectstorage.New failed")
	}

	debugScreenshotDir = scrapeCfg.MayString("DEBUG_DIR", "")

	pool := browserpool.New(scrapeCfg.MayDuration("BROWSER_TIMEOUT", 0))
	if err := pool.Init(ctx); err != nil {
		l.Panic().Err(err).Msg("browser pool init failed")
	}
	defer pool.Shutdown()

	scheduler := scrape.New(pool, store, legacyFactory, spaFactory)

	resultsDir := scrapeCfg.MayString("RESULTS_DIR", "data/results")
	writer, err := output.New(resultsDir, objStore)
	if err != nil {
		l.Panic().Err(err).Msg("output.New failed")
	}

	taskMgr, err := tasks.New(scrapeCfg.MayString("TASKS_DIR", "data/tasks"), objStore)
	if err != nil {
		l.Panic().Err(err).Msg("tasks.New failed")
	}

	deps := modkit.Deps{
		Log:    *l,
		Rules:  store,
		Tasks:  taskMgr,
		Scrape: scheduler,
		Output: writer,
	}

	srv := phttp.NewServer(apiCfg)

	api.Mount(
		srv.Router(),
		api.Options{
			Config:         apiCfg,
			Logger:         l,
			Deps:           deps,
			BrowserPool:    pool,
			ResultsDir:     resultsDir,
			StaffSync:      func(ctx context.Context) (int, error) { return syncStaff(ctx, store, pool) },
			EnableSwagger:  apiCfg.MayBool("SWAGGER", true),
			EnableProfiler: apiCfg.MayBool("PROFILER", true),
		},
	)

	if err := srv.Run(ctx); err != nil {
		l.Panic().Err(err).Msg("http server stopped")
	}
}

// debugScreenshotDir is set once from SERVICE_SCRAPE_DEBUG_DIR in main;
// empty disables debug screenshots entirely
var debugScreenshotDir string

// legacyFactory and spaFactory bind each adapter family to the shared
// browser pool; adapters are not reusable across clinics so a fresh
// instance is built for every call
func legacyFactory(pool *browserpool.Pool) scrape.PageBackend {
	return legacytable.New(pool, legacytable.Settings{DebugScreenshotDir: debugScreenshotDir})
}

func spaFactory(pool *browserpool.Pool) scrape.PageBackend {
	return spagrid.New(pool, spagrid.Settings{DebugScreenshotDir: debugScreenshotDir})
}

// syncStaff opens one page per enabled clinic (backendFor runs once per
// clinic), matching the Backend contract rules.FileStore.SyncAllStaff
// expects (Login/Extract only, no page lifecycle), and returns the number
// of enabled clinics, including any whose login or extraction was skipped
func syncStaff(ctx context.Context, store *rules.FileStore, pool *browserpool.Pool) (int, error) {
	clinics, err := store.EnabledClinics(ctx)
	if err != nil {
		return 0, err
	}

	var opened []scrape.PageBackend
	defer func() {
		for _, b := range opened {
			b.Close()
		}
	}()

	backendFor := func(system string) adapters.Backend {
		var b scrape.PageBackend
		switch system {
		case "legacy":
			b = legacyFactory(pool)
		case "spa":
			b = spaFactory(pool)
		default:
			return nil
		}
		if err := b.Open(ctx); err != nil {
			return nil
		}
		opened = append(opened, b)
		return b
	}

	if err := store.SyncAllStaff(ctx, backendFor); err != nil {
		return 0, err
	}
	return len(clinics), nil
}

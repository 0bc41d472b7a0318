// Command dentslot-staffsync refreshes the cached full staff roster for
// every enabled clinic without bringing up the HTTP server, for use from
// a cron job or a one-off operator invocation.
package main

import (
	"context"

	"dentslot/internal/core/adapters"
	"dentslot/internal/core/adapters/legacytable"
	"dentslot/internal/core/adapters/spagrid"
	"dentslot/internal/platform/browserpool"
	"dentslot/internal/platform/config"
	"dentslot/internal/platform/logger"
	"dentslot/internal/services/rules"
	"dentslot/internal/services/scrape"
)

func main() {
	cfg := config.New().Prefix("SERVICE_SCRAPE_")
	l := logger.Get()
	ctx := context.Background()

	store := rules.NewFileStore(
		cfg.MayString("CLINICS_FILE", "config/clinics.yaml"),
		cfg.MayString("RULES_FILE", "config/staff_rules.yaml"),
	)
	if err := store.Load(ctx); err != nil {
		l.Panic().Err(err).Msg("rules store load failed")
	}

	debugScreenshotDir := cfg.MayString("DEBUG_DIR", "")

	pool := browserpool.New(cfg.MayDuration("BROWSER_TIMEOUT", 0))
	if err := pool.Init(ctx); err != nil {
		l.Panic().Err(err).Msg("browser pool init failed")
	}
	defer pool.Shutdown()

	clinics, err := store.EnabledClinics(ctx)
	if err != nil {
		l.Panic().Err(err).Msg("list enabled clinics failed")
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
			b = legacytable.New(pool, legacytable.Settings{DebugScreenshotDir: debugScreenshotDir})
		case "spa":
			b = spagrid.New(pool, spagrid.Settings{DebugScreenshotDir: debugScreenshotDir})
		default:
			return nil
		}
		if err := b.Open(ctx); err != nil {
			l.Warn().Err(err).Str("system", system).Msg("open page failed")
			return nil
		}
		opened = append(opened, b)
		return b
	}

	if err := store.SyncAllStaff(ctx, backendFor); err != nil {
		l.Panic().Err(err).Msg("staff sync failed")
	}

	l.Info().Int("clinics", len(clinics)).Msg("staff sync complete")
}

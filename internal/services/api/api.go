// Package api provides the HTTP API for the application
package api

import (
	"context"

	"dentslot/internal/platform/browserpool"
	"dentslot/internal/platform/config"
	"dentslot/internal/platform/logger"
	phttp "dentslot/internal/platform/net/http"

	modkit "dentslot/internal/modkit"
	"dentslot/internal/modkit/httpkit"
	"dentslot/internal/modkit/module"
	"dentslot/internal/modkit/swaggerkit"

	metamod "dentslot/internal/services/api/meta/module"
	runmod "dentslot/internal/services/api/run/module"
)

// Options are the API options
type Options struct {
	Config config.Conf
	Logger *logger.Logger
	Deps   modkit.Deps

	// BrowserPool backs the meta readiness check; nil skips it
	BrowserPool *browserpool.Pool
	// ResultsDir is where the run module reads persisted artifacts from
	ResultsDir string
	// StaffSync refreshes the cached staff roster for every enabled clinic
	StaffSync func(ctx context.Context) (int, error)

	EnableSwagger  bool
	EnableProfiler bool
}

// Mount mounts the API service onto the given router
func Mount(r phttp.Router, opt Options) {
	deps := opt.Deps
	deps.Cfg = opt.Config

	mods := []module.Module{
		metamod.New(deps, opt.BrowserPool),
		runmod.New(deps, opt.ResultsDir, opt.StaffSync),
	}

	// versioned API with a common middleware stack
	httpkit.MountAPIV1(r, httpkit.CommonStack(), func(api httpkit.Router) {
		// Swagger + profiler
		swaggerkit.Mount(r, opt.EnableSwagger)
		phttp.MountProfiler(r, "/debug", opt.EnableProfiler)

		for _, m := range mods {
			// register each module's ports under its own name (for cross-module lookups)
			module.Register(m.Name(), m.Ports())

			// mount module routes under its Prefix()
			m.MountRoutes(api)
		}
	})
}

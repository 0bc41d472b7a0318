// Package module wires meta endpoints into the API using a tiny module
package module

import (
	stdctx "context"
	"fmt"
	"net/http"
	"time"

	modkit "dentslot/internal/modkit"
	"dentslot/internal/modkit/httpkit"
	"dentslot/internal/platform/browserpool"
	str "dentslot/internal/platform/strings"

	metahttp "dentslot/internal/services/api/meta/http"
)

// Module implements the modkit.Module interface
type Module struct {
	deps      modkit.Deps
	name      string
	prefix    string
	mws       []func(http.Handler) http.Handler
	swaggerOn bool

	subrouter func(httpkit.Router) httpkit.Router
	register  func(httpkit.Router)

	startedAt time.Time
}

// rulesPinger adapts rules.Store to metahttp.Pinger: a clean EnabledClinics
// read is as much "readiness" as a read-only YAML-backed store has to offer
type rulesPinger struct{ deps modkit.Deps }

func (p rulesPinger) Ping(ctx stdctx.Context) error {
	if p.deps.Rules == nil {
		return fmt.Errorf("rules store not configured")
	}
	_, err := p.deps.Rules.EnabledClinics(ctx)
	return err
}

// poolPinger adapts browserpool.Pool to metahttp.Pinger
type poolPinger struct{ pool *browserpool.Pool }

func (p poolPinger) Ping(_ stdctx.Context) error {
	if p.pool == nil {
		return fmt.Errorf("browser pool not configured")
	}
	if !p.pool.IsReady() {
		return fmt.Errorf("browser pool not ready")
	}
	return nil
}

// New constructs a meta module with the provided dependencies and options.
// pool is optional; pass nil to skip the browser-pool readiness check
func New(deps modkit.Deps, pool *browserpool.Pool, opts ...modkit.Option) modkit.Module {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("meta"),
		modkit.WithPrefix("/meta"),
	}, opts...)...)

	m := &Module{
		deps:      deps,
		name:      b.Name,
		prefix:    b.Prefix,
		mws:       b.Mw,
		swaggerOn: b.SwaggerOn,
		subrouter: b.Subrouter,
		startedAt: time.Now(),
	}

	external := b.Register
	m.register = func(r httpkit.Router) {
		metahttp.Register(r, metahttp.Deps{
			ServiceName: "dentslot-api",
			StartedAt:   m.startedAt,
			Rules:       rulesPinger{deps: deps},
			BrowserPool: poolPinger{pool: pool},
		})
		if external != nil {
			external(r)
		}
	}

	return m
}

// MountRoutes implements the modkit.Module interface
func (m *Module) MountRoutes(r httpkit.Router) {
	r.Route(m.prefix, func(rr httpkit.Router) {
		for _, mw := range m.mws {
			rr.Use(mw)
		}
		if m.subrouter != nil {
			rr = m.subrouter(rr)
		}
		if m.register != nil {
			m.register(rr)
		}
	})
}

// Name implements the modkit.Module interface
func (m *Module) Name() string { return str.MustString(m.name, "meta") }

// Prefix implements the modkit.Module interface
func (m *Module) Prefix() string { return str.MustPrefix(m.prefix) }

// Middlewares implements the modkit.Module interface
func (m *Module) Middlewares() []func(http.Handler) http.Handler { return m.mws }

// Ports implements the modkit.Module interface
func (m *Module) Ports() any { return nil }

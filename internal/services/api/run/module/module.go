// Package module wires the run admin surface into the API using modkit
package module

import (
	"context"
	"net/http"

	modkit "dentslot/internal/modkit"
	"dentslot/internal/modkit/httpkit"
	str "dentslot/internal/platform/strings"
	runhttp "dentslot/internal/services/api/run/http"
	"dentslot/internal/services/api/run/service"
)

// Module implements the run admin module
type Module struct {
	deps   modkit.Deps
	name   string
	prefix string

	mws       []func(http.Handler) http.Handler
	ports     any
	swaggerOn bool

	subrouter func(httpkit.Router) httpkit.Router
	register  func(httpkit.Router)

	svc *service.Service
}

// New constructs the run module. staffSync performs the clinic-login
// staff roster refresh and is supplied by the binary wiring the browser
// pool, since this module stays decoupled from adapter construction
func New(deps modkit.Deps, resultsDir string, staffSync func(ctx context.Context) (int, error), opts ...modkit.Option) modkit.Module {
	b := modkit.Build(append([]modkit.Option{modkit.WithName("run"), modkit.WithPrefix("")}, opts...)...)

	svc := service.New(deps.Tasks, deps.Scrape, deps.Rules, deps.Output, resultsDir, staffSync)

	m := &Module{
		deps:      deps,
		name:      b.Name,
		prefix:    b.Prefix,
		mws:       b.Mw,
		swaggerOn: b.SwaggerOn,
		subrouter: b.Subrouter,
		svc:       svc,
	}
	m.ports = adaptRunPort{svc: svc}

	external := b.Register
	m.register = func(r httpkit.Router) {
		runhttp.Register(r, m.svc)
		if external != nil {
			external(r)
		}
	}
	return m
}

// MountRoutes mounts the module routes on the given router
func (m *Module) MountRoutes(r httpkit.Router) {
	if m.prefix == "" {
		for _, mw := range m.mws {
			r.Use(mw)
		}
		var rr httpkit.Router = r
		if m.subrouter != nil {
			rr = m.subrouter(rr)
		}
		if m.register != nil {
			m.register(rr)
		}
		return
	}
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

// Name returns the module name
func (m *Module) Name() string { return str.MustString(m.name, "module name") }

// Prefix returns the module route prefix
func (m *Module) Prefix() string { return m.prefix }

// Middlewares returns the module middlewares
func (m *Module) Middlewares() []func(http.Handler) http.Handler { return m.mws }

// Package modkit provides module wiring and core deps
package modkit

import (
	"dentslot/internal/platform/config"
	"dentslot/internal/platform/logger"
	"dentslot/internal/services/output"
	"dentslot/internal/services/rules"
	"dentslot/internal/services/scrape"
	"dentslot/internal/services/tasks"
)

// Deps holds core dependencies passed to modules. There is no SQL or
// ClickHouse store in this domain; the teacher's PG/CH fields are
// replaced with this domain's own service handles
type Deps struct {
	Log logger.Logger
	Cfg config.Conf

	Rules  rules.Store
	Tasks  *tasks.Manager
	Scrape *scrape.Scheduler
	Output *output.Writer
}

// ZeroOK returns true when deps are safe to use with zero values in tests
// consumers should still nil check for optional stores
func (d Deps) ZeroOK() bool { return true }

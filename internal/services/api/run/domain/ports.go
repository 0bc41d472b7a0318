package domain

import (
	"context"

	"dentslot/internal/services/output"
)

// ServicePort is consumed by handlers and other modules
type ServicePort interface {
	// CreateRun starts a new scrape-analyze-persist run in the background
	// and returns its task ID, or an empty ID plus a non-nil RunBusy if one
	// is already running. system restricts the run to one back-end family ("legacy"
	// or "spa"); empty scrapes both
	CreateRun(ctx context.Context, system string) (taskID string, busy *RunBusy, err error)

	// RunStatus returns a run's current status, or found=false if unknown
	RunStatus(ctx context.Context, taskID string) (status RunStatus, found bool, err error)

	// LatestResult returns the most recently persisted artifact
	LatestResult(ctx context.Context) (artifact output.Artifact, found bool, err error)

	// ListResults returns every persisted artifact, most recent first
	ListResults(ctx context.Context) ([]ResultListItem, error)

	// ResultForDate returns the most recent artifact whose check date
	// matches the given YYYY-MM-DD date
	ResultForDate(ctx context.Context, checkDate string) (artifact output.Artifact, found bool, err error)

	// SyncStaff logs into every enabled clinic and refreshes the cached
	// full staff roster used by the admin staff-rules surface
	SyncStaff(ctx context.Context) (StaffSyncResult, error)
}

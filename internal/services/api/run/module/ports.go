package module

import (
	"context"

	"dentslot/internal/services/api/run/domain"
	"dentslot/internal/services/api/run/service"
	"dentslot/internal/services/output"
)

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }

type adaptRunPort struct{ svc *service.Service }

func (a adaptRunPort) CreateRun(ctx context.Context, system string) (string, *domain.RunBusy, error) {
	return a.svc.CreateRun(ctx, system)
}

func (a adaptRunPort) RunStatus(ctx context.Context, taskID string) (domain.RunStatus, bool, error) {
	return a.svc.RunStatus(ctx, taskID)
}

func (a adaptRunPort) LatestResult(ctx context.Context) (output.Artifact, bool, error) {
	return a.svc.LatestResult(ctx)
}

func (a adaptRunPort) ListResults(ctx context.Context) ([]domain.ResultListItem, error) {
	return a.svc.ListResults(ctx)
}

func (a adaptRunPort) ResultForDate(ctx context.Context, checkDate string) (output.Artifact, bool, error) {
	return a.svc.ResultForDate(ctx, checkDate)
}

func (a adaptRunPort) SyncStaff(ctx context.Context) (domain.StaffSyncResult, error) {
	return a.svc.SyncStaff(ctx)
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dentslot/internal/core/adapters"
	"dentslot/internal/services/output"
	"dentslot/internal/services/rules"
	"dentslot/internal/services/scrape"
	"dentslot/internal/services/tasks"
)

// fakeStore is a minimal rules.Store stub: no clinics, so a full
// scheduler Run completes instantly without touching a browser pool
type fakeStore struct {
	clinics    []rules.ClinicConfig
	syncCalled bool
}

func (f *fakeStore) EnabledClinics(ctx context.Context) ([]rules.ClinicConfig, error) {
	return f.clinics, nil
}
func (f *fakeStore) Clinic(ctx context.Context, name string) (rules.ClinicConfig, bool, error) {
	return rules.ClinicConfig{}, false, nil
}
func (f *fakeStore) Ruleset(ctx context.Context, clinicName string) (rules.StaffRuleset, bool, error) {
	return rules.StaffRuleset{}, false, nil
}
func (f *fakeStore) ExcludePatterns(ctx context.Context) []string { return nil }
func (f *fakeStore) CanonicalOrder(ctx context.Context) []string  { return nil }
func (f *fakeStore) SyncAllStaff(ctx context.Context, backendFor func(system string) adapters.Backend) error {
	f.syncCalled = true
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeStore) {
	t.Helper()
	store := &fakeStore{}
	sched := scrape.New(nil, store, nil, nil)
	taskMgr, err := tasks.New(t.TempDir(), nil)
	require.NoError(t, err)
	resultsDir := t.TempDir()
	writer, err := output.New(resultsDir, nil)
	require.NoError(t, err)

	svc := New(taskMgr, sched, store, writer, resultsDir, func(ctx context.Context) (int, error) {
		store.syncCalled = true
		return len(store.clinics), nil
	})
	return svc, store
}

func TestCreateRun_HappyPath_CompletesAndPersists(t *testing.T) {
	svc, _ := newTestService(t)

	taskID, busy, err := svc.CreateRun(context.Background(), "")
	require.NoError(t, err)
	require.Nil(t, busy)
	require.NotEmpty(t, taskID)

	require.Eventually(t, func() bool {
		status, found, err := svc.RunStatus(context.Background(), taskID)
		return err == nil && found && status.Status == "completed"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCreateRun_WhileRunning_ReturnsBusy(t *testing.T) {
	svc, _ := newTestService(t)

	// manufacture a running task directly via the manager
	busyID, err := svc.tasks.Create(context.Background())
	require.NoError(t, err)
	svc.tasks.MarkRunning(context.Background(), busyID)

	taskID, busy, err := svc.CreateRun(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, taskID)
	require.NotNil(t, busy)
	assert.Equal(t, busyID, busy.TaskID)
}

func TestRunStatus_NotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, found, err := svc.RunStatus(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestListResults_And_LatestResult_And_ResultForDate(t *testing.T) {
	svc, _ := newTestService(t)

	report := output.Artifact{CheckDate: "2026-08-01", CheckedAt: "2026-07-31T09:00:00Z"}
	older := time.Date(2026, 7, 31, 8, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)

	_, _, err := svc.writer.Save(context.Background(), report, older)
	require.NoError(t, err)

	report2 := report
	report2.CheckDate = "2026-08-02"
	_, _, err = svc.writer.Save(context.Background(), report2, newer)
	require.NoError(t, err)

	list, err := svc.ListResults(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "2026-08-02", list[0].CheckDate) // most recent first

	latest, found, err := svc.LatestResult(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "2026-08-02", latest.CheckDate)

	got, found, err := svc.ResultForDate(context.Background(), "2026-08-01")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "2026-08-01", got.CheckDate)

	_, found, err = svc.ResultForDate(context.Background(), "2026-09-01")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestListResults_EmptyDir(t *testing.T) {
	svc, _ := newTestService(t)
	list, err := svc.ListResults(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)

	_, found, err := svc.LatestResult(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSyncStaff_InvokesInjectedCallback(t *testing.T) {
	svc, store := newTestService(t)
	store.clinics = []rules.ClinicConfig{{Name: "A"}, {Name: "B"}}

	result, err := svc.SyncStaff(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.ClinicsSynced)
}

func TestSyncStaff_NotConfigured(t *testing.T) {
	store := &fakeStore{}
	sched := scrape.New(nil, store, nil, nil)
	taskMgr, err := tasks.New(t.TempDir(), nil)
	require.NoError(t, err)
	resultsDir := t.TempDir()
	writer, err := output.New(resultsDir, nil)
	require.NoError(t, err)

	svc := New(taskMgr, sched, store, writer, resultsDir, nil)
	_, err = svc.SyncStaff(context.Background())
	assert.Error(t, err)
}

// Package tasks is the Task Manager: it coordinates request-scoped
// background runs, issuing opaque IDs, persisting status/progress
// durably, and enforcing the single-active-run invariant, grounded on
// the source's web/task_manager.py TaskManager singleton.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"dentslot/internal/platform/logger"
	"dentslot/internal/platform/objectstorage"
)

// Status is a task's lifecycle state. Transitions are monotonic:
// pending -> running -> (completed | failed)
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// DefaultMaxAge is how long a task's durable state is kept before
// cleanup may delete it
const DefaultMaxAge = 24 * time.Hour

// Progress is the in-flight work counter reported while a task runs
type Progress struct {
	Current      int    `json:"current"`
	Total        int    `json:"total"`
	CurrentClinic string `json:"current_clinic"`
}

// Info is one task's full durable record
type Info struct {
	TaskID      string     `json:"task_id"`
	Status      Status     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Progress    *Progress  `json:"progress,omitempty"`
	Error       string     `json:"error,omitempty"`
	Result      any        `json:"result,omitempty"`
}

// ErrBusy is returned by Create when another task is already running; the
// caller should read its Elapsed for a 409 body
type ErrBusy struct {
	Current Info
}

func (e *ErrBusy) Error() string {
	return fmt.Sprintf("tasks: a run is already in progress (task %s)", e.Current.TaskID)
}

// Elapsed returns how long the current task has been running
func (e *ErrBusy) Elapsed() time.Duration {
	return time.Since(e.Current.StartedAt)
}

// Manager is the single-process Task Manager. Construct exactly one per
// host and share it; its in-memory map plus durable writes under mu are
// the source of truth for "is a run active", per spec.md §4.7
type Manager struct {
	localDir string
	store    objectstorage.Store

	mu      sync.Mutex
	tasks   map[string]Info
	running string // task ID currently in status=running, "" if none
}

// New constructs a Manager. localDir is created if missing; store may be
// nil or disabled, in which case only the local file path is used
func New(localDir string, store objectstorage.Store) (*Manager, error) {
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return nil, fmt.Errorf("tasks: create local dir: %w", err)
	}
	return &Manager{localDir: localDir, store: store, tasks: make(map[string]Info)}, nil
}

// Create issues a new task ID and records it as pending. If another task
// is currently running it returns *ErrBusy instead
func (m *Manager) Create(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running != "" {
		if cur, ok := m.tasks[m.running]; ok && cur.Status == StatusRunning {
			return "", &ErrBusy{Current: cur}
		}
		m.running = ""
	}

	id := newTaskID(m.tasks)
	now := time.Now()
	info := Info{
		TaskID:    id,
		Status:    StatusPending,
		StartedAt: now,
		UpdatedAt: now,
		Progress:  &Progress{},
	}
	m.tasks[id] = info
	m.running = id
	m.persist(ctx, info)
	return id, nil
}

// newTaskID mints a second-resolution, wall-clock-based ID, appending a
// disambiguator if a task with that exact second already exists so two
// creates within the same second never collide
func newTaskID(existing map[string]Info) string {
	base := time.Now().Format("20060102_150405")
	if _, taken := existing[base]; !taken {
		return base
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s_%d", base, i)
		if _, taken := existing[candidate]; !taken {
			return candidate
		}
	}
}

// MarkRunning transitions a task to running
func (m *Manager) MarkRunning(ctx context.Context, id string) {
	m.update(ctx, id, func(i *Info) { i.Status = StatusRunning })
}

// UpdateProgress updates the current/total/current-clinic counters
func (m *Manager) UpdateProgress(ctx context.Context, id string, current, total int, currentClinic string) {
	m.update(ctx, id, func(i *Info) {
		i.Progress = &Progress{Current: current, Total: total, CurrentClinic: currentClinic}
	})
}

// Complete marks a task completed with its result payload
func (m *Manager) Complete(ctx context.Context, id string, result any) {
	m.update(ctx, id, func(i *Info) {
		i.Status = StatusCompleted
		now := time.Now()
		i.CompletedAt = &now
		i.Result = result
	})
	m.clearRunning(id)
}

// Fail marks a task failed with an error message
func (m *Manager) Fail(ctx context.Context, id string, errMsg string) {
	m.update(ctx, id, func(i *Info) {
		i.Status = StatusFailed
		now := time.Now()
		i.CompletedAt = &now
		i.Error = errMsg
	})
	m.clearRunning(id)
}

func (m *Manager) clearRunning(id string) {
	m.mu.Lock()
	if m.running == id {
		m.running = ""
	}
	m.mu.Unlock()
}

func (m *Manager) update(ctx context.Context, id string, mutate func(*Info)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.tasks[id]
	if !ok {
		info = m.load(ctx, id)
	}
	mutate(&info)
	info.UpdatedAt = time.Now()
	m.tasks[id] = info
	m.persist(ctx, info)
}

// Get returns a task's current record, consulting the memory cache
// first, then object storage, then the local file
func (m *Manager) Get(ctx context.Context, id string) (Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if info, ok := m.tasks[id]; ok {
		return info, true
	}
	info := m.load(ctx, id)
	if info.TaskID == "" {
		return Info{}, false
	}
	return info, true
}

func (m *Manager) localPath(id string) string {
	return filepath.Join(m.localDir, fmt.Sprintf("task_%s.json", id))
}

func objectKey(id string) string {
	return fmt.Sprintf("tasks/task_%s.json", id)
}

// persist durably writes a task's state: object storage first if
// configured, then the local file with an explicit flush and fsync. The
// object-storage branch is non-fatal by design (the local file is still
// the source of truth); a local write failure is not — spec.md §7 requires
// failing the task outright rather than carrying on with a run the
// operator can never learn failed to durably persist
func (m *Manager) persist(ctx context.Context, info Info) {
	log := logger.Named("tasks")

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		log.Error().Err(err).Str("task_id", info.TaskID).Msg("marshal task failed")
		return
	}

	if m.store != nil && m.store.Enabled() {
		if err := m.store.Upload(ctx, objectKey(info.TaskID), data); err != nil {
			log.Warn().Err(err).Str("task_id", info.TaskID).Msg("object storage task upload failed")
		}
	}

	if err := m.writeLocalFile(info.TaskID, data); err != nil {
		log.Error().Err(err).Str("task_id", info.TaskID).Msg("local task persistence failed, failing task")
		if info.Status != StatusFailed {
			m.failLocked(ctx, info.TaskID, err.Error())
		}
	}
}

// writeLocalFile writes data to the task's local file with an explicit
// flush and fsync
func (m *Manager) writeLocalFile(id string, data []byte) error {
	path := m.localPath(id)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create local task file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write local task file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("fsync local task file: %w", err)
	}
	return nil
}

// failLocked transitions a task to failed in memory and, best-effort, in
// object storage. It is called from inside persist with mu already held
// by persist's caller (Create/update), and it does not call persist
// itself — persist is the very call that just failed to write locally, so
// looping back into it would spin forever against a broken disk
func (m *Manager) failLocked(ctx context.Context, id, errMsg string) {
	info, ok := m.tasks[id]
	if !ok {
		info = Info{TaskID: id}
	}
	now := time.Now()
	info.Status = StatusFailed
	info.CompletedAt = &now
	info.UpdatedAt = now
	info.Error = errMsg
	m.tasks[id] = info

	if m.running == id {
		m.running = ""
	}

	if m.store != nil && m.store.Enabled() {
		if data, err := json.MarshalIndent(info, "", "  "); err == nil {
			_ = m.store.Upload(ctx, objectKey(id), data)
		}
	}
}

// load reads a task's state, preferring object storage over the local
// file
func (m *Manager) load(ctx context.Context, id string) Info {
	if m.store != nil && m.store.Enabled() {
		if data, err := m.store.Download(ctx, objectKey(id)); err == nil {
			var info Info
			if json.Unmarshal(data, &info) == nil {
				return info
			}
		}
	}

	data, err := os.ReadFile(m.localPath(id))
	if err != nil {
		return Info{}
	}
	var info Info
	if json.Unmarshal(data, &info) != nil {
		return Info{}
	}
	return info
}

// CleanupOld deletes local task files older than maxAge. A zero maxAge
// uses DefaultMaxAge
func (m *Manager) CleanupOld(maxAge time.Duration) error {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	log := logger.Named("tasks")

	entries, err := os.ReadDir(m.localDir)
	if err != nil {
		return fmt.Errorf("tasks: read local dir: %w", err)
	}
	cutoff := time.Now().Add(-maxAge)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(m.localDir, e.Name())
			if err := os.Remove(path); err != nil {
				log.Warn().Err(err).Str("path", path).Msg("cleanup remove failed")
			}
		}
	}
	return nil
}

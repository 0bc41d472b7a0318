// Package service implements the run-pipeline workflow: it wires the
// Scraper Scheduler, Result Aggregator, Output Writer and Task Manager
// into the single request-scoped background run the admin surface
// exposes.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	dstime "dentslot/internal/platform/time"
	"dentslot/internal/platform/logger"
	"dentslot/internal/services/aggregate"
	"dentslot/internal/services/api/run/domain"
	"dentslot/internal/services/output"
	"dentslot/internal/services/rules"
	"dentslot/internal/services/scrape"
	"dentslot/internal/services/tasks"
)

// Service implements domain.ServicePort
type Service struct {
	tasks      *tasks.Manager
	scheduler  *scrape.Scheduler
	store      rules.Store
	writer     *output.Writer
	resultsDir string
	staffSync  func(ctx context.Context) (int, error)
}

// New constructs a Service. staffSync performs the clinic-login staff
// roster refresh; it is injected so the service stays decoupled from the
// browser/adapter wiring the caller owns
func New(taskMgr *tasks.Manager, scheduler *scrape.Scheduler, store rules.Store, writer *output.Writer, resultsDir string, staffSync func(ctx context.Context) (int, error)) *Service {
	return &Service{tasks: taskMgr, scheduler: scheduler, store: store, writer: writer, resultsDir: resultsDir, staffSync: staffSync}
}

var _ domain.ServicePort = (*Service)(nil)

// CreateRun issues a task ID and drives the full scrape-analyze-persist
// pipeline in the background, detached from the request context. system
// restricts the run to one back-end family ("legacy" or "spa"); empty
// scrapes both
func (s *Service) CreateRun(ctx context.Context, system string) (string, *domain.RunBusy, error) {
	taskID, err := s.tasks.Create(ctx)
	if err != nil {
		var busy *tasks.ErrBusy
		if errors.As(err, &busy) {
			return "", &domain.RunBusy{TaskID: busy.Current.TaskID, ElapsedSeconds: busy.Elapsed().Seconds()}, nil
		}
		return "", nil, err
	}

	go s.runPipeline(taskID, system)
	return taskID, nil, nil
}

// runPipeline executes one full run. It uses a background context since
// the triggering HTTP request has already returned a 202
func (s *Service) runPipeline(taskID, system string) {
	ctx := context.Background()
	// run_id is a per-attempt correlation id distinct from task_id: task_id
	// is the wall-clock identifier callers poll by, run_id lets every log
	// line from this one pipeline execution be grepped out on its own
	log := logger.Named("run").With().Str("task_id", taskID).Str("run_id", uuid.NewString()).Logger()

	s.tasks.MarkRunning(ctx, taskID)

	results, err := s.scheduler.Run(ctx, system, func(current, total int, clinic string) {
		s.tasks.UpdateProgress(ctx, taskID, current, total, clinic)
	})
	if err != nil {
		log.Error().Err(err).Msg("scrape run failed")
		s.tasks.Fail(ctx, taskID, err.Error())
		return
	}

	var clinicResults []aggregate.ClinicResult
	for _, r := range results {
		if r.Err != nil {
			log.Warn().Err(r.Err).Str("clinic", r.Clinic.Name).Msg("clinic scrape failed, recording as unavailable")
		}
		ruleset, _, err := s.store.Ruleset(ctx, r.Clinic.Name)
		if err != nil {
			log.Warn().Err(err).Str("clinic", r.Clinic.Name).Msg("ruleset lookup failed, using defaults")
		}
		settings := aggregate.SettingsFor(r.Clinic.System)
		clinicResults = append(clinicResults, aggregate.Analyze(r.Clinic.Name, r.Clinic.System, r.Slots, ruleset, settings, aggregate.MinimumBlocksRequired))
	}

	report := aggregate.Build(clinicResults, s.store.CanonicalOrder(ctx))

	now := time.Now()
	checkDate := dstime.JSTCheckDate(now)
	artifact := output.ToArtifact(report, checkDate, now.UTC().Format(time.RFC3339))

	jsonPath, csvPath, err := s.writer.Save(ctx, artifact, now)
	if err != nil {
		log.Error().Err(err).Msg("save artifact failed")
		s.tasks.Fail(ctx, taskID, err.Error())
		return
	}

	log.Info().Str("json", jsonPath).Str("csv", csvPath).Msg("run complete")
	s.tasks.Complete(ctx, taskID, map[string]string{"json_path": jsonPath, "csv_path": csvPath})
}

// RunStatus returns a run's current status
func (s *Service) RunStatus(ctx context.Context, taskID string) (domain.RunStatus, bool, error) {
	info, ok := s.tasks.Get(ctx, taskID)
	if !ok {
		return domain.RunStatus{}, false, nil
	}
	out := domain.RunStatus{
		TaskID:    info.TaskID,
		Status:    string(info.Status),
		StartedAt: info.StartedAt.UTC().Format(time.RFC3339),
		UpdatedAt: info.UpdatedAt.UTC().Format(time.RFC3339),
		Error:     info.Error,
		Result:    info.Result,
	}
	if info.CompletedAt != nil {
		out.CompletedAt = info.CompletedAt.UTC().Format(time.RFC3339)
	}
	if info.Progress != nil {
		out.Progress = &domain.Progress{
			Current:       info.Progress.Current,
			Total:         info.Progress.Total,
			CurrentClinic: info.Progress.CurrentClinic,
		}
	}
	return out, true, nil
}

// resultFile pairs a discovered JSON artifact path with its check date and
// run timestamp, parsed straight from the filename pattern
// slot_check_<checkdate>_<rundate>_<runtime>.json
type resultFile struct {
	checkDate string // YYYYMMDD
	runStamp  string // YYYYMMDD_HHMMSS, sorts lexically by recency
	jsonPath  string
	csvPath   string
}

func (s *Service) listResultFiles() ([]resultFile, error) {
	entries, err := os.ReadDir(s.resultsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("run: read results dir: %w", err)
	}

	var files []resultFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "slot_check_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		// slot_check_<checkdate>_<rundate>_<runtime>.json
		trimmed := strings.TrimSuffix(strings.TrimPrefix(name, "slot_check_"), ".json")
		parts := strings.Split(trimmed, "_")
		if len(parts) != 3 {
			continue
		}
		jsonPath := filepath.Join(s.resultsDir, name)
		csvPath := filepath.Join(s.resultsDir, strings.TrimSuffix(name, ".json")+".csv")
		files = append(files, resultFile{
			checkDate: parts[0],
			runStamp:  parts[1] + "_" + parts[2],
			jsonPath:  jsonPath,
			csvPath:   csvPath,
		})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].checkDate != files[j].checkDate {
			return files[i].checkDate > files[j].checkDate
		}
		return files[i].runStamp > files[j].runStamp
	})
	return files, nil
}

// ListResults returns every persisted artifact, most recent first
func (s *Service) ListResults(ctx context.Context) ([]domain.ResultListItem, error) {
	files, err := s.listResultFiles()
	if err != nil {
		return nil, err
	}
	out := make([]domain.ResultListItem, 0, len(files))
	for _, f := range files {
		artifact, err := s.readArtifact(f.jsonPath)
		if err != nil {
			continue
		}
		out = append(out, domain.ResultListItem{
			CheckDate: artifact.CheckDate,
			CheckedAt: artifact.CheckedAt,
			JSONPath:  f.jsonPath,
			CSVPath:   f.csvPath,
		})
	}
	return out, nil
}

// LatestResult returns the most recently persisted artifact
func (s *Service) LatestResult(ctx context.Context) (output.Artifact, bool, error) {
	files, err := s.listResultFiles()
	if err != nil {
		return output.Artifact{}, false, err
	}
	if len(files) == 0 {
		return output.Artifact{}, false, nil
	}
	artifact, err := s.readArtifact(files[0].jsonPath)
	if err != nil {
		return output.Artifact{}, false, err
	}
	return artifact, true, nil
}

// ResultForDate returns the most recent artifact whose check date matches
func (s *Service) ResultForDate(ctx context.Context, checkDate string) (output.Artifact, bool, error) {
	want := strings.ReplaceAll(checkDate, "-", "")
	files, err := s.listResultFiles()
	if err != nil {
		return output.Artifact{}, false, err
	}
	for _, f := range files {
		if f.checkDate == want {
			artifact, err := s.readArtifact(f.jsonPath)
			if err != nil {
				return output.Artifact{}, false, err
			}
			return artifact, true, nil
		}
	}
	return output.Artifact{}, false, nil
}

func (s *Service) readArtifact(path string) (output.Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return output.Artifact{}, fmt.Errorf("run: read artifact: %w", err)
	}
	return output.ParseArtifact(data)
}

// SyncStaff refreshes the cached full staff roster for every enabled clinic
func (s *Service) SyncStaff(ctx context.Context) (domain.StaffSyncResult, error) {
	if s.staffSync == nil {
		return domain.StaffSyncResult{}, fmt.Errorf("run: staff sync not configured")
	}
	n, err := s.staffSync(ctx)
	if err != nil {
		return domain.StaffSyncResult{}, err
	}
	return domain.StaffSyncResult{ClinicsSynced: n}, nil
}

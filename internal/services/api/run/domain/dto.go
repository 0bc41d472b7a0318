// Package domain holds DTOs for the run http and service contracts
package domain

// RunAccepted is returned when a new run has been queued
// swagger:model
type RunAccepted struct {
	TaskID string `json:"task_id" example:"20260801_090000"`
}

// RunBusy is the 409 body returned when a run is already in progress
// swagger:model
type RunBusy struct {
	TaskID         string  `json:"task_id" example:"20260801_090000"`
	ElapsedSeconds float64 `json:"elapsed_seconds" example:"42.5"`
}

// Progress mirrors a running task's in-flight counters
type Progress struct {
	Current       int    `json:"current"`
	Total         int    `json:"total"`
	CurrentClinic string `json:"current_clinic,omitempty"`
}

// RunStatus is the polled status of one run
// swagger:model
type RunStatus struct {
	TaskID      string    `json:"task_id" example:"20260801_090000"`
	Status      string    `json:"status" example:"running"`
	StartedAt   string    `json:"started_at" example:"2026-08-01T09:00:00Z"`
	UpdatedAt   string    `json:"updated_at" example:"2026-08-01T09:00:10Z"`
	CompletedAt string    `json:"completed_at,omitempty" example:"2026-08-01T09:05:00Z"`
	Progress    *Progress `json:"progress,omitempty"`
	Error       string    `json:"error,omitempty"`
	Result      any       `json:"result,omitempty"`
}

// ResultListItem describes one persisted run artifact
// swagger:model
type ResultListItem struct {
	CheckDate string `json:"check_date" example:"2026-08-02"`
	CheckedAt string `json:"checked_at" example:"2026-08-01T09:05:00Z"`
	JSONPath  string `json:"json_path"`
	CSVPath   string `json:"csv_path"`
}

// StaffSyncResult reports how many clinics were synced
// swagger:model
type StaffSyncResult struct {
	ClinicsSynced int `json:"clinics_synced" example:"6"`
}

// Package http provides http transport for the run admin surface
package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	perr "dentslot/internal/platform/errors"
	phttp "dentslot/internal/platform/net/http"
	"dentslot/internal/modkit/httpkit"
	"dentslot/internal/services/api/run/domain"
)

// createRunRequest is the optional POST /run body, restricting the run to
// one back-end family. An empty or absent body scrapes both
type createRunRequest struct {
	System string `json:"system"`
}

// Register mounts the run admin endpoints on the given router
func Register(r httpkit.Router, s domain.ServicePort) {
	h := &handlers{svc: s}

	r.Post("/run", h.createRun)
	r.Get("/run/{task_id}", h.runStatus)
	r.Get("/result/latest", h.latestResult)
	r.Get("/result/list", h.listResults)
	r.Get("/result/{date}", h.resultForDate)
	r.Post("/staff/sync", h.syncStaff)
}

type handlers struct{ svc domain.ServicePort }

// swagger:route POST /run Run createRun
// @Summary Start a new scrape-and-analyze run
// @Tags Run
// @Accept json
// @Produce json
// @Param body body createRunRequest false "optional system filter"
// @Success 202 {object} domain.RunAccepted
// @Failure 409 {object} domain.RunBusy
// @Router /run [post]
func (h *handlers) createRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			phttp.RespondError(w, r, perr.InvalidArgf("decode request body: %v", err))
			return
		}
	}
	if req.System != "" && req.System != "legacy" && req.System != "spa" {
		phttp.RespondError(w, r, perr.InvalidArgf(`system must be "legacy" or "spa", got %q`, req.System))
		return
	}

	taskID, busy, err := h.svc.CreateRun(r.Context(), req.System)
	if err != nil {
		phttp.RespondError(w, r, err)
		return
	}
	if busy != nil {
		phttp.JSON(w, http.StatusConflict, busy)
		return
	}
	phttp.JSON(w, http.StatusAccepted, domain.RunAccepted{TaskID: taskID})
}

// swagger:route GET /run/{task_id} Run runStatus
// @Summary Poll a run's status
// @Tags Run
// @Produce json
// @Param task_id path string true "Task ID"
// @Success 200 {object} domain.RunStatus
// @Failure 404
// @Router /run/{task_id} [get]
func (h *handlers) runStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	status, found, err := h.svc.RunStatus(r.Context(), taskID)
	if err != nil {
		phttp.RespondError(w, r, err)
		return
	}
	if !found {
		phttp.RespondError(w, r, perr.NotFoundf("task %s not found", taskID))
		return
	}
	phttp.RespondOK(w, r, status)
}

// swagger:route GET /result/latest Run latestResult
// @Summary Fetch the most recent persisted result
// @Tags Run
// @Produce json
// @Success 200 {object} output.Artifact
// @Failure 404
// @Router /result/latest [get]
func (h *handlers) latestResult(w http.ResponseWriter, r *http.Request) {
	artifact, found, err := h.svc.LatestResult(r.Context())
	if err != nil {
		phttp.RespondError(w, r, err)
		return
	}
	if !found {
		phttp.RespondError(w, r, perr.NotFoundf("no results yet"))
		return
	}
	phttp.RespondOK(w, r, artifact)
}

// swagger:route GET /result/list Run listResults
// @Summary List every persisted result, most recent first
// @Tags Run
// @Produce json
// @Success 200 {array} domain.ResultListItem
// @Router /result/list [get]
func (h *handlers) listResults(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListResults(r.Context())
	if err != nil {
		phttp.RespondError(w, r, err)
		return
	}
	phttp.RespondOK(w, r, items)
}

// swagger:route GET /result/{date} Run resultForDate
// @Summary Fetch the result for a specific check date (YYYY-MM-DD)
// @Tags Run
// @Produce json
// @Param date path string true "Check date" example(2026-08-02)
// @Success 200 {object} output.Artifact
// @Failure 404
// @Router /result/{date} [get]
func (h *handlers) resultForDate(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	artifact, found, err := h.svc.ResultForDate(r.Context(), date)
	if err != nil {
		phttp.RespondError(w, r, err)
		return
	}
	if !found {
		phttp.RespondError(w, r, perr.NotFoundf("no result for %s", date))
		return
	}
	phttp.RespondOK(w, r, artifact)
}

// swagger:route POST /staff/sync Run syncStaff
// @Summary Refresh the cached full staff roster for every enabled clinic
// @Tags Run
// @Produce json
// @Success 200 {object} domain.StaffSyncResult
// @Router /staff/sync [post]
func (h *handlers) syncStaff(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.SyncStaff(r.Context())
	if err != nil {
		phttp.RespondError(w, r, err)
		return
	}
	phttp.RespondOK(w, r, result)
}

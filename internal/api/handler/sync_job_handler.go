package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"oj_sync/internal/common"
	"oj_sync/internal/domain/model"
)

type SyncJobHandler struct {
	accounts AccountManager
	jobs     JobManager
}

func NewSyncJobHandler(accounts AccountManager, jobs JobManager) *SyncJobHandler {
	return &SyncJobHandler{accounts: accounts, jobs: jobs}
}

func (h *SyncJobHandler) RegisterRoutes(r chi.Router) {
	r.Get("/{id}", h.get)
	r.Post("/{id}/cancel", h.cancel)
}

// owned loads a job and hides it unless the caller owns its account.
func (h *SyncJobHandler) owned(w http.ResponseWriter, r *http.Request) (*model.SyncJob, bool) {
	a, ok := actor(w, r)
	if !ok {
		return nil, false
	}
	job, err := h.jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		common.RespondWithErr(w, err)
		return nil, false
	}
	if _, err := h.accounts.Get(r.Context(), a, job.AccountID); err != nil {
		common.RespondWithErr(w, err)
		return nil, false
	}
	return job, true
}

func (h *SyncJobHandler) get(w http.ResponseWriter, r *http.Request) {
	job, ok := h.owned(w, r)
	if !ok {
		return
	}
	common.RespondWithJSON(w, http.StatusOK, job)
}

func (h *SyncJobHandler) cancel(w http.ResponseWriter, r *http.Request) {
	job, ok := h.owned(w, r)
	if !ok {
		return
	}
	updated, err := h.jobs.Cancel(r.Context(), job.ID)
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, updated)
}

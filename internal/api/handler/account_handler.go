package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"oj_sync/internal/app/service"
	"oj_sync/internal/common"
	"oj_sync/internal/domain/model"
)

// AccountManager is implemented by *service.AccountService.
type AccountManager interface {
	Create(ctx context.Context, actor service.Actor, req service.CreateAccountRequest) (*model.PlatformAccount, error)
	Get(ctx context.Context, actor service.Actor, id string) (*model.PlatformAccount, error)
	List(ctx context.Context, actor service.Actor) ([]model.PlatformAccount, error)
	Delete(ctx context.Context, actor service.Actor, id string) error
	Validate(ctx context.Context, actor service.Actor, id string) (bool, error)
	Reactivate(ctx context.Context, actor service.Actor, id string) (*model.PlatformAccount, error)
}

// JobManager is implemented by *service.SyncJobService.
type JobManager interface {
	Trigger(ctx context.Context, accountID, trigger string, acknowledged bool) (*model.SyncJob, bool, error)
	Get(ctx context.Context, id string) (*model.SyncJob, error)
	ListForAccount(ctx context.Context, accountID string, limit int) ([]model.SyncJob, error)
	Cancel(ctx context.Context, id string) (*model.SyncJob, error)
}

type AccountHandler struct {
	accounts AccountManager
	jobs     JobManager
	// wraps the sync trigger route only
	triggerLimit func(http.Handler) http.Handler
}

func NewAccountHandler(accounts AccountManager, jobs JobManager, triggerLimit func(http.Handler) http.Handler) *AccountHandler {
	if triggerLimit == nil {
		triggerLimit = func(next http.Handler) http.Handler { return next }
	}
	return &AccountHandler{accounts: accounts, jobs: jobs, triggerLimit: triggerLimit}
}

func (h *AccountHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Delete("/", h.delete)
		r.Post("/validate", h.validate)
		r.Post("/reactivate", h.reactivate)
		r.With(h.triggerLimit).Post("/sync", h.triggerSync)
		r.Get("/sync-jobs", h.listJobs)
	})
}

func (h *AccountHandler) create(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var req service.CreateAccountRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	acct, err := h.accounts.Create(r.Context(), a, req)
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, acct)
}

func (h *AccountHandler) list(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	accts, err := h.accounts.List(r.Context(), a)
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	if accts == nil {
		accts = []model.PlatformAccount{}
	}
	common.RespondWithJSON(w, http.StatusOK, accts)
}

func (h *AccountHandler) get(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	acct, err := h.accounts.Get(r.Context(), a, chi.URLParam(r, "id"))
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, acct)
}

func (h *AccountHandler) delete(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	if err := h.accounts.Delete(r.Context(), a, chi.URLParam(r, "id")); err != nil {
		common.RespondWithErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AccountHandler) validate(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	valid, err := h.accounts.Validate(r.Context(), a, chi.URLParam(r, "id"))
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

func (h *AccountHandler) reactivate(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	acct, err := h.accounts.Reactivate(r.Context(), a, chi.URLParam(r, "id"))
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, acct)
}

type triggerRequest struct {
	// AcknowledgeSessionLoss accepts that logging in may end the user's
	// own browser session on the platform.
	AcknowledgeSessionLoss bool `json:"acknowledge_session_loss"`
}

func (h *AccountHandler) triggerSync(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	acct, err := h.accounts.Get(r.Context(), a, chi.URLParam(r, "id"))
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	var req triggerRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}
	job, created, err := h.jobs.Trigger(r.Context(), acct.ID, model.JobTriggerManual, req.AcknowledgeSessionLoss)
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	status := http.StatusAccepted
	if !created {
		status = http.StatusOK
	}
	common.RespondWithJSON(w, status, job)
}

func (h *AccountHandler) listJobs(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	acct, err := h.accounts.Get(r.Context(), a, chi.URLParam(r, "id"))
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			common.RespondWithError(w, http.StatusBadRequest, "limit must be a number")
			return
		}
	}
	jobs, err := h.jobs.ListForAccount(r.Context(), acct.ID, limit)
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	if jobs == nil {
		jobs = []model.SyncJob{}
	}
	common.RespondWithJSON(w, http.StatusOK, jobs)
}

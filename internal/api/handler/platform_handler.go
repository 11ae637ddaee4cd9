package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"oj_sync/internal/common"
	"oj_sync/internal/fetcher"
)

// Catalog is the registry view the platform endpoints need.
type Catalog interface {
	Metas() []fetcher.Meta
	New(platform string, creds fetcher.Credentials) (fetcher.PlatformFetcher, error)
}

// Constructors only check that credentials are present and do no I/O, so a
// placeholder fetcher is enough to read the instructions.
var placeholderCreds = fetcher.Credentials{Cookie: "placeholder", Password: "placeholder"}

type PlatformInfo struct {
	fetcher.Meta
	AuthInstructions string `json:"auth_instructions,omitempty"`
}

type PlatformHandler struct {
	catalog Catalog
}

func NewPlatformHandler(catalog Catalog) *PlatformHandler {
	return &PlatformHandler{catalog: catalog}
}

func (h *PlatformHandler) RegisterRoutes(r chi.Router) {
	r.Get("/platforms", h.list)
	r.Post("/resolve", h.resolve)
}

func (h *PlatformHandler) list(w http.ResponseWriter, r *http.Request) {
	metas := h.catalog.Metas()
	out := make([]PlatformInfo, 0, len(metas))
	for _, m := range metas {
		info := PlatformInfo{Meta: m}
		if f, err := h.catalog.New(m.Platform, placeholderCreds); err == nil {
			info.AuthInstructions = f.AuthInstructions()
		}
		out = append(out, info)
	}
	common.RespondWithJSON(w, http.StatusOK, out)
}

type resolveRequest struct {
	URL string `json:"url" validate:"required,url"`
}

func (h *PlatformHandler) resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if err := common.Validate(req); err != nil {
		common.RespondWithErr(w, err)
		return
	}
	res, ok := fetcher.ResolveURL(req.URL)
	if !ok {
		common.RespondWithError(w, http.StatusUnprocessableEntity, "URL does not point at a problem on a supported platform")
		return
	}
	common.RespondWithJSON(w, http.StatusOK, res)
}

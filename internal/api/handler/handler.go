// Package handler holds the HTTP handlers of the sync API.
package handler

import (
	"bytes"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"oj_sync/internal/api/middleware"
	"oj_sync/internal/app/service"
	"oj_sync/internal/common"
)

const maxBodyBytes = 64 << 10

// decodeJSON reads the body into dst. An empty body leaves dst untouched
// when optional is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		if optional {
			return true
		}
		common.RespondWithError(w, http.StatusBadRequest, "Request body required")
		return false
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return false
	}
	return true
}

func actor(w http.ResponseWriter, r *http.Request) (service.Actor, bool) {
	a, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Authorization token required")
	}
	return a, ok
}

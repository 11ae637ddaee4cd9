package common

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"
)

type ErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"` // per-field validation messages
}

func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, ErrorResponse{Error: message})
}

// RespondWithErr derives the status from err. Validation failures carry
// their per-field messages.
func RespondWithErr(w http.ResponseWriter, err error) {
	var fe *FieldErrors
	if errors.As(err, &fe) {
		RespondWithJSON(w, http.StatusBadRequest, ErrorResponse{Error: ErrValidation.Error(), Details: fe.Fields})
		return
	}
	RespondWithError(w, HTTPStatusFromError(err), err.Error())
}

func RespondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

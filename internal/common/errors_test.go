package common

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5/pgconn"

	"oj_sync/internal/fetcher"
)

func TestHTTPStatusFromError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("svc: %w", ErrNotFound), http.StatusNotFound},
		{ErrValidation, http.StatusBadRequest},
		{fetcher.E(fetcher.ErrUnknownPlatform, "atcoder", "new", nil), http.StatusBadRequest},
		{ErrSessionConflict, http.StatusConflict},
		{ErrAccountInactive, http.StatusUnprocessableEntity},
		{fetcher.Authf("luogu", "records", "expired"), http.StatusBadGateway},
		{fmt.Errorf("repo: %w", &pgconn.PgError{Code: "23505"}), http.StatusConflict},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatusFromError(tt.err); got != tt.want {
			t.Errorf("HTTPStatusFromError(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestRespondWithErr(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	RespondWithErr(rec, ErrNotFound)
	if rec.Code != http.StatusNotFound || rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("code %d, headers %v", rec.Code, rec.Header())
	}
	if got := rec.Body.String(); got != `{"error":"requested resource not found"}` {
		t.Errorf("body = %s", got)
	}
}

func TestValidateReportsJSONFieldNames(t *testing.T) {
	t.Parallel()
	type req struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=8"`
		Note     string `json:"note"`
	}

	err := Validate(req{Email: "not-an-email", Password: "short"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v", err)
	}
	var fe *FieldErrors
	if !errors.As(err, &fe) {
		t.Fatalf("not a *FieldErrors: %T", err)
	}
	want := map[string]string{"email": "must be a valid email address", "password": "must be at least 8 characters"}
	if diff := cmp.Diff(want, fe.Fields); diff != "" {
		t.Errorf("fields (-want +got):\n%s", diff)
	}

	rec := httptest.NewRecorder()
	RespondWithErr(rec, err)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), `"details"`) {
		t.Errorf("code %d body %s", rec.Code, rec.Body.String())
	}

	if err := Validate(req{Email: "a@b.co", Password: "longenough"}); err != nil {
		t.Errorf("valid request rejected: %v", err)
	}
}

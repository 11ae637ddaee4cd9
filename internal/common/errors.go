package common

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"

	"oj_sync/internal/fetcher"
)

var (
	ErrNotFound           = errors.New("requested resource not found")
	ErrUnauthorized       = errors.New("unauthorized access")
	ErrForbidden          = errors.New("forbidden access")
	ErrBadRequest         = errors.New("bad request")
	ErrConflict           = errors.New("resource conflict") // e.g., account already linked
	ErrInternalServer     = errors.New("internal server error")
	ErrValidation         = errors.New("validation failed")
	ErrServiceUnavailable = errors.New("service unavailable") // e.g. redis down
	ErrJobLockFailed      = errors.New("failed to acquire job lock")
	ErrAccountInactive    = errors.New("account is deactivated")
	// ErrSessionConflict means syncing would log the user out of the platform
	// and the request did not acknowledge it.
	ErrSessionConflict = errors.New("sync would invalidate the platform session")
)

// HTTPStatusFromError maps domain errors to HTTP status codes.
func HTTPStatusFromError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrValidation), errors.Is(err, fetcher.ErrUnknownPlatform):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict), errors.Is(err, ErrJobLockFailed), errors.Is(err, ErrSessionConflict):
		return http.StatusConflict
	case errors.Is(err, ErrAccountInactive):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, fetcher.ErrAuth):
		// the platform rejected stored credentials, not the caller
		return http.StatusBadGateway
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" { // Unique violation
		return http.StatusConflict
	}

	return http.StatusInternalServerError
}

// Errorf creates a new error with formatting, useful for wrapping.
func Errorf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}

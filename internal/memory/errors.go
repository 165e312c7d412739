package memory

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/rcliao/tiered-memory/internal/analytics"
	"github.com/rcliao/tiered-memory/internal/model"
	"github.com/rcliao/tiered-memory/internal/permission"
	"github.com/rcliao/tiered-memory/internal/store"
)

var (
	// ErrPermissionDenied means the tier may not perform the request. No
	// backend was touched.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrStorageUnavailable means no backend could serve the request.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrNotFound means the id does not exist in any partition the caller
	// may see.
	ErrNotFound = errors.New("memory not found")
	// ErrNotSupported means the remote service does not implement the
	// operation and the client is configured to fail rather than fall back.
	ErrNotSupported = errors.New("operation not supported")
	// ErrInvalidInput means the request itself is malformed.
	ErrInvalidInput = errors.New("invalid input")
)

// StatusCode maps an error returned by the Client to an HTTP-equivalent
// status for an outer transport layer.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, permission.ErrDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNotSupported):
		return http.StatusNotImplemented
	case errors.Is(err, ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func denied(err error) error {
	return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// localErr translates a local store failure into the client taxonomy.
func localErr(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, model.ErrInvalidValue):
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	case errors.Is(err, permission.ErrDenied):
		return denied(err)
	case errors.Is(err, analytics.ErrOwnerRequired):
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}

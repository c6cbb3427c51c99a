package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"knowtree/internal/api"
	"knowtree/internal/category"
)

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, category.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, category.ErrParentNotFound),
		errors.Is(err, category.ErrInvalidInput),
		errors.Is(err, category.ErrDepthExceeded),
		errors.Is(err, category.ErrCycleDetected):
		return http.StatusBadRequest
	case errors.Is(err, category.ErrDuplicateName),
		errors.Is(err, category.ErrDeleteBlocked):
		return http.StatusConflict
	case errors.Is(err, category.ErrContentCounterUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as an error envelope. Internal failures are logged and
// their details are not exposed.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal server error"
	}
	api.Error(w, status, category.Code(err), msg)
}

func pathID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid category id %q", category.ErrInvalidInput, raw)
	}
	return id, nil
}

// queryID parses an optional id query parameter. Absent or empty yields nil.
func queryID(r *http.Request, name string) (*uuid.UUID, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s %q", category.ErrInvalidInput, name, raw)
	}
	return &id, nil
}

// queryInt parses an integer query parameter, returning fallback when it
// is absent.
func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", category.ErrInvalidInput, name)
	}
	return n, nil
}

package api

import (
	"fmt"
	"net/http"

	"github.com/okian/whodunit/internal/domain/model"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = fmt.Errorf("bad request: %w", model.ErrInvalidArgument)
)

// Wrap prefixes err with the operation that failed.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// statusFor maps an error to its HTTP status and stable code.
func statusFor(err error) (int, string) {
	kind := model.Kind(err)
	switch kind {
	case "not_found":
		return http.StatusNotFound, kind
	case "bad_request":
		return http.StatusBadRequest, kind
	case "forbidden":
		return http.StatusForbidden, kind
	case "invalid_state", "conflict":
		return http.StatusConflict, kind
	case "invalid_evidence":
		return http.StatusUnprocessableEntity, kind
	case "unavailable":
		return http.StatusServiceUnavailable, kind
	}
	return http.StatusInternalServerError, "internal_error"
}

package api

import (
	"errors"
	"net/http"

	"sheetbase/internal/domain"
)

// httpStatusFromDomainError maps domain errors to HTTP status codes.
// Unknown errors map to 500.
func httpStatusFromDomainError(err error) int {
	var notFound *domain.NotFoundError
	var validation *domain.ValidationError
	var conflict *domain.ConflictError
	var connection *domain.ConnectionError

	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &connection):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

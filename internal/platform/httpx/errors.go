package httpx

import (
	"errors"
	"net/http"

	"github.com/steelworks-erp/steelworks/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var fieldErrs shared.ValidationErrors
	var fieldErr *shared.ValidationError
	var replay *shared.IdempotencyReplayError
	switch {
	case errors.As(err, &fieldErrs):
		JSON(w, http.StatusBadRequest, ProblemDetail{
			Title:  "Validation Failed",
			Status: http.StatusBadRequest,
			Detail: fieldErrs.Error(),
			Errors: fieldErrs.Fields(),
		})
	case errors.As(err, &fieldErr):
		problem := ProblemDetail{Title: "Validation Failed", Status: http.StatusBadRequest, Detail: fieldErr.Error()}
		if fieldErr.Field != "" {
			problem.Errors = map[string]string{fieldErr.Field: fieldErr.Message}
		}
		JSON(w, http.StatusBadRequest, problem)
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.As(err, &replay):
		JSON(w, http.StatusConflict, ProblemDetail{
			Title:      "Already Processed",
			Status:     http.StatusConflict,
			Detail:     replay.Error(),
			ResourceID: replay.ResourceID,
		})
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Idempotency Key Reused", err.Error())
	case errors.Is(err, shared.ErrConstraint):
		Problem(w, http.StatusBadRequest, "Constraint Violated", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrConcurrencyConflict):
		w.Header().Set("Retry-After", "1")
		Problem(w, http.StatusConflict, "Concurrent Modification", err.Error())
	case errors.Is(err, shared.ErrStorage):
		Problem(w, http.StatusServiceUnavailable, "Storage Unavailable", "")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// StatusFor reports the status RespondError would use for err.
func StatusFor(err error) int {
	var replay *shared.IdempotencyReplayError
	switch {
	case errors.As(err, &replay):
		return http.StatusConflict
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrConstraint):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrIdempotencyConflict), errors.Is(err, shared.ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrStorage):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-orders/internal/shared"
)

// Detailed is implemented by errors that expose structured context for the
// problem body, such as the list of short products.
type Detailed interface {
	Details() map[string]any
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var ext map[string]any
	var d Detailed
	if errors.As(err, &d) {
		ext = d.Details()
	}
	switch shared.KindOf(err) {
	case shared.KindNotFound:
		ProblemWith(w, http.StatusNotFound, "Not Found", err.Error(), ext)
	case shared.KindValidation:
		ProblemWith(w, http.StatusBadRequest, "Validation Failed", err.Error(), ext)
	case shared.KindBusiness:
		ProblemWith(w, http.StatusUnprocessableEntity, "Business Rule Violated", err.Error(), ext)
	case shared.KindConflict:
		ProblemWith(w, http.StatusConflict, "Conflict", err.Error(), ext)
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// StatusFor returns the status code RespondError would use for err.
func StatusFor(err error) int {
	switch shared.KindOf(err) {
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindValidation:
		return http.StatusBadRequest
	case shared.KindBusiness:
		return http.StatusUnprocessableEntity
	case shared.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

package httpx

import (
	"net/http"

	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

var statusByKind = map[shared.Kind]int{
	shared.KindValidation:        http.StatusBadRequest,
	shared.KindNotFound:          http.StatusNotFound,
	shared.KindIllegalTransition: http.StatusConflict,
	shared.KindInvariant:         http.StatusConflict,
	shared.KindConflict:          http.StatusConflict,
	shared.KindCodeGeneration:    http.StatusInternalServerError,
	shared.KindUnauthorized:      http.StatusUnauthorized,
	shared.KindForbidden:         http.StatusForbidden,
	shared.KindLocked:            http.StatusLocked,
	shared.KindDeadline:          http.StatusGatewayTimeout,
	shared.KindInternal:          http.StatusInternalServerError,
}

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	if status, ok := statusByKind[shared.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// RespondError maps domain errors to HTTP responses using RFC7807. Internal
// failures never expose driver messages.
func RespondError(w http.ResponseWriter, err error) {
	kind := shared.KindOf(err)
	status := StatusFor(err)
	problem := ProblemDetail{
		Type:   "urn:odyssey:problem:" + string(kind),
		Title:  http.StatusText(status),
		Status: status,
	}
	switch kind {
	case shared.KindInternal:
		problem.Detail = "unexpected error, see server logs"
	case shared.KindDeadline:
		problem.Detail = "request deadline exceeded"
		problem.Retryable = true
	default:
		if appErr, ok := shared.AsError(err); ok {
			problem.Detail = appErr.Message
			problem.Code = appErr.Code
			problem.Fields = appErr.Fields
			problem.CurrentStatus = appErr.Current
			problem.RequestedStatus = appErr.Requested
			problem.Retryable = appErr.Retryable
			if kind == shared.KindCodeGeneration {
				problem.Detail = "could not allocate document code"
			}
		}
	}
	WriteProblem(w, problem)
}

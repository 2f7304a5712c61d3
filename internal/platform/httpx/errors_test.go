package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

func TestRespondErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", shared.Validation("bad"), http.StatusBadRequest},
		{"not found", shared.NotFound("purchase order", "PO-1"), http.StatusNotFound},
		{"illegal", shared.IllegalTransition("purchase order", "CLOSED", "CANCELLED", ""), http.StatusConflict},
		{"invariant", shared.Invariant(shared.CodeExceedsPending, "too much"), http.StatusConflict},
		{"conflict", shared.Conflict("retry", nil), http.StatusConflict},
		{"codegen", shared.CodeGenerationFailed("PO", errors.New("exhausted")), http.StatusInternalServerError},
		{"unauthorized", shared.ErrInvalidCredentials, http.StatusUnauthorized},
		{"forbidden", shared.Forbidden("nope"), http.StatusForbidden},
		{"locked", shared.AccountLocked(time.Now()), http.StatusLocked},
		{"deadline", fmt.Errorf("load: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"internal", errors.New("pq: relation missing"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			RespondError(rec, tc.err)
			require.Equal(t, tc.status, rec.Code)
			require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("pq: password authentication failed"))

	var body ProblemDetail
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.NotContains(t, body.Detail, "password")
}

func TestRespondErrorIncludesTransitionStatuses(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, shared.IllegalTransition("purchase order", "FULLY_RECEIVED", "CANCELLED", "goods receipts exist"))

	var body ProblemDetail
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "FULLY_RECEIVED", body.CurrentStatus)
	require.Equal(t, "CANCELLED", body.RequestedStatus)
}

type loginBody struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func TestValidateReportsJSONFieldNames(t *testing.T) {
	err := Validate(&loginBody{Email: "not-an-email"})
	appErr, ok := shared.AsError(err)
	require.True(t, ok)
	require.Equal(t, shared.KindValidation, appErr.Kind)
	require.ElementsMatch(t, []shared.FieldError{
		{Field: "email", Reason: "must be a valid email"},
		{Field: "password", Reason: "is required"},
	}, appErr.Fields)
}

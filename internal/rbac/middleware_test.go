package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

func serve(t *testing.T, mw func(http.Handler) http.Handler, p *shared.Principal) int {
	t.Helper()
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if p != nil {
		req = req.WithContext(shared.ContextWithPrincipal(req.Context(), p))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestRequireAny(t *testing.T) {
	m := Middleware{}
	viewer := &shared.Principal{UserID: "u1", Permissions: []string{shared.PermProcurementView}}

	require.Equal(t, http.StatusUnauthorized, serve(t, m.RequireAny(shared.PermProcurementView), nil))
	require.Equal(t, http.StatusNoContent, serve(t, m.RequireAny(shared.PermProcurementView, shared.PermBillsView), viewer))
	require.Equal(t, http.StatusForbidden, serve(t, m.RequireAny(shared.PermProcurementApprove), viewer))
	require.Equal(t, http.StatusNoContent, serve(t, m.RequireAny(), nil))
}

func TestRequireAll(t *testing.T) {
	m := Middleware{}
	p := &shared.Principal{UserID: "u1", Permissions: []string{shared.PermBillsView, shared.PermBillsPay}}

	require.Equal(t, http.StatusNoContent, serve(t, m.RequireAll(shared.PermBillsView, shared.PermBillsPay), p))
	require.Equal(t, http.StatusForbidden, serve(t, m.RequireAll(shared.PermBillsView, shared.PermBillsEdit), p))
}

func TestEffectivePermissions(t *testing.T) {
	svc := NewService()

	admin := svc.EffectivePermissions(RoleAdmin)
	require.ElementsMatch(t, shared.CoreScopes(), admin)

	wh := svc.EffectivePermissions("Warehouse")
	require.Contains(t, wh, shared.PermProcurementReceive)
	require.NotContains(t, wh, shared.PermProcurementApprove)

	unknown := svc.EffectivePermissions("nobody", shared.PermReportsView)
	require.Equal(t, []string{shared.PermReportsView}, unknown)

	_, err := svc.GetRole("nobody")
	require.ErrorIs(t, err, ErrNotFound)
}

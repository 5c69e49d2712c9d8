package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

func TestDefaultPolicyMatrix(t *testing.T) {
	p := DefaultPolicy()

	cases := []struct {
		role     string
		resource string
		action   string
		want     bool
	}{
		{shared.RoleAdmin, shared.ResourceUser, shared.ActionDelete, true},
		{shared.RoleManager, shared.ResourceUser, shared.ActionDelete, false},
		{shared.RoleManager, shared.ResourceInvoice, shared.ActionDelete, true},
		{shared.RoleAccountant, shared.ResourcePayment, shared.ActionCreate, true},
		{shared.RoleAccountant, shared.ResourceUser, shared.ActionCreate, false},
		{shared.RoleSales, shared.ResourceQuote, shared.ActionUpdate, true},
		{shared.RoleSales, shared.ResourceInvoice, shared.ActionRead, true},
		{shared.RoleSales, shared.ResourceInvoice, shared.ActionCreate, false},
		{shared.RoleUser, shared.ResourceInvoice, shared.ActionList, true},
		{shared.RoleReadonly, shared.ResourceCustomer, shared.ActionUpdate, false},
		{"ghost", shared.ResourceInvoice, shared.ActionRead, false},
	}
	for _, tc := range cases {
		t.Run(tc.role+"/"+shared.Permission(tc.resource, tc.action), func(t *testing.T) {
			got := p.CheckPermission(shared.Actor{Role: tc.role}, tc.resource, tc.action)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestMiddlewareRequire(t *testing.T) {
	m := Middleware{Policy: DefaultPolicy()}
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := m.Require(shared.ResourceInvoice, shared.ActionCreate)(ok)

	serve := func(actor *shared.Actor) int {
		req := httptest.NewRequest(http.MethodPost, "/invoices", nil)
		if actor != nil {
			req = req.WithContext(shared.ContextWithActor(req.Context(), *actor))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, serve(nil))
	assert.Equal(t, http.StatusForbidden, serve(&shared.Actor{UserID: 1, Role: shared.RoleSales}))
	assert.Equal(t, http.StatusNoContent, serve(&shared.Actor{UserID: 1, Role: shared.RoleAccountant}))
}

func TestRequireAllNeedsEveryPermission(t *testing.T) {
	m := Middleware{Policy: DefaultPolicy()}
	h := m.RequireAll(
		shared.Permission(shared.ResourceQuote, shared.ActionUpdate),
		shared.Permission(shared.ResourceInvoice, shared.ActionCreate),
	)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	serve := func(role string) int {
		req := httptest.NewRequest(http.MethodPost, "/quotes/1/convert", nil)
		req = req.WithContext(shared.ContextWithActor(req.Context(), shared.Actor{Role: role}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusForbidden, serve(shared.RoleSales), "sales may update quotes but not create invoices")
	assert.Equal(t, http.StatusOK, serve(shared.RoleAccountant))
	assert.Equal(t, http.StatusOK, serve(shared.RoleAdmin))
}

func TestNilPolicyDeniesEverything(t *testing.T) {
	h := Middleware{}.Require(shared.ResourceInvoice, shared.ActionRead)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/invoices/1", nil)
	req = req.WithContext(shared.ContextWithActor(req.Context(), shared.Actor{Role: shared.RoleAdmin}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

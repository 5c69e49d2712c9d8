package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

func TestRespondErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", shared.FieldError("customer_id", "is required"), http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"not found", fmt.Errorf("get: %w", shared.NotFound("invoice", 4)), http.StatusNotFound, "NOT_FOUND"},
		{"invoice status", shared.InvoiceStatusError("paid", "delete"), http.StatusConflict, "INVOICE_STATUS_ERROR"},
		{"quote status", shared.QuoteStatusError("pending", "convert"), http.StatusConflict, "QUOTE_STATUS_ERROR"},
		{"duplicate", &shared.DuplicateError{Entity: "product", Field: "sku", Value: "A1"}, http.StatusConflict, "DUPLICATE"},
		{"stock", &shared.StockError{ProductID: 1, Requested: 3, Available: 1}, http.StatusConflict, "STOCK_ERROR"},
		{"unauthorized", shared.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"forbidden", shared.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{"operation", &shared.OperationError{Entity: "quote", Op: "convert", Err: errors.New("tx aborted")}, http.StatusInternalServerError, "QUOTE_OPERATION_FAILED"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			RespondError(rr, tc.err)

			assert.Equal(t, tc.status, rr.Code)
			var body ProblemDetail
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, tc.code, body.Code)
			assert.NotContains(t, rr.Body.String(), "tx aborted")
		})
	}
}

func TestRespondErrorIncludesDetails(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, shared.InvoiceStatusError("cancelled", "update"))

	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "cancelled", body.CurrentStatus)
	assert.Equal(t, "update", body.Action)

	rr = httptest.NewRecorder()
	RespondError(rr, shared.FieldError("items", "must contain at least 1 entries"))
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "must contain at least 1 entries", body.Fields["items"])
}

func TestDecodeJSON(t *testing.T) {
	var target struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","extra":1}`))
	err := DecodeJSON(req, &target)
	assert.ErrorIs(t, err, shared.ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	assert.ErrorIs(t, DecodeJSON(req, &target), shared.ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ok"}`))
	require.NoError(t, DecodeJSON(req, &target))
	assert.Equal(t, "ok", target.Name)
}

package shared

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusErrorKindAndCode(t *testing.T) {
	err := fmt.Errorf("update: %w", InvoiceStatusError("paid", "update items"))

	assert.True(t, errors.Is(err, ErrInvalidStatus))
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, "INVOICE_STATUS_ERROR", statusErr.Code())
	assert.Equal(t, "paid", statusErr.Current)
	assert.Equal(t, "QUOTE_STATUS_ERROR", QuoteStatusError("accepted", "delete").Code())
}

func TestValidationErrorCarriesFields(t *testing.T) {
	err := FieldError("items[0].unit_price_excluding_tax", "price required")

	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "price required", err.Fields["items[0].unit_price_excluding_tax"])
	assert.True(t, IsDomain(err))
}

func TestWrapOperationPassesDomainErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	domain := NotFound("invoice", 7)

	err := WrapOperation(context.Background(), logger, "invoice", "get", domain)

	assert.Same(t, domain, err)
	assert.Empty(t, buf.String())
}

func TestWrapOperationHidesInfrastructureErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	cause := errors.New("connection reset by peer")

	err := WrapOperation(context.Background(), logger, "invoice", "create", cause, slog.Int64("company_id", 3))

	require.Error(t, err)
	assert.Equal(t, "invoice operation failed", err.Error())
	assert.True(t, errors.Is(err, ErrInternal))
	assert.True(t, errors.Is(err, cause))
	var opErr *OperationError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "INVOICE_OPERATION_FAILED", opErr.Code())
	assert.Contains(t, buf.String(), "connection reset by peer")
	assert.Contains(t, buf.String(), "company_id=3")
}

func TestWrapOperationNil(t *testing.T) {
	assert.NoError(t, WrapOperation(context.Background(), nil, "quote", "get", nil))
}

func TestNewPagination(t *testing.T) {
	p := NewPagination(0, 0, 45)
	assert.Equal(t, Pagination{Page: 1, PerPage: DefaultPerPage, Total: 45, TotalPages: 3}, p)

	p = NewPagination(2, 500, 10)
	assert.Equal(t, MaxPerPage, p.PerPage)
	assert.Equal(t, 1, p.TotalPages)

	assert.Equal(t, 40, Offset(3, 20))
}

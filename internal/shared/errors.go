package shared

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed or incomplete input.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidStatus indicates an illegal lifecycle transition.
	ErrInvalidStatus = errors.New("invalid status transition")
	// ErrDuplicate indicates a uniqueness constraint violation.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrStock indicates a requested quantity exceeds availability.
	ErrStock = errors.New("insufficient stock")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized indicates a missing, invalid or expired credential.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates the actor lacks the permission.
	ErrForbidden = errors.New("forbidden")
	// ErrInternal marks infrastructure failures hidden behind OperationError.
	ErrInternal = errors.New("internal error")
)

// ValidationError carries a field-level detail map.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

// NewValidationError builds a ValidationError.
func NewValidationError(message string, fields map[string]string) *ValidationError {
	if fields == nil {
		fields = map[string]string{}
	}
	return &ValidationError{Message: message, Fields: fields}
}

// FieldError is shorthand for a single-field ValidationError.
func FieldError(field, message string) *ValidationError {
	return NewValidationError(message, map[string]string{field: message})
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return ErrValidation.Error()
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NotFound builds a NotFoundError.
func NotFound(entity string, id int64) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// StatusError reports an illegal transition from the current state.
type StatusError struct {
	Entity  string
	Current string
	Action  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: cannot %s while status is %s", e.Entity, e.Action, e.Current)
}

func (e *StatusError) Unwrap() error { return ErrInvalidStatus }

// Code returns the machine-readable code, e.g. INVOICE_STATUS_ERROR.
func (e *StatusError) Code() string {
	return strings.ToUpper(e.Entity) + "_STATUS_ERROR"
}

// InvoiceStatusError builds a StatusError for invoices.
func InvoiceStatusError(current, action string) *StatusError {
	return &StatusError{Entity: "invoice", Current: current, Action: action}
}

// QuoteStatusError builds a StatusError for quotes.
func QuoteStatusError(current, action string) *StatusError {
	return &StatusError{Entity: "quote", Current: current, Action: action}
}

// DuplicateError reports a uniqueness violation within a scope.
type DuplicateError struct {
	Entity string
	Field  string
	Value  string
}

func (e *DuplicateError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s with this %s already exists", e.Entity, e.Field)
	}
	return fmt.Sprintf("%s with %s %q already exists", e.Entity, e.Field, e.Value)
}

func (e *DuplicateError) Unwrap() error { return ErrDuplicate }

// StockError reports a quantity above what is available.
type StockError struct {
	ProductID int64
	Requested float64
	Available float64
}

func (e *StockError) Error() string {
	return fmt.Sprintf("product %d: requested %.2f, available %.2f", e.ProductID, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return ErrStock }

// OperationError hides an infrastructure failure behind a generic message.
type OperationError struct {
	Entity string
	Op     string
	Err    error
}

func (e *OperationError) Error() string {
	return e.Entity + " operation failed"
}

func (e *OperationError) Unwrap() []error { return []error{ErrInternal, e.Err} }

// Code returns the machine-readable code, e.g. INVOICE_OPERATION_FAILED.
func (e *OperationError) Code() string {
	return strings.ToUpper(e.Entity) + "_OPERATION_FAILED"
}

// IsDomain reports whether err belongs to the domain taxonomy and must reach the caller unchanged.
func IsDomain(err error) bool {
	for _, target := range []error{
		ErrValidation, ErrNotFound, ErrInvalidStatus, ErrDuplicate, ErrStock,
		ErrInvalidCredentials, ErrUnauthorized, ErrForbidden, ErrInternal,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// WrapOperation passes domain errors through and wraps anything else into an
// OperationError after logging it with the supplied attributes.
func WrapOperation(ctx context.Context, logger *slog.Logger, entity, op string, err error, attrs ...slog.Attr) error {
	if err == nil {
		return nil
	}
	if IsDomain(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if logger == nil {
		logger = slog.Default()
	}
	attrs = append(attrs, slog.String("entity", entity), slog.String("op", op), slog.Any("error", err))
	logger.LogAttrs(ctx, slog.LevelError, entity+" operation failed", attrs...)
	return &OperationError{Entity: entity, Op: op, Err: err}
}

package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	Problem(w, ProblemFor(err))
}

// ProblemFor builds the problem body for err.
func ProblemFor(err error) ProblemDetail {
	var (
		validationErr *shared.ValidationError
		statusErr     *shared.StatusError
		opErr         *shared.OperationError
	)
	switch {
	case errors.As(err, &validationErr):
		return ProblemDetail{
			Title:  "Validation Failed",
			Status: http.StatusUnprocessableEntity,
			Detail: validationErr.Error(),
			Code:   "VALIDATION_ERROR",
			Fields: validationErr.Fields,
		}
	case errors.As(err, &statusErr):
		return ProblemDetail{
			Title:         "Invalid Status",
			Status:        http.StatusConflict,
			Detail:        statusErr.Error(),
			Code:          statusErr.Code(),
			CurrentStatus: statusErr.Current,
			Action:        statusErr.Action,
		}
	case errors.As(err, &opErr):
		return ProblemDetail{
			Title:  "Internal Error",
			Status: http.StatusInternalServerError,
			Detail: opErr.Error(),
			Code:   opErr.Code(),
		}
	case errors.Is(err, shared.ErrValidation):
		return ProblemDetail{Title: "Validation Failed", Status: http.StatusUnprocessableEntity, Detail: err.Error(), Code: "VALIDATION_ERROR"}
	case errors.Is(err, shared.ErrNotFound):
		return ProblemDetail{Title: "Not Found", Status: http.StatusNotFound, Detail: err.Error(), Code: "NOT_FOUND"}
	case errors.Is(err, shared.ErrInvalidStatus):
		return ProblemDetail{Title: "Invalid Status", Status: http.StatusConflict, Detail: err.Error(), Code: "STATUS_ERROR"}
	case errors.Is(err, shared.ErrDuplicate):
		return ProblemDetail{Title: "Duplicate", Status: http.StatusConflict, Detail: err.Error(), Code: "DUPLICATE"}
	case errors.Is(err, shared.ErrStock):
		return ProblemDetail{Title: "Insufficient Stock", Status: http.StatusConflict, Detail: err.Error(), Code: "STOCK_ERROR"}
	case errors.Is(err, shared.ErrInvalidCredentials):
		return ProblemDetail{Title: "Unauthorized", Status: http.StatusUnauthorized, Detail: err.Error(), Code: "INVALID_CREDENTIALS"}
	case errors.Is(err, shared.ErrUnauthorized):
		return ProblemDetail{Title: "Unauthorized", Status: http.StatusUnauthorized, Detail: err.Error(), Code: "UNAUTHORIZED"}
	case errors.Is(err, shared.ErrForbidden):
		return ProblemDetail{Title: "Forbidden", Status: http.StatusForbidden, Detail: err.Error(), Code: "FORBIDDEN"}
	case errors.Is(err, context.DeadlineExceeded):
		return ProblemDetail{Title: "Timeout", Status: http.StatusGatewayTimeout, Code: "TIMEOUT"}
	default:
		return ProblemDetail{Title: "Internal Error", Status: http.StatusInternalServerError, Code: "INTERNAL_ERROR"}
	}
}

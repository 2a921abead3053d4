package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
)

// ErrorType represents different types of errors
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeDatabase   ErrorType = "database"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeExternal   ErrorType = "external_api"
	ErrorTypeInternal   ErrorType = "internal"
	ErrorTypePermission ErrorType = "permission"
	ErrorTypeRateLimit  ErrorType = "rate_limit"
	ErrorTypeTimeout    ErrorType = "timeout"
	// ErrorTypeDataUnavailable marks forecasting requests that cannot be
	// answered from the user's history.
	ErrorTypeDataUnavailable ErrorType = "data_unavailable"
)

// AppError represents an application error with additional context
type AppError struct {
	Type     ErrorType
	Message  string
	Code     string
	Internal error
	Context  map[string]interface{}
	Source   string
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Type, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the internal error
func (e *AppError) Unwrap() error {
	return e.Internal
}

// Is checks if the error matches the target
func (e *AppError) Is(target error) bool {
	if t, ok := target.(*AppError); ok {
		return e.Type == t.Type && e.Code == t.Code
	}
	return errors.Is(e.Internal, target)
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// LogFields returns structured logging fields
func (e *AppError) LogFields() []interface{} {
	fields := []interface{}{
		"error_type", e.Type,
		"error_code", e.Code,
		"error_message", e.Message,
		"source", e.Source,
	}

	if e.Internal != nil {
		fields = append(fields, "internal_error", e.Internal.Error())
	}

	for k, v := range e.Context {
		fields = append(fields, k, v)
	}

	return fields
}

// New creates a new AppError
func New(errorType ErrorType, code, message string) *AppError {
	return newAt(2, errorType, code, message, nil)
}

// Wrap wraps an existing error into AppError
func Wrap(err error, errorType ErrorType, code, message string) *AppError {
	return newAt(2, errorType, code, message, err)
}

func newAt(skip int, errorType ErrorType, code, message string, internal error) *AppError {
	_, file, line, _ := runtime.Caller(skip)
	return &AppError{
		Type:     errorType,
		Code:     code,
		Message:  message,
		Internal: internal,
		Source:   fmt.Sprintf("%s:%d", file, line),
		Context:  make(map[string]interface{}),
	}
}

// As returns the AppError in err's chain, if any.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HTTPStatus maps an error to the status code the API answers with.
func HTTPStatus(err error) int {
	appErr, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch appErr.Type {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeDataUnavailable:
		return http.StatusUnprocessableEntity
	case ErrorTypePermission:
		return http.StatusUnauthorized
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	case ErrorTypeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message that is safe to show to API clients.
func PublicMessage(err error) string {
	if appErr, ok := As(err); ok {
		return appErr.Message
	}
	return ErrInternalServer.Message
}

// Handler provides error handling strategies
type Handler struct {
	logger *slog.Logger
}

// NewHandler creates a new error handler
func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{logger: logger}
}

// Handle processes an error according to its type
func (h *Handler) Handle(ctx context.Context, err error) {
	if err == nil {
		return
	}

	if appErr, ok := As(err); ok {
		h.handleAppError(ctx, appErr)
	} else {
		h.handleGenericError(ctx, err)
	}
}

func (h *Handler) handleAppError(ctx context.Context, err *AppError) {
	switch err.Type {
	case ErrorTypeValidation, ErrorTypeNotFound, ErrorTypeDataUnavailable:
		h.logger.InfoContext(ctx, "Request rejected", err.LogFields()...)
	case ErrorTypePermission:
		h.logger.WarnContext(ctx, "Permission error", err.LogFields()...)
	case ErrorTypeRateLimit:
		h.logger.WarnContext(ctx, "Rate limit error", err.LogFields()...)
	case ErrorTypeDatabase, ErrorTypeExternal, ErrorTypeInternal, ErrorTypeTimeout:
		h.logger.ErrorContext(ctx, "Critical error", err.LogFields()...)
	default:
		h.logger.ErrorContext(ctx, "Unknown error type", err.LogFields()...)
	}
}

func (h *Handler) handleGenericError(ctx context.Context, err error) {
	h.logger.ErrorContext(ctx, "Unhandled error", "error", err.Error())
}

// LogAndReturn logs an error and returns it
func (h *Handler) LogAndReturn(ctx context.Context, err error) error {
	h.Handle(ctx, err)
	return err
}

// Predefined errors
var (
	ErrInvalidInput      = New(ErrorTypeValidation, "INVALID_INPUT", "Invalid input provided")
	ErrUserNotFound      = New(ErrorTypeNotFound, "USER_NOT_FOUND", "User not found")
	ErrRecordNotFound    = New(ErrorTypeNotFound, "RECORD_NOT_FOUND", "Record not found")
	ErrDatabaseError     = New(ErrorTypeDatabase, "DB_ERROR", "Database operation failed")
	ErrExternalAPI       = New(ErrorTypeExternal, "EXTERNAL_API", "External API error")
	ErrUnauthorized      = New(ErrorTypePermission, "UNAUTHORIZED", "Unauthorized access")
	ErrRateLimitExceeded = New(ErrorTypeRateLimit, "RATE_LIMIT", "Rate limit exceeded")
	ErrTimeout           = New(ErrorTypeTimeout, "TIMEOUT", "Operation timed out")
	ErrInternalServer    = New(ErrorTypeInternal, "INTERNAL", "Internal server error")

	ErrInsufficientData = New(ErrorTypeDataUnavailable, "INSUFFICIENT_DATA", "Not enough glucose data in the lookback window")
	ErrNoDataAvailable  = New(ErrorTypeDataUnavailable, "NO_DATA_AVAILABLE", "No current glucose reading available")
	ErrNoBackends       = New(ErrorTypeDataUnavailable, "NO_BACKENDS", "No prediction backends are available")
	ErrInvalidMealInput = New(ErrorTypeValidation, "INVALID_MEAL_INPUT", "Invalid meal input")
	ErrInvalidModel     = New(ErrorTypeValidation, "INVALID_MODEL", "Unknown prediction model")
	ErrFeatureDisabled  = New(ErrorTypeValidation, "FEATURE_DISABLED", "Feature is not configured")
)

// Convenience functions for common errors
func NewValidationError(message string) *AppError {
	return newAt(2, ErrorTypeValidation, "VALIDATION", message, nil)
}

func NewDatabaseError(err error) *AppError {
	return newAt(2, ErrorTypeDatabase, ErrDatabaseError.Code, ErrDatabaseError.Message, err)
}

func NewExternalAPIError(err error, api string) *AppError {
	return newAt(2, ErrorTypeExternal, "EXTERNAL_API", fmt.Sprintf("%s API error", api), err).
		WithContext("api", api)
}

func NewTimeoutError(operation string) *AppError {
	return newAt(2, ErrorTypeTimeout, "TIMEOUT", fmt.Sprintf("%s operation timed out", operation), nil).
		WithContext("operation", operation)
}

func NewInternalError(err error) *AppError {
	return newAt(2, ErrorTypeInternal, "INTERNAL", "Internal server error", err)
}

// NewInsufficientDataError reports a forecast that has no valid samples to work with.
func NewInsufficientDataError(message string) *AppError {
	return newAt(2, ErrorTypeDataUnavailable, ErrInsufficientData.Code, message, nil)
}

// NewNoDataAvailableError reports a series without a usable current reading.
func NewNoDataAvailableError(message string) *AppError {
	return newAt(2, ErrorTypeDataUnavailable, ErrNoDataAvailable.Code, message, nil)
}

// NewInvalidMealInputError reports meal quantities outside the accepted ranges.
func NewInvalidMealInputError(message string) *AppError {
	return newAt(2, ErrorTypeValidation, ErrInvalidMealInput.Code, message, nil)
}

// NewInvalidModelError reports an unknown model name.
func NewInvalidModelError(model string) *AppError {
	return newAt(2, ErrorTypeValidation, ErrInvalidModel.Code, fmt.Sprintf("Invalid model type: %s", model), nil).
		WithContext("model", model)
}

// NewInvalidInputError reports a request body that could not be decoded.
func NewInvalidInputError(message string) *AppError {
	return newAt(2, ErrorTypeValidation, ErrInvalidInput.Code, message, nil)
}

// NewNotFoundError reports a missing record of the given kind.
func NewNotFoundError(kind string) *AppError {
	return newAt(2, ErrorTypeNotFound, ErrRecordNotFound.Code, fmt.Sprintf("%s not found", kind), nil).
		WithContext("kind", kind)
}

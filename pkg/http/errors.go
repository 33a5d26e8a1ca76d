package http

import (
	"fmt"
	"net/http"
)

// AppError is an error that knows its HTTP status. AppErrorResponse
// renders it; anything else becomes a 500.
type AppError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Field   string                 `json:"field,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Status  int                    `json:"-"`
	Err     error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

// NewAppError creates an application error.
func NewAppError(code, field, message string, status int) *AppError {
	return &AppError{Code: code, Field: field, Message: message, Status: status}
}

// WithError attaches the cause. It is logged, never rendered.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// WithParam adds a detail rendered under params.
func (e *AppError) WithParam(key string, value interface{}) *AppError {
	if e.Params == nil {
		e.Params = make(map[string]interface{})
	}
	e.Params[key] = value
	return e
}

var statusCodes = map[int]string{
	http.StatusBadRequest:          "ERR_BAD_REQUEST",
	http.StatusNotFound:            "ERR_NOT_FOUND",
	http.StatusConflict:            "ERR_CONFLICT",
	http.StatusUnprocessableEntity: "ERR_UNPROCESSABLE",
	http.StatusInternalServerError: "ERR_INTERNAL",
	http.StatusServiceUnavailable:  "ERR_UNAVAILABLE",
}

// ErrorForStatus creates an error whose code follows status.
func ErrorForStatus(status int, message string) *AppError {
	code, ok := statusCodes[status]
	if !ok {
		code = "ERR_INTERNAL"
	}
	return NewAppError(code, "", message, status)
}

func BadRequestError(message string) *AppError {
	return ErrorForStatus(http.StatusBadRequest, message)
}

func BadRequestErrorf(format string, a ...interface{}) *AppError {
	return BadRequestError(fmt.Sprintf(format, a...))
}

// ConflictError reports work already in progress.
func ConflictError(message string) *AppError {
	return ErrorForStatus(http.StatusConflict, message)
}

// UnprocessableError reports a well-formed request the domain rejects.
func UnprocessableError(message string) *AppError {
	return ErrorForStatus(http.StatusUnprocessableEntity, message)
}

func ServiceUnavailableError(message string) *AppError {
	return ErrorForStatus(http.StatusServiceUnavailable, message)
}

func InternalError(message string) *AppError {
	return ErrorForStatus(http.StatusInternalServerError, message)
}

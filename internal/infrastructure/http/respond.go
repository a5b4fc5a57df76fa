package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

type ErrorCode string

const (
	CodeInternal       ErrorCode = "INTERNAL_ERROR"
	CodeNotFound       ErrorCode = "NOT_FOUND"
	CodeBadRequest     ErrorCode = "BAD_REQUEST"
	CodeRateLimit      ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeServiceUnavail ErrorCode = "SERVICE_UNAVAILABLE"
)

// APIError is the error body of a failed request.
type APIError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
	Cause      error     `json:"-"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
}

func (e *APIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

func newAPIError(code ErrorCode, message string, cause error) *APIError {
	return &APIError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode(code),
		Cause:      cause,
		Timestamp:  time.Now().UTC(),
	}
}

func badRequest(message string, cause error) *APIError {
	return newAPIError(CodeBadRequest, message, cause)
}

func notFound(message string) *APIError {
	return newAPIError(CodeNotFound, message, nil)
}

func unavailable(message string, cause error) *APIError {
	return newAPIError(CodeServiceUnavail, message, cause)
}

func statusCode(code ErrorCode) int {
	switch code {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeRateLimit:
		return http.StatusTooManyRequests
	case CodeServiceUnavail:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error   *APIError `json:"error"`
	Success bool      `json:"success"`
}

type successResponse struct {
	Data    any  `json:"data"`
	Success bool `json:"success"`
}

// writeError writes err in the JSON envelope. Errors that are not *APIError
// are reported as internal without exposing their text.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	apiErr, ok := err.(*APIError)
	if !ok {
		apiErr = newAPIError(CodeInternal, "An unexpected error occurred", err)
	}
	apiErr.RequestID = requestIDFrom(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.StatusCode)

	if encodeErr := json.NewEncoder(w).Encode(errorResponse{Error: apiErr, Success: false}); encodeErr != nil {
		logger.Error("failed to encode error response",
			"encode_error", encodeErr,
			"original_error", err,
			"request_id", apiErr.RequestID,
		)
		return
	}

	level := slog.LevelError
	if apiErr.StatusCode < 500 {
		level = slog.LevelWarn
	}
	logger.Log(r.Context(), level, "request failed",
		"error_code", apiErr.Code,
		"error_message", apiErr.Message,
		"status_code", apiErr.StatusCode,
		"request_id", apiErr.RequestID,
		"cause", apiErr.Cause,
	)
}

func writeSuccess(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(successResponse{Data: data, Success: true})
}

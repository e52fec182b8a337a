package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"spcpulse/internal/ingest"
	"spcpulse/internal/spc"
)

// Common error types following RFC 7807
const (
	TypeValidation      = "/errors/validation"
	TypeNotFound        = "/errors/not-found"
	TypeMethodNotAllow  = "/errors/method-not-allowed"
	TypeRateLimit       = "/errors/rate-limit"
	TypeInternal        = "/errors/internal"
	TypeServiceDown     = "/errors/service-unavailable"
	TypeTimeout         = "/errors/timeout"
	TypePayloadTooLarge = "/errors/payload-too-large"
)

// Domain-specific error types
const (
	TypeInvalidSubgroupSize = "/errors/spc/invalid-subgroup-size"
	TypeInsufficientData    = "/errors/spc/insufficient-data"
	TypeInvalidSpecLimits   = "/errors/spc/invalid-spec-limits"
	TypeUnsupportedFormat   = "/errors/ingest/unsupported-format"
	TypeUnreadableFile      = "/errors/ingest/unreadable-file"
)

// ErrorHandler provides centralized error handling
type ErrorHandler struct {
	logger       *slog.Logger
	includeStack bool
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *slog.Logger, includeStack bool) *ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorHandler{
		logger:       logger.With(slog.String("component", "error_handler")),
		includeStack: includeStack,
	}
}

// HandleError converts any error to RFC 7807 format and responds
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	reqID := middleware.GetReqID(r.Context())
	problem := h.ErrorToProblem(err, r)

	level := slog.LevelWarn
	if problem.Status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "request failed",
		slog.String("error", err.Error()),
		slog.Int("status", problem.Status),
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	if reqID != "" {
		problem.WithExtension("trace_id", reqID)
	}
	if h.includeStack && problem.Status >= http.StatusInternalServerError {
		problem.WithExtension("stack", getStackTrace())
	}

	render.Render(w, r, problem)
}

// ErrorToProblem converts an error to RFC 7807 Problem Details
func (h *ErrorHandler) ErrorToProblem(err error, r *http.Request) *ProblemDetails {
	instance := r.URL.Path

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewProblemDetails(
			http.StatusGatewayTimeout,
			TypeTimeout,
			"Request Timeout",
			"The request took too long to process and was cancelled",
			instance,
		)
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return h.apiErrorToProblem(apiErr, r)
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return NewProblemDetails(
			http.StatusRequestEntityTooLarge,
			TypePayloadTooLarge,
			"Payload Too Large",
			"The request body exceeds the maximum allowed size",
			instance,
		).WithExtension("limit_bytes", tooLarge.Limit)
	}

	if problem := spcProblem(err, instance); problem != nil {
		return problem
	}

	if problem := ingestProblem(err, instance); problem != nil {
		return problem
	}

	return NewProblemDetails(
		http.StatusInternalServerError,
		TypeInternal,
		"Internal Server Error",
		"An unexpected error occurred while processing your request",
		instance,
	)
}

// spcProblem maps the analysis engine's fatal errors
func spcProblem(err error, instance string) *ProblemDetails {
	var sizeErr *spc.InvalidSubgroupSizeError
	switch {
	case errors.As(err, &sizeErr):
		problem := NewProblemDetails(
			http.StatusUnprocessableEntity,
			TypeInvalidSubgroupSize,
			"Invalid Subgroup Size",
			sizeErr.Error(),
			instance,
		).
			WithExtension("subgroup_size", sizeErr.Size).
			WithExtension("min_subgroup_size", spc.MinSubgroupSize).
			WithExtension("max_subgroup_size", spc.MaxSubgroupSize)
		if sizeErr.Subgroup != "" {
			problem.WithExtension("subgroup", sizeErr.Subgroup).
				WithExtension("width", sizeErr.Width)
		}
		return problem

	case errors.Is(err, spc.ErrInvalidSubgroupSize):
		return NewProblemDetails(
			http.StatusUnprocessableEntity,
			TypeInvalidSubgroupSize,
			"Invalid Subgroup Size",
			err.Error(),
			instance,
		)

	case errors.Is(err, spc.ErrInvalidSpecLimits):
		problem := NewProblemDetails(
			http.StatusBadRequest,
			TypeInvalidSpecLimits,
			"Invalid Specification Limits",
			err.Error(),
			instance,
		)
		var verr *spc.ValidationError
		if errors.As(err, &verr) {
			problem.WithExtension("errors", []ValidationError{{Field: verr.Field, Message: verr.Message}})
		}
		return problem

	case errors.Is(err, spc.ErrEmptyTable), errors.Is(err, spc.ErrNoMeasurements):
		return NewProblemDetails(
			http.StatusUnprocessableEntity,
			TypeInsufficientData,
			"Insufficient Data",
			err.Error(),
			instance,
		)
	}

	var verr *spc.ValidationError
	if errors.As(err, &verr) {
		return NewProblemDetails(
			http.StatusBadRequest,
			TypeValidation,
			"Validation Failed",
			err.Error(),
			instance,
		).WithExtension("errors", []ValidationError{{Field: verr.Field, Message: verr.Message}})
	}

	return nil
}

// ingestProblem maps file ingestion failures
func ingestProblem(err error, instance string) *ProblemDetails {
	switch {
	case errors.Is(err, ingest.ErrUnsupportedFormat):
		return NewProblemDetails(
			http.StatusBadRequest,
			TypeUnsupportedFormat,
			"Unsupported File Format",
			"Upload a .csv or .xlsx file",
			instance,
		).WithExtension("cause", err.Error())

	case errors.Is(err, ingest.ErrNoData),
		errors.Is(err, ingest.ErrNoMeasurementColumns),
		errors.Is(err, ingest.ErrMalformedFile):
		return NewProblemDetails(
			http.StatusBadRequest,
			TypeUnreadableFile,
			"Unreadable File",
			err.Error(),
			instance,
		)
	}
	return nil
}

// apiErrorToProblem converts APIError to ProblemDetails
func (h *ErrorHandler) apiErrorToProblem(apiErr *APIError, r *http.Request) *ProblemDetails {
	problemType := TypeInternal
	switch apiErr.ErrorCode {
	case "VALIDATION_FAILED", "INVALID_REQUEST", "MISSING_PARAMETER", "INVALID_PARAMETER":
		problemType = TypeValidation
	case "NOT_FOUND":
		problemType = TypeNotFound
	case "PAYLOAD_TOO_LARGE":
		problemType = TypePayloadTooLarge
	case "RATE_LIMIT_EXCEEDED":
		problemType = TypeRateLimit
	case "SERVICE_UNAVAILABLE":
		problemType = TypeServiceDown
	}

	problem := NewProblemDetails(
		apiErr.StatusCode,
		problemType,
		http.StatusText(apiErr.StatusCode),
		apiErr.Message,
		r.URL.Path,
	).WithExtension("error_code", apiErr.ErrorCode)

	if apiErr.Details != nil {
		problem.WithExtension("details", apiErr.Details)
	}

	return problem
}

// HandlePanic recovers from panics and returns RFC 7807 error
func (h *ErrorHandler) HandlePanic(w http.ResponseWriter, r *http.Request, recovered interface{}) {
	reqID := middleware.GetReqID(r.Context())

	h.logger.ErrorContext(r.Context(), "panic recovered",
		slog.Any("panic", recovered),
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("stack", string(debug.Stack())),
	)

	problem := NewProblemDetails(
		http.StatusInternalServerError,
		TypeInternal,
		"Internal Server Error",
		"An unexpected error occurred",
		r.URL.Path,
	).WithExtension("trace_id", reqID)

	if h.includeStack {
		problem.WithExtension("panic", fmt.Sprintf("%v", recovered))
		problem.WithExtension("stack", getStackTrace())
	}

	render.Render(w, r, problem)
}

// NotFound returns a standard 404 error
func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	problem := NewProblemDetails(
		http.StatusNotFound,
		TypeNotFound,
		"Not Found",
		"The requested resource was not found",
		r.URL.Path,
	).WithExtension("trace_id", middleware.GetReqID(r.Context()))

	render.Render(w, r, problem)
}

// MethodNotAllowed returns a standard 405 error
func (h *ErrorHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	problem := NewProblemDetails(
		http.StatusMethodNotAllowed,
		TypeMethodNotAllow,
		"Method Not Allowed",
		fmt.Sprintf("Method %s is not allowed for this endpoint", r.Method),
		r.URL.Path,
	).WithExtension("trace_id", middleware.GetReqID(r.Context()))

	render.Render(w, r, problem)
}

// RecoveryMiddleware turns panics into RFC 7807 responses
func (h *ErrorHandler) RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				h.HandlePanic(w, r, rec)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// getStackTrace returns the current stack trace
func getStackTrace() string {
	buf := make([]byte, 1024*8)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

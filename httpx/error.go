// Package httpx carries the ambient HTTP concerns the transport package
// builds on: error-context propagation, a standard middleware chain, and a
// couple of small request-id/time helpers. None of it is specific to
// collaborative editing.
package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime/debug"
)

type contextKey string

// ErrorContextKey is the request-context key WithError stores an
// *ErrorContext under.
const ErrorContextKey contextKey = "error"

// ErrorContext carries everything a handler or middleware needs to turn a
// failure into a response: the underlying error, a status code, an
// operator-facing message, and a stack trace captured at the point the
// error context was first created.
type ErrorContext struct {
	Error     error
	Message   string
	Stack     string
	Code      int
	RequestID string
	Path      string
	Method    string
}

// WithError attaches err to r's context, creating the ErrorContext on
// first use and reusing it (updating Error only) on subsequent calls, so
// a handler and an outer middleware can both annotate the same request.
func WithError(r *http.Request, err error) *http.Request {
	if r == nil {
		return nil
	}

	var errCtx *ErrorContext
	if existing := GetErrorContext(r.Context()); existing != nil {
		errCtx = existing
		errCtx.Error = err
	} else {
		errCtx = &ErrorContext{
			Error:   err,
			Message: err.Error(),
			Stack:   string(debug.Stack()),
			Code:    http.StatusInternalServerError,
			Path:    r.URL.Path,
			Method:  r.Method,
		}
	}

	if requestID := r.Header.Get("X-Request-ID"); requestID != "" {
		errCtx.RequestID = requestID
	}

	ctx := context.WithValue(r.Context(), ErrorContextKey, errCtx)
	return r.WithContext(ctx)
}

// WithErrorAndCode is WithError plus an explicit status code.
func WithErrorAndCode(r *http.Request, err error, code int) *http.Request {
	newReq := WithError(r, err)
	if newReq == nil {
		return nil
	}
	if errCtx := GetErrorContext(newReq.Context()); errCtx != nil {
		errCtx.Code = code
	}
	return newReq
}

// WithErrorAndMessage is WithError plus a user-facing message distinct
// from err.Error().
func WithErrorAndMessage(r *http.Request, err error, message string) *http.Request {
	newReq := WithError(r, err)
	if newReq == nil {
		return nil
	}
	if errCtx := GetErrorContext(newReq.Context()); errCtx != nil {
		errCtx.Message = message
	}
	return newReq
}

// WithErrorAndCodeAndMessage sets both the status code and the message in
// one call.
func WithErrorAndCodeAndMessage(r *http.Request, err error, code int, message string) *http.Request {
	newReq := WithError(r, err)
	if newReq == nil {
		return nil
	}
	if errCtx := GetErrorContext(newReq.Context()); errCtx != nil {
		errCtx.Code = code
		errCtx.Message = message
	}
	return newReq
}

// GetErrorContext retrieves the *ErrorContext stored by WithError, or nil
// if none was ever attached.
func GetErrorContext(ctx context.Context) *ErrorContext {
	if ctx == nil {
		return nil
	}
	if errCtx, ok := ctx.Value(ErrorContextKey).(*ErrorContext); ok {
		return errCtx
	}
	return nil
}

// HasError reports whether ctx carries an ErrorContext.
func HasError(ctx context.Context) bool {
	return GetErrorContext(ctx) != nil
}

// WriteError writes the ErrorContext attached to r's context as a JSON
// error response, or a bare 500 if none was ever attached.
func WriteError(w http.ResponseWriter, r *http.Request) {
	errCtx := GetErrorContext(r.Context())
	if errCtx == nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(errCtx.Code)

	body := struct {
		Error     string `json:"error"`
		Code      int    `json:"code"`
		Path      string `json:"path"`
		Method    string `json:"method"`
		RequestID string `json:"request_id,omitempty"`
	}{
		Error:     errCtx.Message,
		Code:      errCtx.Code,
		Path:      errCtx.Path,
		Method:    errCtx.Method,
		RequestID: errCtx.RequestID,
	}
	_ = json.NewEncoder(w).Encode(body)
}

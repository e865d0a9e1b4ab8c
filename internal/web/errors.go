package web

// errors.go maps handler errors to JSON responses.
//
// The technical error is logged with the request ID for correlation; the
// client only sees the operator-facing message and stable code from
// core.Describe.

import (
	"net/http"

	"github.com/JonMunkholm/consolidator/internal/core"
	"github.com/JonMunkholm/consolidator/internal/logging"
)

// ErrorResponse represents the JSON structure for error responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err and writes a sanitized JSON error.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	info := core.Describe(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", info.Code,
	)

	writeJSON(w, statusCode, ErrorResponse{
		Error:   info.Message,
		Message: info.Message,
		Action:  info.Action,
		Code:    info.Code,
	})
}

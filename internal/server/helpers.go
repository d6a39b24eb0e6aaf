package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cnquant/stockpulse/internal/common"
)

// dataEnvelope is the data-plane response shape.
type dataEnvelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// adminEnvelope is the admin/operations response shape.
type adminEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// writeData writes a successful data-plane response.
func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, dataEnvelope{Code: http.StatusOK, Message: "ok", Data: data})
}

// writeDataMessage writes a data-plane response with an explicit status
// and message.
func writeDataMessage(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, dataEnvelope{Code: statusCode, Message: message})
}

// writeDataError maps an error kind to an HTTP status. bad_input and
// not_found surface verbatim; internal errors expose a generic message.
func writeDataError(w http.ResponseWriter, err error) {
	status := statusForKind(common.KindOf(err))
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	writeDataMessage(w, status, message)
}

// writeAdmin writes a successful admin response.
func writeAdmin(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, adminEnvelope{Success: true, Message: message, Data: data})
}

// writeAdminError writes a failed admin response.
func writeAdminError(w http.ResponseWriter, err error) {
	status := statusForKind(common.KindOf(err))
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	writeJSON(w, status, adminEnvelope{Success: false, Message: message})
}

func statusForKind(kind common.ErrorKind) int {
	switch kind {
	case common.KindBadInput:
		return http.StatusBadRequest
	case common.KindNotFound:
		return http.StatusNotFound
	case common.KindConflictSingleton:
		return http.StatusConflict
	case common.KindNotReady, common.KindRedisUnavailable:
		return http.StatusServiceUnavailable
	case common.KindRateLimitExhaust:
		return http.StatusTooManyRequests
	case common.KindProviderEmpty, common.KindProviderHTTP, common.KindProviderParse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// requireMethod validates the HTTP method, writing a 405 on mismatch.
func requireMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	writeDataMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

// pathParam extracts one path segment between prefix and suffix.
func pathParam(r *http.Request, prefix, suffix string) string {
	path := r.URL.Path
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	rest := path[len(prefix):]
	if suffix != "" {
		if idx := strings.Index(rest, suffix); idx >= 0 {
			return rest[:idx]
		}
		return rest
	}
	if idx := strings.Index(rest, "/"); idx >= 0 {
		return rest[:idx]
	}
	return rest
}

package http

import (
	"encoding/json"
	stdhttp "net/http"

	perr "searchbeat/internal/platform/errors"
	"searchbeat/internal/platform/logger"
)

// JSON writes body as JSON with the given status
func JSON(w stdhttp.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Get().Error().Err(err).Msg("response encode failed")
	}
}

// Error maps a project error to an HTTP status and writes it as JSON
func Error(w stdhttp.ResponseWriter, err error) {
	JSON(w, StatusOf(err), map[string]string{"error": err.Error()})
}

// StatusOf maps error codes to HTTP status codes
func StatusOf(err error) int {
	switch perr.CodeOf(err) {
	case perr.ErrorCodeNotFound:
		return stdhttp.StatusNotFound
	case perr.ErrorCodeInvalidArgument:
		return stdhttp.StatusBadRequest
	case perr.ErrorCodeUnauthorized:
		return stdhttp.StatusUnauthorized
	case perr.ErrorCodeConflict, perr.ErrorCodeDuplicateKey:
		return stdhttp.StatusConflict
	case perr.ErrorCodeTooManyRequests:
		return stdhttp.StatusTooManyRequests
	case perr.ErrorCodeUnavailable:
		return stdhttp.StatusServiceUnavailable
	}
	return stdhttp.StatusInternalServerError
}

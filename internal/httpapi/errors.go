package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/devblac/syt-bridge/internal/domain"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusFor maps the domain taxonomy to HTTP.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrUnsupportedChain),
		errors.Is(err, domain.ErrInvalidLogArgs),
		errors.Is(err, domain.ErrSignatureInvalid),
		errors.Is(err, domain.ErrNotAuthorized),
		errors.Is(err, domain.ErrDebateMismatch):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrStorageConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrChainUnavailable), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage never echoes node or database errors.
func publicMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return err.Error()
	case errors.Is(err, domain.ErrUnsupportedChain):
		return "Unsupported chain"
	case errors.Is(err, domain.ErrNotFound):
		return "Not found"
	case errors.Is(err, domain.ErrInvalidLogArgs):
		return "Transaction did not create a debate on the registered contract"
	case errors.Is(err, domain.ErrSignatureInvalid):
		return "Invalid signature"
	case errors.Is(err, domain.ErrNotAuthorized):
		return "You need to vote before submitting evidence"
	case errors.Is(err, domain.ErrDebateMismatch):
		return "debateId and chainId do not match the debate record"
	case errors.Is(err, domain.ErrChainUnavailable), errors.Is(err, context.DeadlineExceeded):
		return "Chain node unavailable, try again later"
	default:
		return "Internal Server Error"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	level := slog.LevelInfo
	if code >= 500 {
		level = slog.LevelError
	}
	s.log.Log(r.Context(), level, "request failed", "method", r.Method, "path", r.URL.Path, "status", code, "error", err)
	writeJSON(w, code, errorBody{Error: publicMessage(err), Code: domain.Kind(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

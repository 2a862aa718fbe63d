package api

import (
	"encoding/json"
	"net/http"

	"github.com/xaenox/notekeeper/internal/errs"
	"go.uber.org/zap"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, logger *zap.Logger, status int, message string) {
	writeJSON(w, logger, status, ErrorResponse{Error: message})
}

// respondStoreError maps a coded error to its status. Only internal faults
// are logged at error level; bad input and missing notes are routine.
func (s *Server) respondStoreError(w http.ResponseWriter, msg string, err error, fields ...zap.Field) {
	code := errs.CodeOf(err)
	fields = append(fields, zap.Error(err), zap.String("code", string(code)))

	if code == errs.Internal {
		s.logger.Error(msg, fields...)
	} else {
		s.logger.Debug(msg, fields...)
	}

	writeError(w, s.logger, errs.HTTPStatus(code), errs.MessageOf(err))
}

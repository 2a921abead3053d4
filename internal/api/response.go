package api

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/vladimiradmaev/diabetes-backend/internal/errors"
	"github.com/vladimiradmaev/diabetes-backend/internal/logger"
)

// errorResponse is the body of every failed request.
type errorResponse struct {
	Success bool           `json:"success"`
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

// dataResponse wraps a successful payload.
type dataResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to encode response", "error", err)
	}
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, dataResponse{Success: true, Data: data})
}

// writeError maps err to a status and a public message. Internal details
// never leave the process; they are logged by the error handler instead.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	s.errHandler.Handle(r.Context(), err)

	resp := errorResponse{Error: apperrors.PublicMessage(err), Code: apperrors.ErrInternalServer.Code}
	if appErr, ok := apperrors.As(err); ok {
		resp.Code = appErr.Code
		status := apperrors.HTTPStatus(err)
		if status < http.StatusInternalServerError && len(appErr.Context) > 0 {
			resp.Details = appErr.Context
		}
	}
	writeJSON(w, apperrors.HTTPStatus(err), resp)
}

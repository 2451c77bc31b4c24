package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/counselai/counsel/internal/fault"
)

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// faultError maps a classified error onto an HTTP status and error type.
// Configuration problems are the caller's to fix; document problems mean the
// upload was unprocessable; everything reaching an upstream service is a bad
// gateway.
func faultError(w http.ResponseWriter, err error) {
	switch fault.KindOf(err) {
	case fault.KindConfiguration:
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case fault.KindDocument:
		httpError(w, http.StatusUnprocessableEntity, "document_error", "%v", err)
	case fault.KindConnectivity, fault.KindEmbedding, fault.KindModel:
		httpError(w, http.StatusBadGateway, "upstream_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

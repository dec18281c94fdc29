package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/cuemby/hangar/pkg/apperr"
	"github.com/cuemby/hangar/pkg/log"
)

// errorBody is the wire shape for every non-2xx response.
type errorBody struct {
	Kind    string `json:"kind"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Logger.Error().Err(err).Msg("failed to encode response body")
	}
}

// writeError maps err onto hangar's error taxonomy and writes the
// matching status and body. Internal-kind causes are logged but never
// serialized back to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		appErr = apperr.Internal(err)
	}

	if appErr.Kind == apperr.KindInternal {
		log.Logger.Error().Err(appErr.Unwrap()).Str("path", r.URL.Path).Msg("internal server error")
	}

	writeJSON(w, appErr.Status(), errorBody{
		Kind:    string(appErr.Kind),
		Code:    appErr.Code,
		Message: appErr.Message,
		Details: appErr.Details,
	})
}

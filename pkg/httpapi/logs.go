package httpapi

import (
	"net/http"

	"github.com/cuemby/hangar/pkg/apperr"
)

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	project, err := s.loadProject(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	tail := r.URL.Query().Get("tail")
	if tail == "" {
		tail = "200"
	}

	logs, err := s.runtime.Logs(r.Context(), project.ContainerName, tail)
	if err != nil {
		writeError(w, r, apperr.Internal(err))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(logs))
}

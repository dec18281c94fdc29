package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/hangar/pkg/apperr"
	"github.com/cuemby/hangar/pkg/events"
)

// keepAliveInterval is the SSE comment ping cadence that keeps idle
// connections alive through intermediary proxies.
const keepAliveInterval = 5 * time.Second

// streamEvents writes ev objects arriving on sub as Server-Sent Events
// until the client disconnects, ticking a ": keep-alive" comment line
// on every idle interval. The caller has already subscribed sub and is
// responsible for nothing else; streamEvents owns the response loop.
func streamEvents(w http.ResponseWriter, r *http.Request, sub events.Subscriber) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, apperr.Internal(fmt.Errorf("response writer does not support flushing")))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, payload)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}

func (s *Server) handleProjectStream(w http.ResponseWriter, r *http.Request) {
	project, err := s.loadProject(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sub := s.hub.SubscribeProject(project.ID)
	defer s.hub.UnsubscribeProject(project.ID, sub)
	streamEvents(w, r, sub)
}

func (s *Server) handleCreationStream(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	sub := s.hub.SubscribeCreation(claims.UserID)
	defer s.hub.UnsubscribeCreation(claims.UserID, sub)
	streamEvents(w, r, sub)
}

func (s *Server) handleAdminStream(w http.ResponseWriter, r *http.Request) {
	sub := s.hub.SubscribeAdmin()
	defer s.hub.UnsubscribeAdmin(sub)
	streamEvents(w, r, sub)
}

func (s *Server) handleAllStream(w http.ResponseWriter, r *http.Request) {
	sub := s.hub.SubscribeAll()
	defer s.hub.UnsubscribeAll(sub)
	streamEvents(w, r, sub)
}

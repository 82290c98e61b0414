package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/nats-io/nats.go"

	"github.com/questlabs/quest-profile/pkg/notify"
)

const sseHeartbeatInterval = 30 * time.Second

// handleEvents streams queue transitions for one user as Server-Sent
// Events. Both per-user NATS subjects are bridged onto the connection;
// the subject prefix picks the SSE event name.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	msgs := make(chan *nats.Msg, 16)
	suggestionSub, err := s.nc.ChanSubscribe(notify.SuggestionSubject(userID), msgs)
	if err != nil {
		s.logger.Error("Failed to subscribe to suggestion events", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to subscribe")
		return
	}
	defer func() { _ = suggestionSub.Unsubscribe() }()

	verifiedSub, err := s.nc.ChanSubscribe(notify.VerifiedSubject(userID), msgs)
	if err != nil {
		s.logger.Error("Failed to subscribe to verified events", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to subscribe")
		return
	}
	defer func() { _ = verifiedSub.Unsubscribe() }()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "event: connected\ndata: {\"user_id\":%q}\n\n", userID)
	flusher.Flush()

	s.logger.Debug("SSE stream opened", "user_id", userID)

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE stream closed", "user_id", userID)
			return

		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()

		case msg := <-msgs:
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventNameForSubject(msg.Subject), msg.Data)
			flusher.Flush()
		}
	}
}

func eventNameForSubject(subject string) string {
	if strings.HasPrefix(subject, notify.VerifiedSubjectPrefix) {
		return notify.EventProfileVerified
	}
	return notify.EventProfileSuggestion
}

package server

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questlabs/quest-profile/pkg/notify"
	"github.com/questlabs/quest-profile/pkg/profile"
)

func startTestNats(t *testing.T) *nats.Conn {
	t.Helper()

	srv, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1})
	require.NoError(t, err)
	go srv.Start()
	require.True(t, srv.ReadyForConnections(10*time.Second))
	t.Cleanup(srv.Shutdown)

	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}

type sseEvent struct {
	Name string
	Data string
}

// readEvent consumes one named event, skipping comment lines.
func readEvent(t *testing.T, reader *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if ev.Name != "" {
				return ev
			}
		case strings.HasPrefix(line, ":"):
			// heartbeat
		case strings.HasPrefix(line, "event: "):
			ev.Name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.Data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestEventStream(t *testing.T) {
	nc := startTestNats(t)
	handler, _ := newTestHandler(t, nc)

	ts := httptest.NewServer(handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/users/u1/events")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)

	connected := readEvent(t, reader)
	assert.Equal(t, "connected", connected.Name)
	assert.Contains(t, connected.Data, "u1")

	notifier := notify.NewService(nc)
	require.NoError(t, notifier.SuggestionCreated("u1", profile.PendingConfirmation{
		ID:       "c1",
		FactType: profile.FactTypeDestination,
		NewValue: "Slovenia",
	}))

	suggestion := readEvent(t, reader)
	assert.Equal(t, notify.EventProfileSuggestion, suggestion.Name)
	assert.Contains(t, suggestion.Data, "Slovenia")
	assert.Contains(t, suggestion.Data, "c1")

	require.NoError(t, notifier.FactVerified("u1", "c1", profile.Fact{
		ID:        "f1",
		FactType:  profile.FactTypeDestination,
		FactValue: "Slovenia",
	}))

	verified := readEvent(t, reader)
	assert.Equal(t, notify.EventProfileVerified, verified.Name)
	assert.Contains(t, verified.Data, "f1")
}

func TestEventStreamIsPerUser(t *testing.T) {
	nc := startTestNats(t)
	handler, _ := newTestHandler(t, nc)

	ts := httptest.NewServer(handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/users/u1/events")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	reader := bufio.NewReader(resp.Body)
	require.Equal(t, "connected", readEvent(t, reader).Name)

	// Another user's suggestion must not appear on this stream; the
	// next event read is the later u1 one.
	notifier := notify.NewService(nc)
	require.NoError(t, notifier.SuggestionCreated("u2", profile.PendingConfirmation{
		ID: "other", FactType: profile.FactTypeOrigin, NewValue: "Germany",
	}))
	require.NoError(t, notifier.SuggestionCreated("u1", profile.PendingConfirmation{
		ID: "mine", FactType: profile.FactTypeTimeline, NewValue: "next year",
	}))

	ev := readEvent(t, reader)
	assert.Equal(t, notify.EventProfileSuggestion, ev.Name)
	assert.Contains(t, ev.Data, "mine")
	assert.NotContains(t, ev.Data, "other")
}

func TestEventStreamUnsubscribesOnDisconnect(t *testing.T) {
	nc := startTestNats(t)
	handler, _ := newTestHandler(t, nc)

	ts := httptest.NewServer(handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/users/u1/events")
	require.NoError(t, err)

	reader := bufio.NewReader(resp.Body)
	require.Equal(t, "connected", readEvent(t, reader).Name)
	require.EqualValues(t, 2, nc.NumSubscriptions())

	require.NoError(t, resp.Body.Close())
	assert.Eventually(t, func() bool {
		return nc.NumSubscriptions() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

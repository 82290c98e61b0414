package bootstrap

import (
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

const (
	NatsServerURL = "nats://127.0.0.1:4222"

	natsReadyTimeout = 10 * time.Second
)

// StartEmbeddedNATSServer runs a NATS server inside the process, bound
// to loopback. The notifier publishes profile events through it and the
// SSE bridge subscribes; nothing is exposed beyond localhost.
func StartEmbeddedNATSServer(logger *log.Logger) (*server.Server, error) {
	opts := &server.Options{
		Host: "127.0.0.1",
		Port: 4222,
	}

	s, err := server.NewServer(opts)
	if err != nil {
		return nil, err
	}

	go s.Start()

	if !s.ReadyForConnections(natsReadyTimeout) {
		return nil, errors.New("NATS server not ready in time")
	}

	logger.Info("Started NATS server", "url", s.ClientURL())
	return s, nil
}

func NewNatsClient() (*nats.Conn, error) {
	return nats.Connect(NatsServerURL, nats.Name("quest-profile"))
}

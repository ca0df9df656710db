package monitor

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/vk/magetbrain-bids/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// EventName is the Socket.IO event every pipeline event is emitted as.
const EventName = "magetbrain:event"

// connectTimeout bounds the wait for the initial Socket.IO handshake.
const connectTimeout = 15 * time.Second

// emitter is the part of a Socket.IO client the publisher needs.
type emitter interface {
	Emit(ev string, args ...any) error
}

// SocketIO publishes events to a Socket.IO server.
type SocketIO struct {
	logger     *slog.Logger
	emitter    emitter
	disconnect func()
}

// DialSocketIO connects to rawURL over WebSocket. The URL path selects the
// namespace, e.g. "https://monitor.example.org/magetbrain".
func DialSocketIO(ctx context.Context, rawURL string, insecureSkipVerify bool) (*SocketIO, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.New("failed to parse monitor URL")
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("monitor URL %q must be absolute", parsedURL.Redacted())
	}

	logger := ctxlog.FromContext(ctx).With("monitor", "socketio", "url", parsedURL.Redacted())
	logger.Info("Connecting to monitor...")

	opts := socket.DefaultOptions()
	if insecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	namespace := parsedURL.Path
	if namespace == "" {
		namespace = "/"
	}

	connectChan := make(chan error, 1)

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(namespace, opts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Connected to monitor", "sid", io.Id())
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := errors.New("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		connectChan <- err
	})

	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(connectTimeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", connectTimeout)
	}

	return &SocketIO{
		logger:     logger,
		emitter:    io,
		disconnect: func() { io.Disconnect() },
	}, nil
}

// Publish emits the event. Failures are logged and otherwise ignored.
func (s *SocketIO) Publish(e Event) {
	if err := s.emitter.Emit(EventName, e.Payload()); err != nil {
		s.logger.Warn("Failed to publish event", "kind", e.Kind, "error", err)
	}
}

// Close disconnects from the server.
func (s *SocketIO) Close() error {
	s.logger.Debug("Disconnecting from monitor.")
	if s.disconnect != nil {
		s.disconnect()
	}
	return nil
}

package e2etest

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/myrjola/coachline/internal/errors"
	"github.com/myrjola/coachline/internal/logging"
)

type Server struct {
	url    string
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// LogAddrKey is the key used to log the address the server is listening on.
const LogAddrKey = "addr"

// StartServer starts the test server, waits for it to be ready, and return the server URL for testing.
//
// logSink is the writer to which the server logs are written. You usually want to use [io.Discard].
// lookupEnv is a function that returns the value of an environment variable. It has same signature as [os.LookupEnv].
// run is the function that starts the server. We expect the server to log the address it's listening on with
// LogAddrKey.
func StartServer(
	ctx context.Context,
	logSink io.Writer,
	lookupEnv func(string) (string, bool),
	run func(context.Context, *slog.Logger, func(string) (string, bool)) error,
) (*Server, error) {
	ctx, cancel := context.WithCancelCause(ctx)

	// We need to grab the dynamically allocated port from the log output.
	addrCh := make(chan string, 1)
	logger := slog.New(logging.NewContextHandler(slog.NewTextHandler(logSink, &slog.HandlerOptions{
		AddSource: false,
		Level:     slog.LevelDebug,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == LogAddrKey {
				select {
				case addrCh <- a.Value.String():
				default:
				}
			}
			return a
		},
	})))

	// Start the server and wait for it to be ready.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := run(ctx, logger, lookupEnv); err != nil {
			cancel(err)
		}
	}()
	select {
	case <-ctx.Done():
		<-done
		return nil, errors.Wrap(context.Cause(ctx), "server stopped before it was ready")
	case addr := <-addrCh:
		s := &Server{url: fmt.Sprintf("http://%s", addr), cancel: cancel, done: done}
		client, err := s.NewClient()
		if err != nil {
			s.Stop()
			return nil, err
		}
		if err = client.WaitForReady(ctx, "/api/healthy"); err != nil {
			s.Stop()
			return nil, errors.Wrap(err, "wait for ready")
		}
		return s, nil
	}
}

// NewClient returns a client with its own cookies, i.e. a new device.
func (s *Server) NewClient() (*Client, error) {
	client, err := NewClient(s.url)
	if err != nil {
		return nil, errors.Wrap(err, "new client")
	}
	return client, nil
}

func (s *Server) URL() string {
	return s.url
}

// Stop shuts the server down and waits until it has stopped.
func (s *Server) Stop() {
	s.cancel(context.Canceled)
	<-s.done
}

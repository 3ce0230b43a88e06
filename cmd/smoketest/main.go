package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/myrjola/coachline/internal/e2etest"
	"github.com/myrjola/coachline/internal/errors"
	"github.com/myrjola/coachline/internal/logging"
	"github.com/myrjola/coachline/internal/models"
)

// TestDiscovery walks an anonymous device through the start of the questionnaire. It does not chat, so the smoke
// test never spends language model tokens.
func TestDiscovery(ctx context.Context, client *e2etest.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second) //nolint:mnd // 10 seconds
	defer cancel()
	var (
		err     error
		session e2etest.Session
		d       e2etest.Discovery
	)

	if err = client.WaitForReady(ctx, "/api/healthy"); err != nil {
		return errors.Wrap(err, "wait for ready")
	}
	if session, err = client.Load(ctx); err != nil {
		return errors.Wrap(err, "load session")
	}
	if session.Discovery.State.Status != models.DiscoveryNotStarted {
		return errors.New("anonymous discovery did not restart",
			slog.String("status", string(session.Discovery.State.Status)))
	}
	if d, err = client.StartDiscovery(ctx); err != nil {
		return errors.Wrap(err, "start discovery")
	}
	if d.Question == nil {
		return errors.New("discovery has no first question")
	}
	if d, err = client.PauseDiscovery(ctx); err != nil {
		return errors.Wrap(err, "pause discovery")
	}
	if d.State.Status != models.DiscoveryPaused {
		return errors.New("discovery did not pause", slog.String("status", string(d.State.Status)))
	}
	return nil
}

func main() {
	loggerHandler := logging.NewContextHandler(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource:   false,
		Level:       slog.LevelDebug,
		ReplaceAttr: nil,
	}))
	logger := slog.New(loggerHandler)
	ctx := context.Background()

	if len(os.Args) != 2 { //nolint:mnd // we expect only hostname to be passed as argument.
		logger.LogAttrs(ctx, slog.LevelError, "usage: smoketest <hostname>")
		os.Exit(1)
	}

	var (
		hostname = os.Args[1]
		url      = "https://" + hostname
		client   *e2etest.Client
		err      error
	)
	ctx = logging.WithAttrs(ctx, slog.String("hostname", url))

	if client, err = e2etest.NewClient(url); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error creating client", errors.SlogError(err))
		os.Exit(1)
	}
	if err = TestDiscovery(ctx, client); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error testing discovery", errors.SlogError(err))
		os.Exit(1)
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "Smoke test successful 🙌")
	os.Exit(0)
}

package testhelpers

import (
	"bytes"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/myrjola/coachline/internal/logging"
)

// NewLogger creates a new logger with the given log sink such as io.Discard.
func NewLogger(logSink io.Writer) *slog.Logger {
	handler := logging.NewContextHandler(slog.NewTextHandler(logSink, &slog.HandlerOptions{
		AddSource:   false,
		Level:       slog.LevelDebug,
		ReplaceAttr: nil,
	}))
	return slog.New(handler)
}

// LogBuffer is a goroutine-safe sink for asserting on log output in tests.
type LogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p) //nolint:wrapcheck // bytes.Buffer never fails.
}

func (b *LogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// NewBufferedLogger returns a logger writing to a LogBuffer, and dumps the logs when the test fails.
func NewBufferedLogger(t testing.TB) (*slog.Logger, *LogBuffer) {
	t.Helper()
	buf := &LogBuffer{} //nolint:exhaustruct // zero value is ready to use.
	t.Cleanup(func() {
		if t.Failed() {
			t.Log(buf.String())
		}
	})
	return NewLogger(buf), buf
}

package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/myrjola/coachline/internal/errors"
	"github.com/myrjola/coachline/internal/sqlite"
	"github.com/myrjola/coachline/internal/testhelpers"
)

// main migrates a copy of a production database to the current schema and reports what it contains.
func main() {
	logger := testhelpers.NewLogger(os.Stdout)
	var (
		err       error
		start     = time.Now()
		ctx       context.Context
		sqliteURL string
		ok        bool
		cancel    context.CancelFunc
	)
	ctx = context.Background()
	ctx, cancel = context.WithTimeout(ctx, 5*time.Second) //nolint:mnd // 5 seconds
	defer cancel()

	if sqliteURL, ok = os.LookupEnv("COACHLINE_SQLITE_URL"); !ok {
		logger.LogAttrs(ctx, slog.LevelError, "COACHLINE_SQLITE_URL not set")
		os.Exit(1)
	}

	var db *sqlite.Database
	if db, err = sqlite.NewDatabase(ctx, sqliteURL, logger); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error creating database",
			slog.String("url", sqliteURL), errors.SlogError(err))
		os.Exit(1)
	}

	// Counting the rows of every table fails loudly if the migration lost a table or broke its columns.
	for _, table := range []string{"conversations", "messages", "profiles", "device_records", "sessions"} {
		var count int
		if err = db.ReadOnly.GetContext(ctx, &count, `SELECT COUNT(*) FROM `+table); err != nil {
			logger.LogAttrs(ctx, slog.LevelError, "error counting rows", slog.String("table", table),
				errors.SlogError(err))
			os.Exit(1)
		}
		logger.LogAttrs(ctx, slog.LevelInfo, "row count", slog.String("table", table), slog.Int("count", count))
	}
	if err = db.Close(); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error closing database", errors.SlogError(err))
		os.Exit(1)
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "Migration test successful 🙌", slog.Duration("duration", time.Since(start)))
}

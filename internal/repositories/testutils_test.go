package repositories_test

import (
	"context"
	"testing"

	"github.com/myrjola/coachline/internal/sqlite"
	"github.com/myrjola/coachline/internal/testhelpers"
	"github.com/stretchr/testify/require"
)

// newTestDB creates a new in-memory database for testing purposes.
func newTestDB(t *testing.T) *sqlite.Database {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	logger, _ := testhelpers.NewBufferedLogger(t)

	db, err := sqlite.NewDatabase(ctx, ":memory:", logger)
	require.NoError(t, err)

	t.Cleanup(func() {
		cancel()
		require.NoError(t, db.Close())
	})

	return db
}

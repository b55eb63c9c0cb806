// Package storetest opens throwaway sqlite-backed stores for package tests.
package storetest

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stellaria-pact/governance/src/data"
	"github.com/stellaria-pact/governance/src/store"
	"github.com/stretchr/testify/require"
)

// Clock is a settable time source.
type Clock struct {
	T time.Time
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time { return c.T }

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) { c.T = c.T.Add(d) }

// New returns a migrated store on a fresh sqlite file and a clock fixed at
// 2024-05-01 12:00 UTC.
func New(t *testing.T) (*store.Store, *Clock) {
	t.Helper()

	dsn := "sqlite:" + filepath.Join(t.TempDir(), "pact.db") + "?_busy_timeout=5000"
	db, err := data.Connect(dsn)
	require.NoError(t, err)
	require.NoError(t, data.Migrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	clock := &Clock{T: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	s := store.New(db)
	s.SetClock(clock.Now)
	return s, clock
}

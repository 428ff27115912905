package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strata/internal/config"
	"strata/internal/domain"
)

func TestOpenAdapter(t *testing.T) {
	ctx := context.Background()

	for _, driver := range []string{config.DriverSQLite, config.DriverSQLiteNcruces} {
		t.Run(driver, func(t *testing.T) {
			adapter, err := openAdapter(ctx, config.DatabaseConfig{
				Driver: driver,
				DSN:    filepath.Join(t.TempDir(), "strata.db"),
			})
			require.NoError(t, err)
			assert.NoError(t, adapter.Close())
		})
	}

	_, err := openAdapter(ctx, config.DatabaseConfig{Driver: "oracle"})
	assert.ErrorContains(t, err, "unknown database driver")
}

func TestWithAppSession(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "strata.yaml")
	data := "database:\n  dsn: " + filepath.Join(dir, "strata.db") + "\nlog:\n  level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	configFile = path
	t.Cleanup(func() { configFile = "" })

	var subjects []string
	for range 2 {
		err := withApp(context.Background(), func(ctx context.Context, a *app, session domain.Session) error {
			subjects = append(subjects, session.Subject)
			assert.Equal(t, a.cfg.Locks.Lease.Duration(), a.lockOptions().LeaseDuration)
			return nil
		})
		require.NoError(t, err)
	}
	require.Len(t, subjects, 2)
	assert.NotEmpty(t, subjects[0])
	assert.Equal(t, subjects[0], subjects[1], "the cli principal is reused")
}

package pool

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAcquireReleaseReuse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	p := New(Config{MaxPerKey: 2})
	ctx := context.Background()

	h1, err := p.Acquire(ctx, path)
	require.NoError(t, err)
	require.NotNil(t, h1.DB)
	h1.Release()

	require.Equal(t, 1, p.Stats()[path])

	h2, err := p.Acquire(ctx, path)
	require.NoError(t, err)
	require.Equal(t, 0, p.Stats()[path])
	h2.Release()
}

func TestWithConnectionReleasesOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	p := New(Config{MaxPerKey: 1})
	ctx := context.Background()

	err := p.WithConnection(ctx, path, func(db *sql.DB) error {
		return errors.New("query failed")
	})
	require.Error(t, err)
	require.Equal(t, 1, p.Stats()[path])
}

func TestMaxPerKeyEvictsExcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	p := New(Config{MaxPerKey: 1})
	ctx := context.Background()

	h1, err := p.Acquire(ctx, path)
	require.NoError(t, err)
	h2, err := p.Acquire(ctx, path)
	require.NoError(t, err)

	h1.Release()
	h2.Release()

	require.Equal(t, 1, p.Stats()[path])
}

func TestCloseAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	p := New(Config{MaxPerKey: 2})
	ctx := context.Background()

	h, err := p.Acquire(ctx, path)
	require.NoError(t, err)
	h.Release()
	require.Equal(t, 1, p.Stats()[path])

	p.CloseAll()
	require.Equal(t, 0, p.Stats()[path])
}

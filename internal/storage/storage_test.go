package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dkeye/Chat/internal/config"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/dkeye/Chat/internal/storage/memory"
	"github.com/dkeye/Chat/internal/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMemory(t *testing.T) {
	s, closeFn, err := Open(context.Background(), config.Storage{Driver: "memory"})
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &memory.Store{}, s)
}

func TestOpenSQLiteCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "chat.db")
	s, closeFn, err := Open(context.Background(), config.Storage{Driver: "sqlite", SQLitePath: path})
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &sqlite.Store{}, s)

	d, err := domain.NewDraft(1, 1, "persisted", nil, nil)
	require.NoError(t, err)
	msg, err := s.Append(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, int64(1), msg.Seq)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, _, err := Open(context.Background(), config.Storage{Driver: "mongo"})
	assert.Error(t, err)
}

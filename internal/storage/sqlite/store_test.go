package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/dkeye/Chat/internal/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sqlite3lib "modernc.org/sqlite/lib"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "chat.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) core.Store {
		return openTestStore(t)
	})
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "  ", 0)
	assert.Error(t, err)
}

func TestOpenIsIdempotentOverExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.db")
	ctx := context.Background()

	first, err := Open(ctx, path, 0)
	require.NoError(t, err)
	d, err := domain.NewDraft(1, 1, "kept", nil, nil)
	require.NoError(t, err)
	_, err = first.Append(ctx, d)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(ctx, path, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	msg, err := second.Append(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, int64(2), msg.Seq)
}

func TestAppendFailsOnCanceledContext(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d, err := domain.NewDraft(1, 1, "late", nil, nil)
	require.NoError(t, err)
	_, err = s.Append(ctx, d)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPersistence)

	hist, err := s.History(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestExtractUp(t *testing.T) {
	got := extractUp("-- +migrate Up\nCREATE TABLE t (id INTEGER);\n-- +migrate Down\nDROP TABLE t;\n")
	assert.Equal(t, "\nCREATE TABLE t (id INTEGER);\n", got)
	assert.Equal(t, "SELECT 1;", extractUp("SELECT 1;"))
}

func TestRetryableCode(t *testing.T) {
	assert.True(t, retryableCode(sqlite3lib.SQLITE_CONSTRAINT_UNIQUE))
	assert.True(t, retryableCode(sqlite3lib.SQLITE_BUSY))
	assert.True(t, retryableCode(sqlite3lib.SQLITE_BUSY_SNAPSHOT))
	assert.True(t, retryableCode(sqlite3lib.SQLITE_BUSY_RECOVERY))
	assert.False(t, retryableCode(sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY))
	assert.False(t, retryableCode(sqlite3lib.SQLITE_CONSTRAINT_CHECK))
	assert.False(t, retryableCode(sqlite3lib.SQLITE_IOERR))
}

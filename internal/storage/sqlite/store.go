// Package sqlite provides a SQLite-backed message store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/dkeye/Chat/internal/storage/sqlite/migrations"
	"github.com/rs/zerolog/log"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const defaultAppendRetries = 3

// Store persists messages in SQLite.
// Appends for one room are serialized in-process by a room lock; BEGIN IMMEDIATE
// transactions and UNIQUE(room_id, seq) cover other processes sharing the file.
type Store struct {
	sqlDB   *sql.DB
	locks   *core.RoomLocks
	retries int
}

var _ core.Store = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite message store and applies embedded migrations.
func Open(ctx context.Context, path string, appendRetries int) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	if appendRetries <= 0 {
		appendRetries = defaultAppendRetries
	}
	return &Store{sqlDB: sqlDB, locks: core.NewRoomLocks(), retries: appendRetries}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Append(ctx context.Context, d domain.Draft) (domain.Message, error) {
	unlock := s.locks.Lock(d.RoomID)
	defer unlock()

	var lastErr error
	for attempt := 1; attempt <= s.retries; attempt++ {
		msg, err := s.appendOnce(ctx, d)
		if err == nil {
			return msg, nil
		}
		if !isSeqConflict(err) {
			return domain.Message{}, domain.Persistence("append message", err)
		}
		lastErr = err
		log.Warn().Str("module", "storage.sqlite").Int64("room", int64(d.RoomID)).Int("attempt", attempt).Msg("seq conflict, retrying")
	}
	return domain.Message{}, domain.Persistence("append message", lastErr)
}

func (s *Store) appendOnce(ctx context.Context, d domain.Draft) (domain.Message, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Message{}, fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createdAt := time.Now().UTC()
	msg := domain.Message{
		RoomID:    d.RoomID,
		SenderID:  d.SenderID,
		ToUserID:  d.ToUserID,
		Content:   d.Content,
		ReplyToID: d.ReplyToID,
		CreatedAt: fromMillis(toMillis(createdAt)),
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO messages (room_id, sender_id, to_user_id, content, seq, reply_to_id, created_at)
		SELECT ?, ?, ?, ?, COALESCE(MAX(seq), 0) + 1, ?, ?
		FROM messages WHERE room_id = ?
		RETURNING id, seq`,
		int64(d.RoomID),
		int64(d.SenderID),
		nullUser(d.ToUserID),
		d.Content,
		nullMessage(d.ReplyToID),
		toMillis(createdAt),
		int64(d.RoomID),
	).Scan(&msg.ID, &msg.Seq)
	if err != nil {
		return domain.Message{}, fmt.Errorf("insert message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Message{}, fmt.Errorf("commit append: %w", err)
	}
	return msg, nil
}

func (s *Store) History(ctx context.Context, room domain.RoomID, limit int) ([]domain.Message, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT id, room_id, sender_id, to_user_id, content, seq, reply_to_id, created_at
		FROM (
			SELECT * FROM messages WHERE room_id = ? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC`,
		int64(room), domain.ClampHistoryLimit(limit),
	)
	if err != nil {
		return nil, domain.Persistence("query history", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *Store) Page(ctx context.Context, room domain.RoomID, page, size int) ([]domain.Message, int, error) {
	page, size = domain.ClampPage(page, size)

	var total int
	if err := s.sqlDB.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM messages WHERE room_id = ?`, int64(room),
	).Scan(&total); err != nil {
		return nil, 0, domain.Persistence("count messages", err)
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT id, room_id, sender_id, to_user_id, content, seq, reply_to_id, created_at
		FROM messages WHERE room_id = ?
		ORDER BY seq DESC
		LIMIT ? OFFSET ?`,
		int64(room), size, domain.Offset(page, size),
	)
	if err != nil {
		return nil, 0, domain.Persistence("query page", err)
	}
	defer rows.Close()
	items, err := scanMessages(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func scanMessages(rows *sql.Rows) ([]domain.Message, error) {
	out := []domain.Message{}
	for rows.Next() {
		var (
			m         domain.Message
			toUser    sql.NullInt64
			replyTo   sql.NullInt64
			createdAt int64
		)
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &toUser, &m.Content, &m.Seq, &replyTo, &createdAt); err != nil {
			return nil, domain.Persistence("scan message", err)
		}
		if toUser.Valid {
			v := domain.UserID(toUser.Int64)
			m.ToUserID = &v
		}
		if replyTo.Valid {
			v := domain.MessageID(replyTo.Int64)
			m.ReplyToID = &v
		}
		m.CreatedAt = fromMillis(createdAt)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Persistence("iterate messages", err)
	}
	return out, nil
}

func nullUser(v *domain.UserID) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullMessage(v *domain.MessageID) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func isSeqConflict(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		return retryableCode(sqliteErr.Code())
	}
	return false
}

// retryableCode reports a lost race on seq: a UNIQUE(room_id, seq) violation
// or any busy code, extended ones such as SQLITE_BUSY_SNAPSHOT included.
func retryableCode(code int) bool {
	return code == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE || code&0xff == sqlite3lib.SQLITE_BUSY
}

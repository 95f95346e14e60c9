// Package postgres provides a PostgreSQL-backed message store and a LISTEN
// client for the per-room insert notifications its schema emits.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/dkeye/Chat/internal/storage/postgres/migrations"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const (
	defaultAppendRetries = 3
	uniqueViolation      = "23505"
)

// Store handles message persistence on PostgreSQL.
// Seq assignment takes a transaction-scoped advisory lock keyed by room id,
// so appends to one room are serialized across every process using the database.
type Store struct {
	pool    *pgxpool.Pool
	retries int
}

var _ core.Store = (*Store)(nil)

// NewStore connects a pool and applies embedded migrations.
func NewStore(ctx context.Context, databaseURL string, appendRetries int) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := applyMigrations(ctx, pool, migrations.FS); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	if appendRetries <= 0 {
		appendRetries = defaultAppendRetries
	}
	return &Store{pool: pool, retries: appendRetries}, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Append(ctx context.Context, d domain.Draft) (domain.Message, error) {
	var lastErr error
	for attempt := 1; attempt <= s.retries; attempt++ {
		msg, err := s.appendOnce(ctx, d)
		if err == nil {
			return msg, nil
		}
		if !isUniqueViolation(err) {
			return domain.Message{}, domain.Persistence("append message", err)
		}
		lastErr = err
		log.Warn().Str("module", "storage.postgres").Int64("room", int64(d.RoomID)).Int("attempt", attempt).Msg("seq conflict, retrying")
	}
	return domain.Message{}, domain.Persistence("append message", lastErr)
}

func (s *Store) appendOnce(ctx context.Context, d domain.Draft) (domain.Message, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Message{}, fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(d.RoomID)); err != nil {
		return domain.Message{}, fmt.Errorf("lock room: %w", err)
	}

	msg := domain.Message{
		RoomID:    d.RoomID,
		SenderID:  d.SenderID,
		ToUserID:  d.ToUserID,
		Content:   d.Content,
		ReplyToID: d.ReplyToID,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO messages (room_id, sender_id, to_user_id, content, seq, reply_to_id)
		SELECT $1, $2, $3, $4, COALESCE(MAX(seq), 0) + 1, $5
		FROM messages WHERE room_id = $1
		RETURNING id, seq, created_at
	`, int64(d.RoomID), int64(d.SenderID), d.ToUserID, d.Content, d.ReplyToID).Scan(
		&msg.ID,
		&msg.Seq,
		&msg.CreatedAt,
	)
	if err != nil {
		return domain.Message{}, fmt.Errorf("insert message: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Message{}, fmt.Errorf("commit append: %w", err)
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	return msg, nil
}

func (s *Store) History(ctx context.Context, room domain.RoomID, limit int) ([]domain.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, room_id, sender_id, to_user_id, content, seq, reply_to_id, created_at
		FROM (
			SELECT * FROM messages WHERE room_id = $1 ORDER BY seq DESC LIMIT $2
		) newest
		ORDER BY seq ASC
	`, int64(room), domain.ClampHistoryLimit(limit))
	if err != nil {
		return nil, domain.Persistence("query history", err)
	}
	return collectMessages(rows)
}

func (s *Store) Page(ctx context.Context, room domain.RoomID, page, size int) ([]domain.Message, int, error) {
	page, size = domain.ClampPage(page, size)

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE room_id = $1`, int64(room),
	).Scan(&total); err != nil {
		return nil, 0, domain.Persistence("count messages", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, room_id, sender_id, to_user_id, content, seq, reply_to_id, created_at
		FROM messages WHERE room_id = $1
		ORDER BY seq DESC
		LIMIT $2 OFFSET $3
	`, int64(room), size, domain.Offset(page, size))
	if err != nil {
		return nil, 0, domain.Persistence("query page", err)
	}
	items, err := collectMessages(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func collectMessages(rows pgx.Rows) ([]domain.Message, error) {
	defer rows.Close()
	out := []domain.Message{}
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(
			&m.ID,
			&m.RoomID,
			&m.SenderID,
			&m.ToUserID,
			&m.Content,
			&m.Seq,
			&m.ReplyToID,
			&m.CreatedAt,
		); err != nil {
			return nil, domain.Persistence("scan message", err)
		}
		m.CreatedAt = m.CreatedAt.UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Persistence("iterate messages", err)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

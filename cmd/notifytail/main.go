// Command notifytail follows the per-room insert notifications emitted by the
// Postgres schema and logs each one. It runs outside the chat server.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Chat/internal/domain"
	"github.com/dkeye/Chat/internal/storage/postgres"
)

func main() {
	_ = godotenv.Load()

	var (
		databaseURL string
		roomsFlag   string
		jsonLogs    bool
	)
	flag.StringVar(&databaseURL, "database-url", os.Getenv("CHAT_STORAGE_DATABASE_URL"), "postgres connection string (default: CHAT_STORAGE_DATABASE_URL)")
	flag.StringVar(&roomsFlag, "rooms", "", "comma-separated room IDs to follow")
	flag.BoolVar(&jsonLogs, "json", false, "write JSON log lines")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if !jsonLogs {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	rooms, err := parseRooms(roomsFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid -rooms")
	}
	if databaseURL == "" || len(rooms) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	l, err := postgres.NewListener(ctx, databaseURL, rooms...)
	if err != nil {
		log.Fatal().Err(err).Msg("listen failed")
	}
	defer func() { _ = l.Close(context.Background()) }()

	log.Info().Str("module", "notifytail").Interface("rooms", rooms).Msg("listening")
	for {
		ev, err := l.Next(ctx)
		switch {
		case err == nil:
			m := ev.Message
			entry := log.Info().
				Str("module", "notifytail").
				Int64("room", int64(m.RoomID)).
				Int64("id", int64(m.ID)).
				Int64("seq", m.Seq).
				Int64("sender", int64(m.SenderID))
			if to, ok := ev.Recipient(); ok {
				entry = entry.Int64("to", int64(to))
			}
			entry.Str("content", m.Content).Msg("message inserted")
		case errors.Is(err, domain.ErrProtocol):
			log.Warn().Err(err).Str("module", "notifytail").Msg("skipping notification")
		case ctx.Err() != nil:
			log.Info().Str("module", "notifytail").Msg("stopped")
			return
		default:
			log.Error().Err(err).Str("module", "notifytail").Msg("wait for notification")
			return
		}
	}
}

func parseRooms(raw string) ([]domain.RoomID, error) {
	var out []domain.RoomID
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, domain.InvalidInput("invalid_room", "bad room id "+strconv.Quote(part))
		}
		out = append(out, domain.RoomID(id))
	}
	return out, nil
}

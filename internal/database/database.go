package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/joho/godotenv/autoload"

	"skycrash/internal/game"
)

// Service is the Postgres-backed wager journal: an append-only audit trail of
// every bet, cashout and loss. Journal writes are best-effort — settlement
// never waits on or fails with the journal.
type Service interface {
	Health() map[string]string
	Close() error

	// RecordWager appends one settlement audit row.
	RecordWager(ctx context.Context, w game.WagerRecord) error

	// PlayerWagers lists a player's most recent journal rows.
	PlayerWagers(ctx context.Context, playerID string, limit int) ([]WagerRow, error)
}

// WagerRow is one persisted journal entry.
type WagerRow struct {
	ID         string    `json:"id"`
	RoundID    string    `json:"round_id"`
	PlayerID   string    `json:"player_id"`
	Kind       string    `json:"kind"`
	Amount     float64   `json:"amount"`
	Multiplier float64   `json:"multiplier"`
	CreatedAt  time.Time `json:"created_at"`
}

type service struct {
	db *sql.DB
}

var (
	database   = getEnv("BLUEPRINT_DB_DATABASE", "crashdb")
	password   = getEnv("BLUEPRINT_DB_PASSWORD", "postgres")
	username   = getEnv("BLUEPRINT_DB_USERNAME", "postgres")
	port       = getEnv("BLUEPRINT_DB_PORT", "5432")
	host       = getEnv("BLUEPRINT_DB_HOST", "localhost")
	schema     = getEnv("BLUEPRINT_DB_SCHEMA", "public")
	dbInstance *service
)

func New() Service {
	if dbInstance != nil {
		return dbInstance
	}

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable&search_path=%s",
		username, password, host, port, database, schema)
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		log.Fatalf("[DB] Failed to open connection: %v", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	dbInstance = &service{db: db}
	return dbInstance
}

func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	stats := make(map[string]string)

	if err := s.db.PingContext(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "It's healthy"

	dbStats := s.db.Stats()
	stats["open_connections"] = fmt.Sprintf("%d", dbStats.OpenConnections)
	stats["in_use"] = fmt.Sprintf("%d", dbStats.InUse)
	stats["idle"] = fmt.Sprintf("%d", dbStats.Idle)

	return stats
}

func (s *service) Close() error {
	log.Printf("[DB] Disconnecting from %s", database)
	return s.db.Close()
}

func (s *service) RecordWager(ctx context.Context, w game.WagerRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO wager_events (id, round_id, player_id, kind, amount, multiplier)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.NewString(), w.RoundID, w.PlayerID, w.Kind, w.Amount, w.Multiplier)
	if err != nil {
		return fmt.Errorf("record wager: %w", err)
	}
	return nil
}

func (s *service) PlayerWagers(ctx context.Context, playerID string, limit int) ([]WagerRow, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, round_id, player_id, kind, amount, multiplier, created_at
		 FROM wager_events
		 WHERE player_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list wagers: %w", err)
	}
	defer rows.Close()

	var out []WagerRow
	for rows.Next() {
		var w WagerRow
		if err := rows.Scan(&w.ID, &w.RoundID, &w.PlayerID, &w.Kind, &w.Amount, &w.Multiplier, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan wager: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

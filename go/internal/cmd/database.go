package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/overlaykit/overlaykit/go/internal/dbconfig"
)

// setupDatabase opens both Postgres handles the server needs: a pgx pool for
// the settings repository and a database/sql handle for the outbox queries
// and the pq LISTEN connection.
func setupDatabase(ctx context.Context) (*pgxpool.Pool, *sql.DB, string, error) {
	cfg := dbconfig.NewConfigFromEnv()
	dsn := cfg.DSN()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, nil, "", fmt.Errorf("failed to ping database: %w", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		pool.Close()
		return nil, nil, "", fmt.Errorf("failed to open database connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		pool.Close()
		return nil, nil, "", fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("connected to database")
	return pool, db, dsn, nil
}

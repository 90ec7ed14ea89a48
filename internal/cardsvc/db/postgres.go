package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS cards (
	card_id          TEXT PRIMARY KEY,
	name             TEXT NOT NULL DEFAULT '',
	dob              TEXT NOT NULL DEFAULT '',
	gender           TEXT NOT NULL DEFAULT '',
	phone            TEXT NOT NULL DEFAULT '',
	address          TEXT NOT NULL DEFAULT '',
	blood_group      TEXT NOT NULL DEFAULT '',
	disabilities     TEXT NOT NULL DEFAULT '',
	allergies        TEXT NOT NULL DEFAULT '',
	conditions       TEXT NOT NULL DEFAULT '',
	vaccinations     TEXT NOT NULL DEFAULT '',
	issue_date       TEXT NOT NULL DEFAULT '',
	doctor           TEXT NOT NULL DEFAULT '',
	access_code      TEXT NOT NULL DEFAULT '',
	emergency_name1  TEXT NOT NULL DEFAULT '',
	emergency_phone1 TEXT NOT NULL DEFAULT '',
	relation1        TEXT NOT NULL DEFAULT '',
	emergency_name2  TEXT NOT NULL DEFAULT '',
	emergency_phone2 TEXT NOT NULL DEFAULT '',
	relation2        TEXT NOT NULL DEFAULT '',
	photo            TEXT NOT NULL DEFAULT '',
	doc1             TEXT NOT NULL DEFAULT '',
	doc2             TEXT NOT NULL DEFAULT '',
	doc3             TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Connect opens a pool and pings it. The caller owns the pool and closes
// it on shutdown.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, fmt.Errorf("POSTGRES_URL is not set")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	// Try pinging to make sure it's valid
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// Migrate creates the cards table when it does not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create cards table: %w", err)
	}
	return nil
}

package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Connect opens the Postgres document store and applies the schema.
func Connect(ctx context.Context, dsn string, log *zap.Logger) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	log.Info("database migrations applied")
	return db, nil
}

func runMigrations(ctx context.Context, db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS groups (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            owner_id TEXT NOT NULL,
            created_by TEXT NOT NULL,
            is_public BOOLEAN NOT NULL DEFAULT FALSE,
            members TEXT[] NOT NULL DEFAULT '{}',
            reveal_date TIMESTAMPTZ NOT NULL,
            reveal_per_message BOOLEAN NOT NULL DEFAULT FALSE,
            allow_all_to_post BOOLEAN NOT NULL DEFAULT FALSE,
            cover_image TEXT,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            CHECK (NOT (reveal_per_message AND allow_all_to_post))
        );`,
		`CREATE INDEX IF NOT EXISTS groups_members_idx ON groups USING GIN (members);`,
		`CREATE INDEX IF NOT EXISTS groups_created_at_idx ON groups (created_at DESC);`,
		// group_id carries no foreign key: deleting a group leaves its messages
		// to the orphan sweep.
		`CREATE TABLE IF NOT EXISTS messages (
            id TEXT PRIMARY KEY,
            group_id TEXT NOT NULL,
            sender_id TEXT NOT NULL,
            sender_name TEXT NOT NULL,
            sender_photo_url TEXT,
            text TEXT,
            media_url TEXT,
            media_type TEXT CHECK (media_type IN ('image', 'video', 'audio')),
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            reveal_date TIMESTAMPTZ NOT NULL,
            is_revealed BOOLEAN NOT NULL DEFAULT FALSE,
            reactions JSONB NOT NULL DEFAULT '{}',
            CHECK ((text IS NULL) <> (media_url IS NULL))
        );`,
		`CREATE INDEX IF NOT EXISTS messages_group_created_idx ON messages (group_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS messages_unrevealed_idx ON messages (created_at) WHERE is_revealed = FALSE;`,
	}

	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

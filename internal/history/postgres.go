package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"

	"deviation-classifier-go/internal/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS deviation_classifications (
	id          UUID PRIMARY KEY,
	location    TEXT NOT NULL,
	text        TEXT NOT NULL,
	had_audio   BOOLEAN NOT NULL DEFAULT FALSE,
	inferred    JSONB NOT NULL,
	final       JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS deviation_classifications_created_at_idx
	ON deviation_classifications (created_at DESC);`

const projection = `id, location, text, had_audio, inferred, final, created_at`

// Postgres stores records in PostgreSQL through the pgx database/sql driver.
type Postgres struct {
	db  *sql.DB
	log *logrus.Entry
}

// Open connects to dsn, verifies the connection and creates the table.
func Open(ctx context.Context, dsn string, log *logrus.Entry) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	p := &Postgres{db: db, log: logger.OrNop(log).WithField("component", "history")}
	p.log.Info("history store ready")
	return p, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Save(ctx context.Context, rec *Record) error {
	normalize(rec)
	inferred, err := json.Marshal(rec.Inferred)
	if err != nil {
		return fmt.Errorf("marshal inferred: %w", err)
	}
	final, err := json.Marshal(rec.Final)
	if err != nil {
		return fmt.Errorf("marshal final: %w", err)
	}

	_, err = p.db.ExecContext(ctx,
		`INSERT INTO deviation_classifications (`+projection+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.Location, rec.Text, rec.HadAudio, inferred, final, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert classification: %w", err)
	}
	p.log.WithField("id", rec.ID).Debug("classification saved")
	return nil
}

func (p *Postgres) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+projection+` FROM deviation_classifications ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query classifications: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (Record, error) {
	var (
		rec             Record
		inferred, final []byte
	)
	if err := s.Scan(&rec.ID, &rec.Location, &rec.Text, &rec.HadAudio, &inferred, &final, &rec.CreatedAt); err != nil {
		return Record{}, fmt.Errorf("scan classification: %w", err)
	}
	if err := json.Unmarshal(inferred, &rec.Inferred); err != nil {
		return Record{}, fmt.Errorf("record %s inferred: %w", rec.ID, err)
	}
	if err := json.Unmarshal(final, &rec.Final); err != nil {
		return Record{}, fmt.Errorf("record %s final: %w", rec.ID, err)
	}
	return rec, nil
}

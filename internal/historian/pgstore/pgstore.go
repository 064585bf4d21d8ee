// Package pgstore provides a PostgreSQL implementation of historian.Sink.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/watchtower/internal/historian"
)

var tracer = otel.Tracer("github.com/linnemanlabs/watchtower/internal/historian/pgstore")

//go:embed schema.sql
var schema string

// Store persists historian entries in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on pool and returns a ready Store. The caller owns the pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Record inserts e. Re-recording an existing id is a no-op.
func (s *Store) Record(ctx context.Context, e *historian.Entry) error {
	ctx, span := tracer.Start(ctx, "pgstore.Record", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
		attribute.String("alarm.id", e.AlarmID),
	))
	defer span.End()

	scopeJSON, err := json.Marshal(e.Scope)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("marshal scope: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO historian_entries (id, alarm_id, action, note, scope, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		e.ID, e.AlarmID, string(e.Action), e.Note, scopeJSON, e.CreatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

// List returns the alarm's entries, oldest first.
func (s *Store) List(ctx context.Context, alarmID string) ([]historian.Entry, error) {
	ctx, span := tracer.Start(ctx, "pgstore.List", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
		attribute.String("alarm.id", alarmID),
	))
	defer span.End()

	entries, err := s.list(ctx, alarmID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("entries.count", len(entries)))
	return entries, nil
}

func (s *Store) list(ctx context.Context, alarmID string) ([]historian.Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, alarm_id, action, note, scope, created_at
		 FROM historian_entries WHERE alarm_id = $1 ORDER BY created_at, id`,
		alarmID,
	)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var out []historian.Entry
	for rows.Next() {
		var (
			e         historian.Entry
			action    string
			scopeJSON []byte
		)
		if err := rows.Scan(&e.ID, &e.AlarmID, &action, &e.Note, &scopeJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Action = historian.Action(action)
		if err := json.Unmarshal(scopeJSON, &e.Scope); err != nil {
			return nil, fmt.Errorf("unmarshal scope %s: %w", e.ID, err)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return out, nil
}

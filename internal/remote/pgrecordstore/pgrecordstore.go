// Package pgrecordstore adapts the teacher's pgx-backed push/pull pattern
// (internal/service/syncservice/comments_service.go's INSERT ... ON
// CONFLICT upsert) into a RecordStore port implementation for the
// expenses/receipts/job_orders tables this spec defines.
package pgrecordstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/fieldsync/core/internal/model"
	"github.com/fieldsync/core/internal/ports"
)

// Store is a RecordStore backed by Postgres. local_id is the conflict key
// for expenses/receipts so a retried insert after a lost acknowledgement
// never creates a duplicate remote row (spec.md §7's at-most-once intent).
type Store struct {
	pool *pgxpool.Pool
}

// Open mirrors the teacher's db.Open: tuned pool config, ping on startup.
func Open(ctx context.Context, url string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	log.Info().Int32("max_conns", cfg.MaxConns).Msg("fieldsync postgres pool created")
	return &Store{pool: pool}, nil
}

func (s *Store) Close() { s.pool.Close() }

// Insert upserts row into table, keyed by local_id so a retried push is
// idempotent, and returns the server-assigned id.
func (s *Store) Insert(ctx context.Context, table string, row map[string]any) (ports.InsertResult, error) {
	cols := make([]string, 0, len(row))
	for k := range row {
		cols = append(cols, k)
	}
	sort.Strings(cols) // deterministic column order for stable query text/logging

	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	updates := make([]string, 0, len(cols))
	for i, col := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = row[col]
		if col != "local_id" {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
		}
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (%s)
		 ON CONFLICT (local_id) DO UPDATE SET %s
		 RETURNING id`,
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "), strings.Join(updates, ", "),
	)

	var id string
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return ports.InsertResult{}, fmt.Errorf("insert into %s: %w", table, classifyPgErr(err))
	}
	return ports.InsertResult{ID: id}, nil
}

// classifyPgErr maps a pgx error onto the engine's failure taxonomy
// (spec.md §7) so SyncEngine.classifyPortErr doesn't have to fall back to
// treating every Postgres failure as transient Network. Integrity
// constraint violations (SQLSTATE class 23, e.g. a check constraint the
// upsert's ON CONFLICT clause doesn't cover) are a server-side rejection
// the engine should retry with backoff but never treat as a dead link;
// everything else - connection refused, timeouts, pool exhaustion - is the
// transient Network case it already retries the same way.
func classifyPgErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) == 5 && pgErr.Code[:2] == "23" {
		return fmt.Errorf("%w: %s", model.ErrRemoteReject, pgErr.Message)
	}
	return fmt.Errorf("%w: %v", model.ErrNetwork, err)
}

// Select runs a simple equality-filtered SELECT * bounded by limit.
func (s *Store) Select(ctx context.Context, table string, filter map[string]any, limit int) ([]map[string]any, error) {
	cols := make([]string, 0, len(filter))
	for k := range filter {
		cols = append(cols, k)
	}
	sort.Strings(cols)

	where := ""
	args := make([]any, len(cols))
	if len(cols) > 0 {
		clauses := make([]string, len(cols))
		for i, col := range cols {
			clauses[i] = fmt.Sprintf("%s = $%d", col, i+1)
			args[i] = filter[col]
		}
		where = "WHERE " + strings.Join(clauses, " AND ")
	}

	query := fmt.Sprintf("SELECT * FROM %s %s LIMIT %d", table, where, limit)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", table, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		record := make(map[string]any, len(fields))
		for i, f := range fields {
			record[string(f.Name)] = values[i]
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

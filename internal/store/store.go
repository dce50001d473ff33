package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xkilldash9x/warranty-cli/internal/computer"
	"github.com/xkilldash9x/warranty-cli/internal/warranty"
	"go.uber.org/zap"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var resultColumns = []string{
	"run_id", "serial_number", "product_number",
	"warranty_start", "warranty_end", "url", "error", "recorded_at",
}

// Store persists lookup results to PostgreSQL. It is a warranty.Sink.
type Store struct {
	pool  DBPool
	table pgx.Identifier
	log   *zap.Logger
	now   func() time.Time
}

var _ warranty.Sink = (*Store)(nil)

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, table string, logger *zap.Logger) (*Store, error) {
	if table == "" {
		return nil, errors.New("store table name is required")
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool:  pool,
		table: pgx.Identifier{table},
		log:   logger.Named("store"),
		now:   time.Now,
	}, nil
}

// EnsureSchema creates the results table when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	sql := fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            id BIGSERIAL PRIMARY KEY,
            run_id TEXT NOT NULL,
            serial_number TEXT NOT NULL,
            product_number TEXT NOT NULL DEFAULT '',
            warranty_start DATE,
            warranty_end DATE,
            url TEXT NOT NULL DEFAULT '',
            error TEXT NOT NULL DEFAULT '',
            recorded_at TIMESTAMPTZ NOT NULL
        );
    `, s.table.Sanitize())
	if _, err := s.pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("failed to create results table: %w", err)
	}
	return nil
}

// WriteBatch inserts one processed batch in a single transaction, tagged with
// the run identifier carried by ctx.
func (s *Store) WriteBatch(ctx context.Context, batch []*computer.Computer) error {
	if len(batch) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	runID := warranty.RunIDFrom(ctx)
	recordedAt := s.now().UTC()
	rows := make([][]interface{}, len(batch))
	for i, c := range batch {
		rows[i] = []interface{}{
			runID, c.SerialNumber, c.ProductNumber,
			nullableDate(c.WarrantyStart), nullableDate(c.WarrantyEnd),
			c.URL, c.Error, recordedAt,
		}
	}

	copyCount, err := tx.CopyFrom(ctx, s.table, resultColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy results: %w", err)
	}
	if int(copyCount) != len(batch) {
		return fmt.Errorf("mismatch in copied results count: expected %d, got %d", len(batch), copyCount)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Batch persisted.", zap.String("run_id", runID), zap.Int64("rows", copyCount))
	return nil
}

// ResultsByRunID returns the results recorded for runID in insertion order.
func (s *Store) ResultsByRunID(ctx context.Context, runID string) ([]*computer.Computer, error) {
	query := fmt.Sprintf(`
        SELECT serial_number, product_number, warranty_start, warranty_end, url, error
        FROM %s
        WHERE run_id = $1
        ORDER BY id ASC;
    `, s.table.Sanitize())
	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var results []*computer.Computer
	for rows.Next() {
		c := &computer.Computer{}
		var start, end *time.Time
		if err := rows.Scan(&c.SerialNumber, &c.ProductNumber, &start, &end, &c.URL, &c.Error); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		if start != nil {
			c.WarrantyStart = start.UTC()
		}
		if end != nil {
			c.WarrantyEnd = end.UTC()
		}
		results = append(results, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return results, nil
}

func nullableDate(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

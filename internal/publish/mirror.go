// Package publish pushes merged records to optional downstream sinks: a
// Postgres mirror for the query collaborator and NATS merge events.
//
// Both sinks run after a merge has been committed locally. Their failures
// are logged and counted but never fail the file that triggered them.
package publish

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sony/gobreaker/v2"

	"github.com/JonMunkholm/consolidator/internal/core"
)

// ErrMirrorUnavailable is returned while the breaker is open. The sync is
// skipped and catches up from the stored mark once the breaker closes.
var ErrMirrorUnavailable = errors.New("mirror unavailable")

// schemaLockID serializes bootstrap DDL across concurrent consolidators.
const schemaLockID int64 = 2024030101

// DBOptions configures the connection pool.
type DBOptions struct {
	MaxConns        int
	MaxConnLifetime time.Duration
}

// OpenDB opens and pings a Postgres pool through the pgx stdlib driver.
func OpenDB(ctx context.Context, dsn string, opts DBOptions) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if opts.MaxConns > 0 {
		db.SetMaxOpenConns(opts.MaxConns)
		db.SetMaxIdleConns(opts.MaxConns)
	}
	if opts.MaxConnLifetime > 0 {
		db.SetConnMaxLifetime(opts.MaxConnLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// MirrorOptions configures the circuit breaker around Sync.
type MirrorOptions struct {
	BreakerFailures int           // consecutive failures that open the breaker
	BreakerTimeout  time.Duration // how long the breaker stays open
}

// RecordSource yields a partition's records with seq greater than afterSeq.
type RecordSource func(afterSeq uint64) iter.Seq2[core.CanonicalRecord, error]

// Mirror copies consolidated records into Postgres incrementally, keyed by
// a per-partition high-water mark.
type Mirror struct {
	db      *sql.DB
	breaker *gobreaker.CircuitBreaker[int]
}

// NewMirror wraps db. The caller owns db and closes it.
func NewMirror(db *sql.DB, opts MirrorOptions) *Mirror {
	failures := opts.BreakerFailures
	if failures <= 0 {
		failures = 5
	}
	timeout := opts.BreakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker[int](gobreaker.Settings{
		Name:        "postgres-mirror",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failures)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return &Mirror{db: db, breaker: breaker}
}

// EnsureSchema creates the mirror tables if they do not exist.
func (m *Mirror) EnsureSchema(ctx context.Context) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS consolidated_records (
	fingerprint TEXT PRIMARY KEY,
	partition TEXT NOT NULL,
	seq BIGINT NOT NULL,
	title TEXT NOT NULL,
	url TEXT,
	property_type TEXT NOT NULL,
	listing_type TEXT NOT NULL,
	price BIGINT NOT NULL,
	currency TEXT NOT NULL,
	location TEXT NOT NULL,
	area TEXT,
	city TEXT,
	state TEXT,
	bedrooms INTEGER,
	bathrooms INTEGER,
	toilets INTEGER,
	description TEXT,
	images JSONB NOT NULL DEFAULT '[]'::jsonb,
	scraped_at TIMESTAMPTZ,
	source_file TEXT,
	ingested_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_consolidated_records_partition ON consolidated_records(partition, seq);

CREATE TABLE IF NOT EXISTS consolidation_marks (
	partition TEXT PRIMARY KEY,
	last_seq BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Sync inserts the partition's records newer than its mark and advances the
// mark in the same transaction. It returns the number of rows inserted.
func (m *Mirror) Sync(ctx context.Context, partition string, source RecordSource) (int, error) {
	n, err := m.breaker.Execute(func() (int, error) {
		return m.sync(ctx, partition, source)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return 0, fmt.Errorf("%w: %w", ErrMirrorUnavailable, err)
	}
	return n, err
}

const insertRecord = `
INSERT INTO consolidated_records (
	fingerprint, partition, seq, title, url, property_type, listing_type,
	price, currency, location, area, city, state,
	bedrooms, bathrooms, toilets, description, images,
	scraped_at, source_file, ingested_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
ON CONFLICT (fingerprint) DO NOTHING`

const upsertMark = `
INSERT INTO consolidation_marks (partition, last_seq, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (partition) DO UPDATE SET last_seq = EXCLUDED.last_seq, updated_at = EXCLUDED.updated_at`

func (m *Mirror) sync(ctx context.Context, partition string, source RecordSource) (int, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin mirror tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var mark int64
	err = tx.QueryRowContext(ctx,
		`SELECT last_seq FROM consolidation_marks WHERE partition = $1 FOR UPDATE`, partition,
	).Scan(&mark)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("read mark for %s: %w", partition, err)
	}

	inserted := 0
	last := uint64(mark)
	for rec, err := range source(uint64(mark)) {
		if err != nil {
			return 0, fmt.Errorf("read records for %s: %w", partition, err)
		}
		args, err := recordArgs(rec)
		if err != nil {
			return 0, err
		}
		res, err := tx.ExecContext(ctx, insertRecord, args...)
		if err != nil {
			return 0, fmt.Errorf("insert record seq %d: %w", rec.Seq, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
		last = rec.Seq
	}

	if last == uint64(mark) {
		return 0, nil
	}

	if _, err := tx.ExecContext(ctx, upsertMark, partition, int64(last), time.Now().UTC()); err != nil {
		return 0, fmt.Errorf("advance mark for %s: %w", partition, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit mirror tx: %w", err)
	}
	return inserted, nil
}

func recordArgs(r core.CanonicalRecord) ([]any, error) {
	images := r.Images
	if images == nil {
		images = []string{}
	}
	imagesJSON, err := json.Marshal(images)
	if err != nil {
		return nil, fmt.Errorf("marshal images: %w", err)
	}

	return []any{
		r.Fingerprint, r.Partition, int64(r.Seq), r.Title, nullString(r.URL),
		r.PropertyType, r.ListingType, r.Price, r.Currency,
		r.Location, nullString(r.Area), nullString(r.City), nullString(r.State),
		nullInt(r.Bedrooms), nullInt(r.Bathrooms), nullInt(r.Toilets),
		nullString(r.Description), string(imagesJSON),
		nullTime(r.ScrapedAt), nullString(r.SourceFile), r.IngestedAt.UTC(),
	}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t.UTC(), Valid: !t.IsZero()}
}

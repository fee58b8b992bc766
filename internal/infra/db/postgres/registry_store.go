package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/lib/pq"

	domreg "github.com/bryanwahyu/acunetix-report-sender/internal/domain/registry"
	"github.com/bryanwahyu/acunetix-report-sender/internal/domain/scans"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// RegistryStore keeps processed scans in one Postgres table.
type RegistryStore struct {
	db    *sql.DB
	table string
}

var _ domreg.Store = (*RegistryStore)(nil)

func NewRegistryStore(db *sql.DB, table string) (*RegistryStore, error) {
	if !identRe.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RegistryStore{db: db, table: pq.QuoteIdentifier(table)}, nil
}

// EnsureSchema creates the table when missing.
func (r *RegistryStore) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
 scan_id TEXT PRIMARY KEY,
 processed_at TIMESTAMPTZ NOT NULL
);`, r.table)
	_, err := r.db.ExecContext(ctx, q)
	return err
}

func (r *RegistryStore) Load(ctx context.Context) (map[scans.ScanID]domreg.ProcessedRecord, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`SELECT scan_id, processed_at FROM %s;`, r.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[scans.ScanID]domreg.ProcessedRecord)
	for rows.Next() {
		var rec domreg.ProcessedRecord
		if err := rows.Scan(&rec.ScanID, &rec.ProcessedAt); err != nil {
			return nil, err
		}
		rec.ProcessedAt = rec.ProcessedAt.UTC()
		out[rec.ScanID] = rec
	}
	return out, rows.Err()
}

// Save upserts every record in one transaction; existing rows keep their
// first processed_at.
func (r *RegistryStore) Save(ctx context.Context, records map[scans.ScanID]domreg.ProcessedRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
INSERT INTO %s (scan_id, processed_at) VALUES ($1, $2)
ON CONFLICT (scan_id) DO NOTHING;`, r.table))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for id, rec := range records {
		ts := rec.ProcessedAt
		if ts.IsZero() {
			ts = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, string(id), ts.UTC()); err != nil {
			return fmt.Errorf("upsert %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func (r *RegistryStore) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

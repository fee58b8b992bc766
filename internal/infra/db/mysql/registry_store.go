package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	domreg "github.com/bryanwahyu/acunetix-report-sender/internal/domain/registry"
	"github.com/bryanwahyu/acunetix-report-sender/internal/domain/scans"
)

// RegistryStore keeps processed scans in one MySQL table.
type RegistryStore struct {
	db    *sql.DB
	table string
}

var _ domreg.Store = (*RegistryStore)(nil)

func NewRegistryStore(db *sql.DB, table string) (*RegistryStore, error) {
	t, err := quoteIdent(table)
	if err != nil {
		return nil, err
	}
	return &RegistryStore{db: db, table: t}, nil
}

// EnsureSchema creates the table when missing.
func (r *RegistryStore) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
 scan_id VARCHAR(64) NOT NULL PRIMARY KEY,
 processed_at DATETIME(6) NOT NULL
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`, r.table)
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

// Save upserts every record in one transaction. Rows are never deleted: the
// registry only grows, and a soft-loaded empty view must not wipe the table.
func (r *RegistryStore) Save(ctx context.Context, records map[scans.ScanID]domreg.ProcessedRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
INSERT INTO %s (scan_id, processed_at) VALUES (?, ?)
ON DUPLICATE KEY UPDATE processed_at=processed_at;`, r.table))
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

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/daykid555/criterion-mark-sub000/internal/model"
)

// ArchiveExport is the snapshot produced by the administrative archive
// operation: everything the purge removes, in one document.
type ArchiveExport struct {
	GeneratedAt time.Time                `json:"generated_at"`
	Batches     []model.Batch            `json:"batches"`
	Codes       []model.VerificationCode `json:"codes"`
	Scans       []model.ScanRecord       `json:"scans"`
	Events      []model.BatchEvent       `json:"events"`
}

// ArchiveAll exports every batch with its codes, scans, and events, then
// purges them, all in one transaction. This is the only delete path for
// batches in the system; a failure anywhere rolls the purge back and the
// data survives untouched.
func ArchiveAll(ctx context.Context, db *sql.DB) (*ArchiveExport, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	export := &ArchiveExport{GeneratedAt: time.Now().UTC()}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+batchColumns+`
		 FROM batches b JOIN users u ON u.id = b.manufacturer_id
		 ORDER BY b.id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("exporting batches: %w", err)
	}
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning batch: %w", err)
		}
		export.Batches = append(export.Batches, *b)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	rows, err = tx.QueryContext(ctx,
		`SELECT id, code, batch_id, created_at FROM codes ORDER BY code ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("exporting codes: %w", err)
	}
	for rows.Next() {
		var c model.VerificationCode
		if err := rows.Scan(&c.ID, &c.Code, &c.BatchID, &c.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning code: %w", err)
		}
		export.Codes = append(export.Codes, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	rows, err = tx.QueryContext(ctx,
		`SELECT id, code_id, scanned_by, ip, city, region, country, latitude, longitude, scanned_at
		 FROM scans ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("exporting scans: %w", err)
	}
	for rows.Next() {
		rec, err := scanScanRecord(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning scan record: %w", err)
		}
		export.Scans = append(export.Scans, *rec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	rows, err = tx.QueryContext(ctx,
		`SELECT id, batch_id, from_status, to_status, actor_id, reason, occurred_at
		 FROM batch_events ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("exporting batch events: %w", err)
	}
	for rows.Next() {
		var e model.BatchEvent
		var reason sql.NullString
		if err := rows.Scan(&e.ID, &e.BatchID, &e.FromStatus, &e.ToStatus, &e.ActorID, &reason, &e.OccurredAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning batch event: %w", err)
		}
		e.Reason = reason.String
		export.Events = append(export.Events, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Purge, children first.
	for _, stmt := range []string{
		`DELETE FROM scans`,
		`DELETE FROM codes`,
		`DELETE FROM batch_events`,
		`DELETE FROM batches`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("purging archived data: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing archive: %w", err)
	}

	return export, nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/daykid555/criterion-mark-sub000/internal/model"
)

// AppendScan records one verification attempt against a code. Scans are
// append-only: there is no update or delete path in this package, and
// concurrent appends against the same code all succeed.
func AppendScan(ctx context.Context, db *sql.DB, rec *model.ScanRecord) (*model.ScanRecord, error) {
	if rec.ScannedBy != model.ScannerConsumer && rec.ScannedBy != model.ScannerPartner {
		return nil, fmt.Errorf("%w: unknown scanner role %q", model.ErrValidation, rec.ScannedBy)
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO scans (code_id, scanned_by, ip, city, region, country, latitude, longitude)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.CodeID, rec.ScannedBy,
		sql.NullString{String: rec.IP, Valid: rec.IP != ""},
		sql.NullString{String: rec.City, Valid: rec.City != ""},
		sql.NullString{String: rec.Region, Valid: rec.Region != ""},
		sql.NullString{String: rec.Country, Valid: rec.Country != ""},
		rec.Latitude, rec.Longitude,
	)
	if err != nil {
		return nil, fmt.Errorf("appending scan: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting scan id: %w", err)
	}

	return getScan(ctx, db, id)
}

func getScan(ctx context.Context, db *sql.DB, id int64) (*model.ScanRecord, error) {
	row := db.QueryRowContext(ctx,
		`SELECT id, code_id, scanned_by, ip, city, region, country, latitude, longitude, scanned_at
		 FROM scans WHERE id = ?`, id,
	)
	rec, err := scanScanRecord(row)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting scan: %w", err)
	}
	return rec, nil
}

func scanScanRecord(row rowScanner) (*model.ScanRecord, error) {
	rec := &model.ScanRecord{}
	var ip, city, region, country sql.NullString
	err := row.Scan(&rec.ID, &rec.CodeID, &rec.ScannedBy, &ip, &city, &region, &country,
		&rec.Latitude, &rec.Longitude, &rec.ScannedAt)
	if err != nil {
		return nil, err
	}
	rec.IP = ip.String
	rec.City = city.String
	rec.Region = region.String
	rec.Country = country.String
	return rec, nil
}

// ListScansByCode returns a code's full scan history, oldest first, which
// reconstructs the unit's provenance trail.
func ListScansByCode(ctx context.Context, db *sql.DB, codeID int64) ([]model.ScanRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, code_id, scanned_by, ip, city, region, country, latitude, longitude, scanned_at
		 FROM scans WHERE code_id = ? ORDER BY scanned_at ASC, id ASC`, codeID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing scans: %w", err)
	}
	defer rows.Close()

	var records []model.ScanRecord
	for rows.Next() {
		rec, err := scanScanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning scan record: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

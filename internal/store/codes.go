package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/daykid555/criterion-mark-sub000/internal/model"
)

// GetCodeByValue returns a verification code by its opaque string, or nil
// if no such code exists.
func GetCodeByValue(ctx context.Context, db *sql.DB, code string) (*model.VerificationCode, error) {
	c := &model.VerificationCode{}
	err := db.QueryRowContext(ctx,
		`SELECT id, code, batch_id, created_at FROM codes WHERE code = ?`, code,
	).Scan(&c.ID, &c.Code, &c.BatchID, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting code: %w", err)
	}
	return c, nil
}

// ListCodesByBatch returns a batch's codes in ascending code order, the
// same order the seal archive uses.
func ListCodesByBatch(ctx context.Context, db *sql.DB, batchID int64) ([]model.VerificationCode, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, code, batch_id, created_at FROM codes WHERE batch_id = ? ORDER BY code ASC`, batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing codes: %w", err)
	}
	defer rows.Close()

	var list []model.VerificationCode
	for rows.Next() {
		var c model.VerificationCode
		if err := rows.Scan(&c.ID, &c.Code, &c.BatchID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning code: %w", err)
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

// CountCodesByBatch returns the number of codes bound to a batch.
func CountCodesByBatch(ctx context.Context, db *sql.DB, batchID int64) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM codes WHERE batch_id = ?`, batchID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting codes: %w", err)
	}
	return count, nil
}

// GetBatchSummaryByCode returns the public batch summary for a code's
// owning batch.
func GetBatchSummaryByCode(ctx context.Context, db *sql.DB, codeID int64) (*model.BatchSummary, error) {
	s := &model.BatchSummary{}
	err := db.QueryRowContext(ctx,
		`SELECT b.id, b.product_name, b.registration_no, b.expires_at, b.status, u.username
		 FROM codes c
		 JOIN batches b ON b.id = c.batch_id
		 JOIN users u ON u.id = b.manufacturer_id
		 WHERE c.id = ?`, codeID,
	).Scan(&s.BatchID, &s.ProductName, &s.RegistrationNo, &s.ExpiresAt, &s.Status, &s.ManufacturerName)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting batch summary: %w", err)
	}
	return s, nil
}

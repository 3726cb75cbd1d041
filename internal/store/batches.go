package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/daykid555/criterion-mark-sub000/internal/codes"
	"github.com/daykid555/criterion-mark-sub000/internal/custody"
	"github.com/daykid555/criterion-mark-sub000/internal/lifecycle"
	"github.com/daykid555/criterion-mark-sub000/internal/model"
)

// batchColumns is the column list scanned by scanBatch. The background
// blob and the confirmation code are deliberately excluded: the blob has
// its own accessor and the code must never leak through batch reads.
const batchColumns = `b.id, b.product_name, b.quantity, b.expires_at, b.registration_no,
	b.manufacturer_id, b.status, b.rejection_reason, b.background_mime, b.received_quantity,
	b.created_at, b.updated_at, b.submitted_at, b.regulator_approved_at, b.admin_approved_at,
	b.printing_started_at, b.printing_completed_at, b.picked_up_at, b.received_at,
	b.delivered_at, b.rejected_at, u.username AS manufacturer_name`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatch(row rowScanner) (*model.Batch, error) {
	b := &model.Batch{}
	var rejectionReason, backgroundMime sql.NullString
	var receivedQuantity sql.NullInt64
	err := row.Scan(&b.ID, &b.ProductName, &b.Quantity, &b.ExpiresAt, &b.RegistrationNo,
		&b.ManufacturerID, &b.Status, &rejectionReason, &backgroundMime, &receivedQuantity,
		&b.CreatedAt, &b.UpdatedAt, &b.SubmittedAt, &b.RegulatorApprovedAt, &b.AdminApprovedAt,
		&b.PrintingStartedAt, &b.PrintingCompletedAt, &b.PickedUpAt, &b.ReceivedAt,
		&b.DeliveredAt, &b.RejectedAt, &b.ManufacturerName)
	if err != nil {
		return nil, err
	}
	b.RejectionReason = rejectionReason.String
	b.BackgroundMime = backgroundMime.String
	if receivedQuantity.Valid {
		qty := int(receivedQuantity.Int64)
		b.ReceivedQuantity = &qty
	}
	return b, nil
}

// CreateBatch creates a batch in the REQUESTED state.
func CreateBatch(ctx context.Context, db *sql.DB, manufacturerID int64, productName string, quantity int, expiresAt time.Time, registrationNo string) (*model.Batch, error) {
	if strings.TrimSpace(productName) == "" {
		return nil, fmt.Errorf("%w: product name required", model.ErrValidation)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", model.ErrValidation)
	}
	if strings.TrimSpace(registrationNo) == "" {
		return nil, fmt.Errorf("%w: registration number required", model.ErrValidation)
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO batches (product_name, quantity, expires_at, registration_no, manufacturer_id)
		 VALUES (?, ?, ?, ?, ?)`,
		productName, quantity, expiresAt, registrationNo, manufacturerID,
	)
	if err != nil {
		return nil, fmt.Errorf("creating batch: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting batch id: %w", err)
	}

	return GetBatch(ctx, db, id)
}

// GetBatch returns a batch by ID, or nil if it does not exist.
func GetBatch(ctx context.Context, db *sql.DB, id int64) (*model.Batch, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+batchColumns+`
		 FROM batches b JOIN users u ON u.id = b.manufacturer_id
		 WHERE b.id = ?`, id,
	)
	b, err := scanBatch(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting batch: %w", err)
	}
	return b, nil
}

// ListBatches returns batches, optionally filtered by status and owning
// manufacturer. Zero values disable a filter.
func ListBatches(ctx context.Context, db *sql.DB, status model.Status, manufacturerID int64) ([]model.Batch, error) {
	query := `SELECT ` + batchColumns + `
	          FROM batches b JOIN users u ON u.id = b.manufacturer_id
	          WHERE 1=1`
	var args []any

	if status != "" {
		query += ` AND b.status = ?`
		args = append(args, status)
	}
	if manufacturerID > 0 {
		query += ` AND b.manufacturer_id = ?`
		args = append(args, manufacturerID)
	}

	query += ` ORDER BY b.created_at DESC, b.id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing batches: %w", err)
	}
	defer rows.Close()

	var batches []model.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning batch: %w", err)
		}
		batches = append(batches, *b)
	}
	return batches, rows.Err()
}

// ListBatchEvents returns a batch's transition trail, oldest first.
func ListBatchEvents(ctx context.Context, db *sql.DB, batchID int64) ([]model.BatchEvent, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, batch_id, from_status, to_status, actor_id, reason, occurred_at
		 FROM batch_events WHERE batch_id = ? ORDER BY occurred_at ASC, id ASC`, batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing batch events: %w", err)
	}
	defer rows.Close()

	var events []model.BatchEvent
	for rows.Next() {
		var e model.BatchEvent
		var reason sql.NullString
		if err := rows.Scan(&e.ID, &e.BatchID, &e.FromStatus, &e.ToStatus, &e.ActorID, &reason, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scanning batch event: %w", err)
		}
		e.Reason = reason.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// transitionTx validates one transition attempt against the lifecycle
// table and applies it inside tx: status flip, timestamp stamp, optional
// rejection reason, and the append-only event row. The UPDATE carries a
// status guard so a concurrent racer loses cleanly even after the initial
// read.
func transitionTx(ctx context.Context, tx *sql.Tx, batchID int64, action lifecycle.Action, role model.Role, actorID int64, reason string) (lifecycle.Rule, error) {
	var current model.Status
	err := tx.QueryRowContext(ctx, `SELECT status FROM batches WHERE id = ?`, batchID).Scan(&current)
	if err == sql.ErrNoRows {
		return lifecycle.Rule{}, model.ErrNotFound
	}
	if err != nil {
		return lifecycle.Rule{}, fmt.Errorf("reading batch status: %w", err)
	}

	rule, err := lifecycle.Step(current, action, role)
	if err != nil {
		return lifecycle.Rule{}, err
	}

	if rule.NeedsReason && strings.TrimSpace(reason) == "" {
		return lifecycle.Rule{}, fmt.Errorf("%w: rejection reason required", model.ErrValidation)
	}

	// StampColumn comes from the lifecycle table, never from callers.
	query := `UPDATE batches SET status = ?, ` + rule.StampColumn + ` = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP`
	args := []any{rule.To}
	if rule.NeedsReason {
		query += `, rejection_reason = ?`
		args = append(args, reason)
	}
	query += ` WHERE id = ? AND status = ?`
	args = append(args, batchID, rule.From)

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return lifecycle.Rule{}, fmt.Errorf("applying transition: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return lifecycle.Rule{}, fmt.Errorf("checking transition: %w", err)
	}
	if affected != 1 {
		// Lost a race: someone moved the batch between our read and write.
		var actual model.Status
		if err := tx.QueryRowContext(ctx, `SELECT status FROM batches WHERE id = ?`, batchID).Scan(&actual); err != nil {
			actual = current
		}
		return lifecycle.Rule{}, &lifecycle.InvalidTransitionError{Action: action, Expected: rule.From, Actual: actual}
	}

	// A zero actor means "system" and is stored as NULL.
	_, err = tx.ExecContext(ctx,
		`INSERT INTO batch_events (batch_id, from_status, to_status, actor_id, reason)
		 VALUES (?, ?, ?, ?, ?)`,
		batchID, rule.From, rule.To,
		sql.NullInt64{Int64: actorID, Valid: actorID > 0},
		sql.NullString{String: reason, Valid: reason != ""},
	)
	if err != nil {
		return lifecycle.Rule{}, fmt.Errorf("recording batch event: %w", err)
	}

	return rule, nil
}

// ApplyTransition applies a simple transition (no extra side effects) as
// one atomic unit. Admin approval, receipt confirmation, and delivery
// finalization have dedicated functions carrying their side effects.
func ApplyTransition(ctx context.Context, db *sql.DB, batchID int64, action lifecycle.Action, role model.Role, actorID int64, reason string) (*model.Batch, error) {
	switch action {
	case lifecycle.ActionAdminApprove, lifecycle.ActionConfirmReceipt, lifecycle.ActionFinalize:
		return nil, fmt.Errorf("action %s carries side effects and has a dedicated operation", action)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := transitionTx(ctx, tx, batchID, action, role, actorID, reason); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transition: %w", err)
	}

	return GetBatch(ctx, db, batchID)
}

// ApproveByAdmin moves a batch to PENDING_PRINTING and mints exactly
// quantity unit codes, all in one transaction. Either the status flip and
// every code land together or nothing does; a concurrent duplicate
// approval fails the status guard and mints nothing.
func ApproveByAdmin(ctx context.Context, db *sql.DB, batchID, actorID int64) (*model.Batch, int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := transitionTx(ctx, tx, batchID, lifecycle.ActionAdminApprove, model.RoleAdmin, actorID, ""); err != nil {
		return nil, 0, err
	}

	var quantity int
	if err := tx.QueryRowContext(ctx, `SELECT quantity FROM batches WHERE id = ?`, batchID).Scan(&quantity); err != nil {
		return nil, 0, fmt.Errorf("reading batch quantity: %w", err)
	}

	taken := func(ctx context.Context, code string) (bool, error) {
		var exists bool
		err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM codes WHERE code = ?)`, code).Scan(&exists)
		return exists, err
	}
	minted, err := codes.Mint(ctx, quantity, taken)
	if err != nil {
		return nil, 0, fmt.Errorf("minting unit codes: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO codes (code, batch_id) VALUES (?, ?)`)
	if err != nil {
		return nil, 0, fmt.Errorf("preparing code insert: %w", err)
	}
	defer stmt.Close()
	for _, code := range minted {
		if _, err := stmt.ExecContext(ctx, code, batchID); err != nil {
			// UNIQUE(code) is the backstop for anything Mint missed.
			return nil, 0, fmt.Errorf("inserting code: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("committing admin approval: %w", err)
	}

	batch, err := GetBatch(ctx, db, batchID)
	return batch, len(minted), err
}

// ConfirmReceipt records the quantity the manufacturer declares received
// (which may differ from the requested quantity), mints the single-use
// confirmation code, and moves the batch to
// PENDING_MANUFACTURER_CONFIRMATION atomically. The code is returned once
// and never exposed through batch reads.
func ConfirmReceipt(ctx context.Context, db *sql.DB, batchID, actorID int64, receivedQuantity int) (*model.Batch, custody.ConfirmationCode, error) {
	if receivedQuantity < 0 {
		return nil, custody.ConfirmationCode{}, fmt.Errorf("%w: received quantity cannot be negative", model.ErrValidation)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, custody.ConfirmationCode{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := transitionTx(ctx, tx, batchID, lifecycle.ActionConfirmReceipt, model.RoleManufacturer, actorID, ""); err != nil {
		return nil, custody.ConfirmationCode{}, err
	}

	code, err := custody.Mint()
	if err != nil {
		return nil, custody.ConfirmationCode{}, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE batches SET received_quantity = ?, confirmation_code = ?, confirmation_issued_at = ? WHERE id = ?`,
		receivedQuantity, code.Value, code.IssuedAt, batchID,
	)
	if err != nil {
		return nil, custody.ConfirmationCode{}, fmt.Errorf("storing confirmation code: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, custody.ConfirmationCode{}, fmt.Errorf("committing receipt confirmation: %w", err)
	}

	batch, err := GetBatch(ctx, db, batchID)
	return batch, code, err
}

// FinalizeDelivery compares the carrier-supplied confirmation code against
// the stored one and, on a match, moves the batch to DELIVERED and clears
// the code, all in one transaction. A mismatch leaves the batch in
// PENDING_MANUFACTURER_CONFIRMATION so the carrier can retry; a repeat
// call after success fails the state guard because the batch has moved.
func FinalizeDelivery(ctx context.Context, db *sql.DB, batchID, actorID int64, suppliedCode string) (*model.Batch, error) {
	if !custody.Valid(suppliedCode) {
		return nil, fmt.Errorf("%w: confirmation code must be exactly %d digits", model.ErrValidation, custody.Digits)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var current model.Status
	var storedValue sql.NullString
	var issuedAt sql.NullTime
	err = tx.QueryRowContext(ctx,
		`SELECT status, confirmation_code, confirmation_issued_at FROM batches WHERE id = ?`, batchID,
	).Scan(&current, &storedValue, &issuedAt)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading confirmation code: %w", err)
	}

	// State check first so a replay after success reports the transition
	// problem, not a code mismatch.
	if _, err := lifecycle.Step(current, lifecycle.ActionFinalize, model.RoleLogistics); err != nil {
		return nil, err
	}

	stored := custody.ConfirmationCode{Value: storedValue.String, IssuedAt: issuedAt.Time}
	if !stored.Matches(suppliedCode) {
		return nil, custody.ErrMismatch
	}

	if _, err := transitionTx(ctx, tx, batchID, lifecycle.ActionFinalize, model.RoleLogistics, actorID, ""); err != nil {
		return nil, err
	}

	// Single use: consume the code with the same atomic boundary.
	_, err = tx.ExecContext(ctx,
		`UPDATE batches SET confirmation_code = NULL, confirmation_issued_at = NULL WHERE id = ?`, batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("clearing confirmation code: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing delivery: %w", err)
	}

	return GetBatch(ctx, db, batchID)
}

// SetBatchBackground stores the processed seal background for a batch.
func SetBatchBackground(ctx context.Context, db *sql.DB, id int64, data []byte, mime string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE batches SET background = ?, background_mime = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		data, mime, id,
	)
	if err != nil {
		return fmt.Errorf("setting batch background: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return model.ErrNotFound
	}
	return nil
}

// GetBatchBackground returns a batch's background image data and MIME type.
func GetBatchBackground(ctx context.Context, db *sql.DB, id int64) ([]byte, string, error) {
	var data []byte
	var mime sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT background, background_mime FROM batches WHERE id = ?`, id,
	).Scan(&data, &mime)
	if err == sql.ErrNoRows {
		return nil, "", model.ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting batch background: %w", err)
	}
	return data, mime.String, nil
}

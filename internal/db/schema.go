package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL CHECK (role IN ('admin', 'manufacturer', 'regulator', 'printer', 'logistics')),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS batches (
    id                     INTEGER PRIMARY KEY,
    product_name           TEXT NOT NULL,
    quantity               INTEGER NOT NULL CHECK (quantity > 0),
    expires_at             DATETIME NOT NULL,
    registration_no        TEXT NOT NULL,
    manufacturer_id        INTEGER NOT NULL REFERENCES users(id),
    status                 TEXT NOT NULL DEFAULT 'REQUESTED' CHECK (status IN (
        'REQUESTED', 'PENDING_REGULATOR_APPROVAL', 'PENDING_ADMIN_APPROVAL',
        'PENDING_PRINTING', 'PRINTING_IN_PROGRESS', 'PRINTING_COMPLETE',
        'IN_TRANSIT', 'PENDING_MANUFACTURER_CONFIRMATION', 'DELIVERED',
        'REGULATOR_REJECTED', 'ADMIN_REJECTED')),
    rejection_reason       TEXT,
    background             BLOB,
    background_mime        TEXT,
    received_quantity      INTEGER,
    confirmation_code      TEXT CHECK (confirmation_code IS NULL OR length(confirmation_code) = 6),
    confirmation_issued_at DATETIME,
    created_at             DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at             DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    submitted_at           DATETIME,
    regulator_approved_at  DATETIME,
    admin_approved_at      DATETIME,
    printing_started_at    DATETIME,
    printing_completed_at  DATETIME,
    picked_up_at           DATETIME,
    received_at            DATETIME,
    delivered_at           DATETIME,
    rejected_at            DATETIME
);

CREATE INDEX IF NOT EXISTS idx_batches_status ON batches(status);
CREATE INDEX IF NOT EXISTS idx_batches_manufacturer ON batches(manufacturer_id);

CREATE TABLE IF NOT EXISTS batch_events (
    id          INTEGER PRIMARY KEY,
    batch_id    INTEGER NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
    from_status TEXT NOT NULL,
    to_status   TEXT NOT NULL,
    actor_id    INTEGER REFERENCES users(id),
    reason      TEXT,
    occurred_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_batch_events_batch ON batch_events(batch_id);

CREATE TABLE IF NOT EXISTS codes (
    id         INTEGER PRIMARY KEY,
    code       TEXT NOT NULL UNIQUE,
    batch_id   INTEGER NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_codes_batch ON codes(batch_id);

CREATE TABLE IF NOT EXISTS scans (
    id         INTEGER PRIMARY KEY,
    code_id    INTEGER NOT NULL REFERENCES codes(id) ON DELETE CASCADE,
    scanned_by TEXT NOT NULL CHECK (scanned_by IN ('consumer', 'partner')),
    ip         TEXT,
    city       TEXT,
    region     TEXT,
    country    TEXT,
    latitude   REAL,
    longitude  REAL,
    scanned_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_scans_code ON scans(code_id);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

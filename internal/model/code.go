package model

import "time"

// VerificationCode is the per-unit opaque code minted at admin approval.
// Codes are globally unique, created exactly once per batch, and immutable.
type VerificationCode struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	BatchID   int64     `json:"batch_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Scanner roles for scan records.
const (
	ScannerConsumer = "consumer"
	ScannerPartner  = "partner"
)

// ScanRecord is one immutable entry in a unit's verification history.
// There is no update or delete path for scan records.
type ScanRecord struct {
	ID        int64  `json:"id"`
	CodeID    int64  `json:"code_id"`
	ScannedBy string `json:"scanned_by"`
	IP        string `json:"ip,omitempty"`

	// Best-effort geolocation. All fields are null when the caller did not
	// opt in or the lookup failed.
	City      string   `json:"city,omitempty"`
	Region    string   `json:"region,omitempty"`
	Country   string   `json:"country,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	ScannedAt time.Time `json:"scanned_at"`
}

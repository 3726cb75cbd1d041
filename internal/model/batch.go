package model

import "time"

// Status is a batch lifecycle state. Batches only ever move forward through
// the main chain or sideways into a rejection terminal.
type Status string

// Batch statuses.
const (
	StatusRequested          Status = "REQUESTED"
	StatusPendingRegulator   Status = "PENDING_REGULATOR_APPROVAL"
	StatusPendingAdmin       Status = "PENDING_ADMIN_APPROVAL"
	StatusPendingPrinting    Status = "PENDING_PRINTING"
	StatusPrintingInProgress Status = "PRINTING_IN_PROGRESS"
	StatusPrintingComplete   Status = "PRINTING_COMPLETE"
	StatusInTransit          Status = "IN_TRANSIT"
	StatusPendingConfirm     Status = "PENDING_MANUFACTURER_CONFIRMATION"
	StatusDelivered          Status = "DELIVERED"
	StatusRegulatorRejected  Status = "REGULATOR_REJECTED"
	StatusAdminRejected      Status = "ADMIN_REJECTED"
)

// Statuses lists every valid batch status.
var Statuses = []Status{
	StatusRequested,
	StatusPendingRegulator,
	StatusPendingAdmin,
	StatusPendingPrinting,
	StatusPrintingInProgress,
	StatusPrintingComplete,
	StatusInTransit,
	StatusPendingConfirm,
	StatusDelivered,
	StatusRegulatorRejected,
	StatusAdminRejected,
}

// KnownStatus reports whether s is a valid batch status.
func KnownStatus(s Status) bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

// Batch represents one manufacturing run requiring verification seals.
type Batch struct {
	ID              int64     `json:"id"`
	ProductName     string    `json:"product_name"`
	Quantity        int       `json:"quantity"`
	ExpiresAt       time.Time `json:"expires_at"`
	RegistrationNo  string    `json:"registration_no"`
	ManufacturerID  int64     `json:"manufacturer_id"`
	Status          Status    `json:"status"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	BackgroundMime  string    `json:"background_mime,omitempty"`

	// Quantity the manufacturer declared on physical receipt. May differ
	// from Quantity; discrepancies are recorded, never corrected.
	ReceivedQuantity *int `json:"received_quantity,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Timestamps for transitions the batch has passed through.
	SubmittedAt         *time.Time `json:"submitted_at,omitempty"`
	RegulatorApprovedAt *time.Time `json:"regulator_approved_at,omitempty"`
	AdminApprovedAt     *time.Time `json:"admin_approved_at,omitempty"`
	PrintingStartedAt   *time.Time `json:"printing_started_at,omitempty"`
	PrintingCompletedAt *time.Time `json:"printing_completed_at,omitempty"`
	PickedUpAt          *time.Time `json:"picked_up_at,omitempty"`
	ReceivedAt          *time.Time `json:"received_at,omitempty"`
	DeliveredAt         *time.Time `json:"delivered_at,omitempty"`
	RejectedAt          *time.Time `json:"rejected_at,omitempty"`

	// Joined fields (not always populated).
	ManufacturerName string       `json:"manufacturer_name,omitempty"`
	Events           []BatchEvent `json:"events,omitempty"`
}

// BatchEvent is one append-only record of an applied transition.
type BatchEvent struct {
	ID         int64     `json:"id"`
	BatchID    int64     `json:"batch_id"`
	FromStatus Status    `json:"from_status"`
	ToStatus   Status    `json:"to_status"`
	ActorID    *int64    `json:"actor_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// BatchSummary is the public slice of batch data returned with a
// verification result.
type BatchSummary struct {
	BatchID          int64     `json:"batch_id"`
	ProductName      string    `json:"product_name"`
	RegistrationNo   string    `json:"registration_no"`
	ExpiresAt        time.Time `json:"expires_at"`
	Status           Status    `json:"status"`
	ManufacturerName string    `json:"manufacturer_name"`
}

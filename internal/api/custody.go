package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/daykid555/criterion-mark-sub000/internal/custody"
	"github.com/daykid555/criterion-mark-sub000/internal/metrics"
	"github.com/daykid555/criterion-mark-sub000/internal/store"
)

// CustodyHandler handles the manufacturer/logistics handoff endpoints.
type CustodyHandler struct {
	DB *sql.DB
}

type confirmReceiptRequest struct {
	ReceivedQuantity int `json:"received_quantity"`
}

type finalizeRequest struct {
	ConfirmationCode string `json:"confirmation_code"`
}

// ConfirmReceipt handles POST /api/batches/{id}/receipt. The manufacturer
// declares the received quantity and gets back a one-time confirmation
// code. This response is the only place the code ever appears; it is
// relayed to the carrier out-of-band.
func (h *CustodyHandler) ConfirmReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid batch id")
		return
	}

	var req confirmReceiptRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	claims := GetClaims(r.Context())
	batch, code, err := store.ConfirmReceipt(r.Context(), h.DB, id, claims.UserID, req.ReceivedQuantity)
	if err != nil {
		handleError(w, err)
		return
	}

	if batch.ReceivedQuantity != nil && *batch.ReceivedQuantity != batch.Quantity {
		slog.Warn("receipt quantity discrepancy",
			"batch", id, "expected", batch.Quantity, "received", *batch.ReceivedQuantity)
	}
	slog.Info("receipt confirmed", "batch", id, "user", claims.Username)

	jsonResponse(w, http.StatusOK, map[string]any{
		"batch":             batch,
		"confirmation_code": code.Value,
	})
}

// Finalize handles POST /api/batches/{id}/finalize. The carrier supplies
// the confirmation code read back by the manufacturer; a mismatch leaves
// the batch untouched and retryable.
func (h *CustodyHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid batch id")
		return
	}

	var req finalizeRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	claims := GetClaims(r.Context())
	batch, err := store.FinalizeDelivery(r.Context(), h.DB, id, claims.UserID, req.ConfirmationCode)
	if err != nil {
		if errors.Is(err, custody.ErrMismatch) {
			metrics.ConfirmationMismatches.Inc()
			slog.Warn("confirmation code mismatch", "batch", id, "user", claims.Username)
		}
		handleError(w, err)
		return
	}

	slog.Info("delivery finalized", "batch", id, "user", claims.Username)
	jsonResponse(w, http.StatusOK, batch)
}

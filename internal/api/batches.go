package api

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/daykid555/criterion-mark-sub000/internal/lifecycle"
	"github.com/daykid555/criterion-mark-sub000/internal/metrics"
	"github.com/daykid555/criterion-mark-sub000/internal/model"
	"github.com/daykid555/criterion-mark-sub000/internal/seal"
	"github.com/daykid555/criterion-mark-sub000/internal/store"
)

// BatchesHandler handles batch lifecycle endpoints.
type BatchesHandler struct {
	DB *sql.DB
}

type createBatchRequest struct {
	ProductName    string    `json:"product_name"`
	Quantity       int       `json:"quantity"`
	ExpiresAt      time.Time `json:"expires_at"`
	RegistrationNo string    `json:"registration_no"`
}

type approvalRequest struct {
	Approve bool   `json:"approve"`
	Reason  string `json:"reason"`
}

// Create handles POST /api/batches. The authenticated manufacturer owns
// the new batch; there is no way to create a batch for someone else.
func (h *BatchesHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	var req createBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	batch, err := store.CreateBatch(r.Context(), h.DB, claims.UserID,
		req.ProductName, req.Quantity, req.ExpiresAt, req.RegistrationNo)
	if err != nil {
		handleError(w, err)
		return
	}

	slog.Info("batch created", "batch", batch.ID, "manufacturer", claims.Username, "quantity", batch.Quantity)
	jsonResponse(w, http.StatusCreated, batch)
}

// List handles GET /api/batches. Manufacturers see only their own batches;
// admins see everything; the other roles default to their work queue when
// no explicit status filter is given.
func (h *BatchesHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	status := model.Status(r.URL.Query().Get("status"))
	if status != "" && !model.KnownStatus(status) {
		jsonError(w, http.StatusBadRequest, "unknown status")
		return
	}

	var manufacturerID int64
	switch claims.Role {
	case model.RoleManufacturer:
		manufacturerID = claims.UserID
	case model.RoleAdmin:
		// Unscoped.
	default:
		if status == "" {
			if queue, ok := lifecycle.QueueStatus(claims.Role); ok {
				status = queue
			}
		}
	}

	batches, err := store.ListBatches(r.Context(), h.DB, status, manufacturerID)
	if err != nil {
		handleError(w, err)
		return
	}
	if batches == nil {
		batches = []model.Batch{}
	}
	jsonResponse(w, http.StatusOK, batches)
}

// getOwned loads a batch and enforces that manufacturers only see their
// own. A batch hidden by ownership reads the same as one that does not
// exist.
func (h *BatchesHandler) getOwned(r *http.Request) (*model.Batch, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid batch id", model.ErrValidation)
	}

	batch, err := store.GetBatch(r.Context(), h.DB, id)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, model.ErrNotFound
	}

	claims := GetClaims(r.Context())
	if claims.Role == model.RoleManufacturer && batch.ManufacturerID != claims.UserID {
		return nil, model.ErrNotFound
	}
	return batch, nil
}

// Get handles GET /api/batches/{id}, returning the batch with its full
// event trail.
func (h *BatchesHandler) Get(w http.ResponseWriter, r *http.Request) {
	batch, err := h.getOwned(r)
	if err != nil {
		handleError(w, err)
		return
	}

	events, err := store.ListBatchEvents(r.Context(), h.DB, batch.ID)
	if err != nil {
		handleError(w, err)
		return
	}
	batch.Events = events

	jsonResponse(w, http.StatusOK, batch)
}

// transition applies one lifecycle action on behalf of the authenticated
// user and returns the updated batch. Role and state checks live in the
// lifecycle table and the store transaction.
func (h *BatchesHandler) transition(w http.ResponseWriter, r *http.Request, action lifecycle.Action, reason string) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid batch id")
		return
	}

	claims := GetClaims(r.Context())
	batch, err := store.ApplyTransition(r.Context(), h.DB, id, action, claims.Role, claims.UserID, reason)
	if err != nil {
		handleError(w, err)
		return
	}

	slog.Info("batch transition", "batch", id, "action", action, "user", claims.Username, "status", batch.Status)
	jsonResponse(w, http.StatusOK, batch)
}

// Submit handles POST /api/batches/{id}/submit.
func (h *BatchesHandler) Submit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, lifecycle.ActionSubmit, "")
}

// RegulatorApproval handles POST /api/batches/{id}/regulator-approval.
// A rejection must carry a reason; an approval must not need one.
func (h *BatchesHandler) RegulatorApproval(w http.ResponseWriter, r *http.Request) {
	var req approvalRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Approve {
		h.transition(w, r, lifecycle.ActionRegulatorApprove, "")
		return
	}
	h.transition(w, r, lifecycle.ActionRegulatorReject, req.Reason)
}

// AdminApproval handles POST /api/batches/{id}/admin-approval. Approval
// mints the batch's unit codes atomically with the status change, so a
// batch past this point always has exactly its quantity of codes.
func (h *BatchesHandler) AdminApproval(w http.ResponseWriter, r *http.Request) {
	var req approvalRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !req.Approve {
		h.transition(w, r, lifecycle.ActionAdminReject, req.Reason)
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid batch id")
		return
	}

	claims := GetClaims(r.Context())
	batch, minted, err := store.ApproveByAdmin(r.Context(), h.DB, id, claims.UserID)
	if err != nil {
		handleError(w, err)
		return
	}
	metrics.CodesMinted.Add(float64(minted))

	slog.Info("batch approved", "batch", id, "user", claims.Username, "codes_minted", minted)
	jsonResponse(w, http.StatusOK, map[string]any{
		"batch":        batch,
		"codes_minted": minted,
	})
}

// StartPrinting handles POST /api/batches/{id}/printing/start.
func (h *BatchesHandler) StartPrinting(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, lifecycle.ActionStartPrinting, "")
}

// CompletePrinting handles POST /api/batches/{id}/printing/complete.
func (h *BatchesHandler) CompletePrinting(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, lifecycle.ActionCompletePrinting, "")
}

// Pickup handles POST /api/batches/{id}/pickup.
func (h *BatchesHandler) Pickup(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, lifecycle.ActionPickup, "")
}

// ListCodes handles GET /api/batches/{id}/codes.
func (h *BatchesHandler) ListCodes(w http.ResponseWriter, r *http.Request) {
	batch, err := h.getOwned(r)
	if err != nil {
		handleError(w, err)
		return
	}

	codes, err := store.ListCodesByBatch(r.Context(), h.DB, batch.ID)
	if err != nil {
		handleError(w, err)
		return
	}
	if codes == nil {
		codes = []model.VerificationCode{}
	}
	jsonResponse(w, http.StatusOK, codes)
}

// UploadBackground handles PUT /api/batches/{id}/background.
func (h *BatchesHandler) UploadBackground(w http.ResponseWriter, r *http.Request) {
	batch, err := h.getOwned(r)
	if err != nil {
		handleError(w, err)
		return
	}

	// Limit to 5 MB.
	r.Body = http.MaxBytesReader(w, r.Body, 5<<20)

	if err := r.ParseMultipartForm(5 << 20); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "image file required")
		return
	}
	defer file.Close()

	bg, err := seal.ProcessBackground(file)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := store.SetBatchBackground(r.Context(), h.DB, batch.ID, bg.Data, bg.MIME); err != nil {
		handleError(w, err)
		return
	}

	slog.Info("batch background uploaded", "batch", batch.ID, "mime", bg.MIME, "bytes", len(bg.Data))
	jsonResponse(w, http.StatusOK, map[string]string{"message": "background uploaded"})
}

// GetBackground handles GET /api/batches/{id}/background.
func (h *BatchesHandler) GetBackground(w http.ResponseWriter, r *http.Request) {
	batch, err := h.getOwned(r)
	if err != nil {
		handleError(w, err)
		return
	}

	data, mime, err := store.GetBatchBackground(r.Context(), h.DB, batch.ID)
	if err != nil {
		handleError(w, err)
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "no background")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(data)
}

package api

import (
	"archive/zip"
	"database/sql"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/daykid555/criterion-mark-sub000/internal/metrics"
	"github.com/daykid555/criterion-mark-sub000/internal/seal"
	"github.com/daykid555/criterion-mark-sub000/internal/store"
)

// ExportHandler handles seal sheet generation and the administrative
// archive endpoint.
type ExportHandler struct {
	DB *sql.DB
}

// Seals handles GET /api/batches/{id}/seals, streaming a ZIP with one
// watermarked seal PNG per unit code. A stored background that fails to
// decode degrades to plain seals rather than failing the export.
func (h *ExportHandler) Seals(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid batch id")
		return
	}

	batch, err := store.GetBatch(r.Context(), h.DB, id)
	if err != nil {
		handleError(w, err)
		return
	}
	if batch == nil {
		jsonError(w, http.StatusNotFound, "batch not found")
		return
	}

	codes, err := store.ListCodesByBatch(r.Context(), h.DB, id)
	if err != nil {
		handleError(w, err)
		return
	}
	if len(codes) == 0 {
		jsonError(w, http.StatusConflict, "batch has no codes yet")
		return
	}

	var background image.Image
	if data, _, err := store.GetBatchBackground(r.Context(), h.DB, id); err == nil && data != nil {
		background, err = seal.DecodeBackground(data)
		if err != nil {
			metrics.SealDegradations.Inc()
			slog.Warn("background undecodable, rendering plain seals", "batch", id, "error", err)
			background = nil
		}
	}

	values := make([]string, len(codes))
	for i, c := range codes {
		values[i] = c.Code
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=batch-%d-seals.zip", id))

	zw := zip.NewWriter(w)
	degraded, err := seal.WriteArchive(r.Context(), zw, values, background)
	if err != nil {
		// Headers are already out; all we can do is log and stop.
		slog.Error("writing seal archive", "batch", id, "error", err)
		return
	}
	if err := zw.Close(); err != nil {
		slog.Error("closing seal archive", "batch", id, "error", err)
		return
	}

	if degraded > 0 {
		metrics.SealDegradations.Add(float64(degraded))
		slog.Warn("seals rendered with degraded watermark", "batch", id, "count", degraded)
	}
	slog.Info("seal archive exported", "batch", id, "seals", len(values))
}

// Archive handles POST /api/admin/archive: export everything, then purge.
func (h *ExportHandler) Archive(w http.ResponseWriter, r *http.Request) {
	export, err := store.ArchiveAll(r.Context(), h.DB)
	if err != nil {
		handleError(w, err)
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("archive exported and purged",
		"user", claims.Username,
		"batches", len(export.Batches),
		"codes", len(export.Codes),
		"scans", len(export.Scans),
	)
	jsonResponse(w, http.StatusOK, export)
}

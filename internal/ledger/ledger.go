// Package ledger processes unit-code verifications: it resolves the code,
// appends the immutable scan record (enriched with best-effort
// geolocation), and derives the genuineness verdict from the accumulated
// history.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/daykid555/criterion-mark-sub000/internal/geo"
	"github.com/daykid555/criterion-mark-sub000/internal/metrics"
	"github.com/daykid555/criterion-mark-sub000/internal/model"
	"github.com/daykid555/criterion-mark-sub000/internal/store"
)

// Verdicts.
const (
	VerdictGenuine     = "success"
	VerdictCounterfeit = "counterfeit-signal"
)

// Request describes one verification attempt.
type Request struct {
	Code string

	// Partner marks scans by authenticated partners; everything else is
	// an anonymous consumer.
	Partner bool

	// IP of the requester, recorded with the scan.
	IP string

	// IncludeLocation opts into the geolocation lookup. Lookup failures
	// degrade to IP-only data, never fail the verification.
	IncludeLocation bool
}

// Result is the discriminated verification outcome.
type Result struct {
	Verdict string              `json:"verdict"`
	Message string              `json:"message"`
	Batch   *model.BatchSummary `json:"batch,omitempty"`
	History []model.ScanRecord  `json:"history,omitempty"`

	// MultipleScans is the "scanned N times" signal. Legitimate re-scans
	// happen, so this is a warning for the caller to surface, not an
	// error.
	MultipleScans bool `json:"multiple_scans"`
}

// Ledger verifies unit codes against the store.
type Ledger struct {
	DB  *sql.DB
	Geo *geo.Resolver // nil disables geolocation entirely
}

// Verify looks up a unit code and, when it exists, appends exactly one
// scan record and returns the full updated history, oldest first. An
// unknown code yields a counterfeit-signal verdict and writes nothing:
// there is no unit to log against. Verification is deliberately not
// idempotent — every call on a known code adds to the trail — but it
// never rejects a known code, regardless of scan count or batch status.
func (l *Ledger) Verify(ctx context.Context, req Request) (*Result, error) {
	if req.Code == "" {
		return nil, fmt.Errorf("%w: code required", model.ErrValidation)
	}

	code, err := store.GetCodeByValue(ctx, l.DB, req.Code)
	if err != nil {
		return nil, err
	}
	if code == nil {
		metrics.UnknownCodeScans.Inc()
		slog.Warn("verification of unknown code", "ip", req.IP)
		return &Result{
			Verdict: VerdictCounterfeit,
			Message: "This code is not recognized. The product may be counterfeit.",
		}, nil
	}

	rec := &model.ScanRecord{
		CodeID:    code.ID,
		ScannedBy: model.ScannerConsumer,
		IP:        req.IP,
	}
	if req.Partner {
		rec.ScannedBy = model.ScannerPartner
	}

	if req.IncludeLocation && l.Geo != nil && req.IP != "" {
		loc, err := l.Geo.Lookup(ctx, req.IP)
		if err != nil {
			metrics.GeoLookupFailures.Inc()
			slog.Warn("geolocation lookup failed", "ip", req.IP, "error", err)
		} else {
			rec.City = loc.City
			rec.Region = loc.Region
			rec.Country = loc.Country
			rec.Latitude = &loc.Latitude
			rec.Longitude = &loc.Longitude
		}
	}

	if _, err := store.AppendScan(ctx, l.DB, rec); err != nil {
		return nil, fmt.Errorf("recording scan: %w", err)
	}
	metrics.ScansRecorded.WithLabelValues(rec.ScannedBy).Inc()

	history, err := store.ListScansByCode(ctx, l.DB, code.ID)
	if err != nil {
		return nil, fmt.Errorf("reading scan history: %w", err)
	}

	summary, err := store.GetBatchSummaryByCode(ctx, l.DB, code.ID)
	if err != nil {
		return nil, fmt.Errorf("reading batch summary: %w", err)
	}

	result := &Result{
		Verdict:       VerdictGenuine,
		Message:       "Product code verified.",
		Batch:         summary,
		History:       history,
		MultipleScans: len(history) > 1,
	}
	if result.MultipleScans {
		result.Message = fmt.Sprintf("Product code verified. This unit has been scanned %d times.", len(history))
	}
	return result, nil
}

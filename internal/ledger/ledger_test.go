package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/daykid555/criterion-mark-sub000/internal/db"
	"github.com/daykid555/criterion-mark-sub000/internal/geo"
	"github.com/daykid555/criterion-mark-sub000/internal/lifecycle"
	"github.com/daykid555/criterion-mark-sub000/internal/model"
	"github.com/daykid555/criterion-mark-sub000/internal/store"
)

// setupCode creates a batch, pushes it to PENDING_PRINTING, and returns
// the database plus one of its minted codes.
func setupCode(t *testing.T) (*sql.DB, model.VerificationCode) {
	t.Helper()
	database := db.NewTestDB(t)
	ctx := context.Background()

	mfr, err := store.CreateUser(ctx, database, "acme", "x", model.RoleManufacturer)
	if err != nil {
		t.Fatalf("creating manufacturer: %v", err)
	}
	b, err := store.CreateBatch(ctx, database, mfr.ID, "Amoxicillin 500mg", 3,
		time.Now().AddDate(2, 0, 0), "REG-2026-0042")
	if err != nil {
		t.Fatalf("creating batch: %v", err)
	}
	if _, err := store.ApplyTransition(ctx, database, b.ID, lifecycle.ActionSubmit, model.RoleManufacturer, 0, ""); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := store.ApplyTransition(ctx, database, b.ID, lifecycle.ActionRegulatorApprove, model.RoleRegulator, 0, ""); err != nil {
		t.Fatalf("regulator approve: %v", err)
	}
	if _, _, err := store.ApproveByAdmin(ctx, database, b.ID, 0); err != nil {
		t.Fatalf("admin approve: %v", err)
	}

	list, err := store.ListCodesByBatch(ctx, database, b.ID)
	if err != nil || len(list) == 0 {
		t.Fatalf("listing codes: %v", err)
	}
	return database, list[0]
}

func TestVerifyUnknownCodeWritesNothing(t *testing.T) {
	database, _ := setupCode(t)
	l := &Ledger{DB: database}

	res, err := l.Verify(context.Background(), Request{Code: "nosuchcode42"})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.Verdict != VerdictCounterfeit {
		t.Errorf("expected %s, got %s", VerdictCounterfeit, res.Verdict)
	}
	if res.History != nil || res.Batch != nil {
		t.Error("unknown code must not return history or batch data")
	}

	// No scan record may exist anywhere.
	var count int
	database.QueryRow(`SELECT COUNT(*) FROM scans`).Scan(&count)
	if count != 0 {
		t.Errorf("unknown-code verification created %d scan records", count)
	}
}

func TestVerifyAppendsAndSignalsMultipleScans(t *testing.T) {
	database, code := setupCode(t)
	l := &Ledger{DB: database}
	ctx := context.Background()

	ips := []string{"198.51.100.1", "198.51.100.2", "198.51.100.3"}
	var res *Result
	for i, ip := range ips {
		var err error
		res, err = l.Verify(ctx, Request{Code: code.Code, IP: ip})
		if err != nil {
			t.Fatalf("Verify #%d: %v", i+1, err)
		}
		if res.Verdict != VerdictGenuine {
			t.Fatalf("Verify #%d: expected success verdict, got %s", i+1, res.Verdict)
		}
		if len(res.History) != i+1 {
			t.Fatalf("Verify #%d: expected history length %d, got %d", i+1, i+1, len(res.History))
		}
	}

	if !res.MultipleScans {
		t.Error("expected multi-scan signal after three scans")
	}
	if res.Batch == nil || res.Batch.ProductName != "Amoxicillin 500mg" {
		t.Errorf("expected batch summary, got %+v", res.Batch)
	}
	// History is oldest first.
	if res.History[0].IP != ips[0] || res.History[2].IP != ips[2] {
		t.Error("history not ordered oldest first")
	}
}

func TestVerifySingleScanNoSignal(t *testing.T) {
	database, code := setupCode(t)
	l := &Ledger{DB: database}

	res, err := l.Verify(context.Background(), Request{Code: code.Code, Partner: true})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.MultipleScans {
		t.Error("single scan must not raise the multi-scan signal")
	}
	if res.History[0].ScannedBy != model.ScannerPartner {
		t.Errorf("expected partner scan, got %s", res.History[0].ScannedBy)
	}
}

func TestVerifyGeolocationEnrichment(t *testing.T) {
	database, code := setupCode(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status": "success", "city": "Lagos", "country": "Nigeria",
			"regionName": "Lagos", "lat": 6.45, "lon": 3.39,
		})
	}))
	t.Cleanup(server.Close)

	l := &Ledger{DB: database, Geo: geo.NewResolver(server.URL)}
	res, err := l.Verify(context.Background(), Request{
		Code: code.Code, IP: "203.0.113.9", IncludeLocation: true,
	})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	rec := res.History[0]
	if rec.City != "Lagos" || rec.Country != "Nigeria" || rec.Latitude == nil {
		t.Errorf("expected geolocation fields, got %+v", rec)
	}
}

func TestVerifyGeolocationFailureDegrades(t *testing.T) {
	database, code := setupCode(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // unreachable

	l := &Ledger{DB: database, Geo: geo.NewResolver(server.URL)}
	res, err := l.Verify(context.Background(), Request{
		Code: code.Code, IP: "203.0.113.9", IncludeLocation: true,
	})
	if err != nil {
		t.Fatalf("geolocation failure must not fail verification: %v", err)
	}

	rec := res.History[0]
	if rec.IP != "203.0.113.9" {
		t.Errorf("expected IP-only record, got %+v", rec)
	}
	if rec.City != "" || rec.Latitude != nil {
		t.Errorf("expected empty location on lookup failure, got %+v", rec)
	}
}

func TestVerifyEmptyCode(t *testing.T) {
	database, _ := setupCode(t)
	l := &Ledger{DB: database}
	if _, err := l.Verify(context.Background(), Request{}); err == nil {
		t.Error("expected error for empty code")
	}
}

package store

import (
	"context"
	"errors"
	"testing"

	"github.com/daykid555/criterion-mark-sub000/internal/db"
	"github.com/daykid555/criterion-mark-sub000/internal/lifecycle"
	"github.com/daykid555/criterion-mark-sub000/internal/model"
)

func TestAppendScanAndHistory(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	b := newTestBatch(t, database, 5)
	advance(t, database, b.ID, lifecycle.ActionSubmit, lifecycle.ActionRegulatorApprove, lifecycle.ActionAdminApprove)
	list, _ := ListCodesByBatch(ctx, database, b.ID)
	code := list[0]

	ips := []string{"198.51.100.1", "198.51.100.2", "198.51.100.3"}
	for _, ip := range ips {
		rec, err := AppendScan(ctx, database, &model.ScanRecord{
			CodeID:    code.ID,
			ScannedBy: model.ScannerConsumer,
			IP:        ip,
		})
		if err != nil {
			t.Fatalf("AppendScan: %v", err)
		}
		if rec.ID == 0 || rec.ScannedAt.IsZero() {
			t.Errorf("appended scan missing id or timestamp: %+v", rec)
		}
	}

	history, err := ListScansByCode(ctx, database, code.ID)
	if err != nil {
		t.Fatalf("ListScansByCode: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected history of 3, got %d", len(history))
	}
	// Oldest first.
	for i, rec := range history {
		if rec.IP != ips[i] {
			t.Errorf("history[%d]: expected ip %s, got %s", i, ips[i], rec.IP)
		}
	}
}

func TestAppendScanWithLocation(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	b := newTestBatch(t, database, 5)
	advance(t, database, b.ID, lifecycle.ActionSubmit, lifecycle.ActionRegulatorApprove, lifecycle.ActionAdminApprove)
	list, _ := ListCodesByBatch(ctx, database, b.ID)

	lat, lon := 46.05, 14.51
	rec, err := AppendScan(ctx, database, &model.ScanRecord{
		CodeID:    list[0].ID,
		ScannedBy: model.ScannerPartner,
		IP:        "203.0.113.9",
		City:      "Ljubljana",
		Country:   "Slovenia",
		Latitude:  &lat,
		Longitude: &lon,
	})
	if err != nil {
		t.Fatalf("AppendScan: %v", err)
	}
	if rec.City != "Ljubljana" || rec.Latitude == nil || *rec.Latitude != lat {
		t.Errorf("location not persisted: %+v", rec)
	}
}

func TestAppendScanRejectsUnknownRole(t *testing.T) {
	database := db.NewTestDB(t)
	_, err := AppendScan(context.Background(), database, &model.ScanRecord{CodeID: 1, ScannedBy: "auditor"})
	if !errors.Is(err, model.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestArchiveAllExportsAndPurges(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	b := newTestBatch(t, database, 5)
	advance(t, database, b.ID, lifecycle.ActionSubmit, lifecycle.ActionRegulatorApprove, lifecycle.ActionAdminApprove)
	list, _ := ListCodesByBatch(ctx, database, b.ID)
	AppendScan(ctx, database, &model.ScanRecord{CodeID: list[0].ID, ScannedBy: model.ScannerConsumer})

	export, err := ArchiveAll(ctx, database)
	if err != nil {
		t.Fatalf("ArchiveAll: %v", err)
	}
	if len(export.Batches) != 1 || len(export.Codes) != 5 || len(export.Scans) != 1 || len(export.Events) != 3 {
		t.Errorf("unexpected export sizes: %d batches, %d codes, %d scans, %d events",
			len(export.Batches), len(export.Codes), len(export.Scans), len(export.Events))
	}

	// Everything purged.
	if got, _ := GetBatch(ctx, database, b.ID); got != nil {
		t.Error("batch survived archive purge")
	}
	if got, _ := GetCodeByValue(ctx, database, list[0].Code); got != nil {
		t.Error("code survived archive purge")
	}
}

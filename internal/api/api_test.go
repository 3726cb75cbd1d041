package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/daykid555/criterion-mark-sub000/internal/db"
	"github.com/daykid555/criterion-mark-sub000/internal/model"
	"github.com/daykid555/criterion-mark-sub000/internal/store"
)

const testJWTSecret = "test-secret"

// testEnv is one running API server with a user logged in per role.
type testEnv struct {
	server *httptest.Server
	db     *sql.DB
	tokens map[model.Role]string
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	database := db.NewTestDB(t)
	server := httptest.NewServer(NewRouter(database, testJWTSecret, nil))
	t.Cleanup(server.Close)

	env := &testEnv{server: server, db: database, tokens: make(map[model.Role]string)}

	ctx := context.Background()
	hash, _ := bcrypt.GenerateFromPassword([]byte("password1"), bcrypt.DefaultCost)
	for _, role := range model.Roles {
		username := string(role)
		if _, err := store.CreateUser(ctx, database, username, string(hash), role); err != nil {
			t.Fatalf("creating %s user: %v", role, err)
		}
		env.tokens[role] = login(t, server, username, "password1")
	}

	return env
}

func login(t *testing.T, server *httptest.Server, username, password string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	resp, err := http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login as %s failed: %d", username, resp.StatusCode)
	}

	var loginResp map[string]string
	json.NewDecoder(resp.Body).Decode(&loginResp)
	if loginResp["token"] == "" {
		t.Fatal("empty token from login")
	}
	return loginResp["token"]
}

func authRequest(method, url, token string, body any) (*http.Request, error) {
	var bodyReader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(data)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// do runs an authenticated request and fails the test unless the response
// has the wanted status. The decoded JSON body is returned when out is
// non-nil.
func (e *testEnv) do(t *testing.T, method, path string, role model.Role, body any, want int, out any) {
	t.Helper()
	req, err := authRequest(method, e.server.URL+path, e.tokens[role], body)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		t.Fatalf("%s %s as %s: expected %d, got %d", method, path, role, want, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s %s response: %v", method, path, err)
		}
	}
}

func createTestBatch(t *testing.T, env *testEnv, quantity int) *model.Batch {
	t.Helper()
	var batch model.Batch
	env.do(t, "POST", "/api/batches", model.RoleManufacturer, map[string]any{
		"product_name":    "Amoxicillin 500mg",
		"quantity":        quantity,
		"expires_at":      time.Now().AddDate(2, 0, 0).Format(time.RFC3339),
		"registration_no": "REG-2026-0042",
	}, http.StatusCreated, &batch)
	if batch.Status != model.StatusRequested {
		t.Fatalf("new batch status: %s", batch.Status)
	}
	return &batch
}

func TestLoginEndpoint(t *testing.T) {
	env := setupTestServer(t)

	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "wrong"})
	resp, _ := http.Post(env.server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad password, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestFullBatchLifecycle(t *testing.T) {
	env := setupTestServer(t)
	batch := createTestBatch(t, env, 5)
	base := fmt.Sprintf("/api/batches/%d", batch.ID)

	env.do(t, "POST", base+"/submit", model.RoleManufacturer, nil, http.StatusOK, nil)
	env.do(t, "POST", base+"/regulator-approval", model.RoleRegulator,
		map[string]any{"approve": true}, http.StatusOK, nil)

	var approval struct {
		Batch       model.Batch `json:"batch"`
		CodesMinted int         `json:"codes_minted"`
	}
	env.do(t, "POST", base+"/admin-approval", model.RoleAdmin,
		map[string]any{"approve": true}, http.StatusOK, &approval)
	if approval.CodesMinted != 5 {
		t.Fatalf("expected 5 codes minted, got %d", approval.CodesMinted)
	}
	if approval.Batch.Status != model.StatusPendingPrinting {
		t.Fatalf("after admin approval: %s", approval.Batch.Status)
	}

	var codes []model.VerificationCode
	env.do(t, "GET", base+"/codes", model.RolePrinter, nil, http.StatusOK, &codes)
	if len(codes) != 5 {
		t.Fatalf("expected 5 codes, got %d", len(codes))
	}

	env.do(t, "POST", base+"/printing/start", model.RolePrinter, nil, http.StatusOK, nil)
	env.do(t, "POST", base+"/printing/complete", model.RolePrinter, nil, http.StatusOK, nil)
	env.do(t, "POST", base+"/pickup", model.RoleLogistics, nil, http.StatusOK, nil)

	var receipt struct {
		Batch            model.Batch `json:"batch"`
		ConfirmationCode string      `json:"confirmation_code"`
	}
	env.do(t, "POST", base+"/receipt", model.RoleManufacturer,
		map[string]any{"received_quantity": 4}, http.StatusOK, &receipt)
	if len(receipt.ConfirmationCode) != 6 {
		t.Fatalf("expected 6-digit confirmation code, got %q", receipt.ConfirmationCode)
	}
	if receipt.Batch.ReceivedQuantity == nil || *receipt.Batch.ReceivedQuantity != 4 {
		t.Errorf("received quantity not recorded: %+v", receipt.Batch.ReceivedQuantity)
	}

	// Wrong code leaves the batch retryable.
	wrong := "000000"
	if wrong == receipt.ConfirmationCode {
		wrong = "000001"
	}
	env.do(t, "POST", base+"/finalize", model.RoleLogistics,
		map[string]any{"confirmation_code": wrong}, http.StatusConflict, nil)

	var final model.Batch
	env.do(t, "POST", base+"/finalize", model.RoleLogistics,
		map[string]any{"confirmation_code": receipt.ConfirmationCode}, http.StatusOK, &final)
	if final.Status != model.StatusDelivered {
		t.Fatalf("after finalize: %s", final.Status)
	}

	// A replay fails: the code is single-use.
	env.do(t, "POST", base+"/finalize", model.RoleLogistics,
		map[string]any{"confirmation_code": receipt.ConfirmationCode}, http.StatusConflict, nil)

	// The event trail covers every transition.
	var full model.Batch
	env.do(t, "GET", base, model.RoleAdmin, nil, http.StatusOK, &full)
	if len(full.Events) != 8 {
		t.Errorf("expected 8 events, got %d", len(full.Events))
	}
}

func TestVerifyEndpoint(t *testing.T) {
	env := setupTestServer(t)
	batch := createTestBatch(t, env, 3)
	base := fmt.Sprintf("/api/batches/%d", batch.ID)

	env.do(t, "POST", base+"/submit", model.RoleManufacturer, nil, http.StatusOK, nil)
	env.do(t, "POST", base+"/regulator-approval", model.RoleRegulator,
		map[string]any{"approve": true}, http.StatusOK, nil)
	env.do(t, "POST", base+"/admin-approval", model.RoleAdmin,
		map[string]any{"approve": true}, http.StatusOK, nil)

	var codes []model.VerificationCode
	env.do(t, "GET", base+"/codes", model.RoleAdmin, nil, http.StatusOK, &codes)

	verify := func(code string) (*http.Response, map[string]any) {
		body, _ := json.Marshal(map[string]string{"code": code})
		resp, err := http.Post(env.server.URL+"/api/verify", "application/json", bytes.NewReader(body))
		if err != nil {
			t.Fatalf("verify request: %v", err)
		}
		defer resp.Body.Close()
		var result map[string]any
		json.NewDecoder(resp.Body).Decode(&result)
		return resp, result
	}

	// First scan: genuine, no multi-scan signal.
	resp, result := verify(codes[0].Code)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if result["verdict"] != "success" || result["multiple_scans"] != false {
		t.Errorf("first scan: %+v", result)
	}

	// Second scan of the same unit raises the signal.
	_, result = verify(codes[0].Code)
	if result["multiple_scans"] != true {
		t.Errorf("second scan: expected multi-scan signal, got %+v", result)
	}

	// Unknown code: counterfeit signal, 404.
	resp, result = verify("definitely-not-a-code")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown code, got %d", resp.StatusCode)
	}
	if result["verdict"] != "counterfeit-signal" {
		t.Errorf("unknown code verdict: %+v", result)
	}
}

func TestRejectionRequiresReason(t *testing.T) {
	env := setupTestServer(t)
	batch := createTestBatch(t, env, 3)
	base := fmt.Sprintf("/api/batches/%d", batch.ID)

	env.do(t, "POST", base+"/submit", model.RoleManufacturer, nil, http.StatusOK, nil)

	env.do(t, "POST", base+"/regulator-approval", model.RoleRegulator,
		map[string]any{"approve": false}, http.StatusBadRequest, nil)

	var rejected struct {
		Status          model.Status `json:"status"`
		RejectionReason string       `json:"rejection_reason"`
	}
	env.do(t, "POST", base+"/regulator-approval", model.RoleRegulator,
		map[string]any{"approve": false, "reason": "registration expired"}, http.StatusOK, &rejected)
	if rejected.Status != model.StatusRegulatorRejected || rejected.RejectionReason != "registration expired" {
		t.Errorf("rejection not recorded: %+v", rejected)
	}

	// Terminal: nothing moves a rejected batch.
	env.do(t, "POST", base+"/submit", model.RoleManufacturer, nil, http.StatusConflict, nil)
}

func TestRoleEnforcement(t *testing.T) {
	env := setupTestServer(t)
	batch := createTestBatch(t, env, 3)
	base := fmt.Sprintf("/api/batches/%d", batch.ID)

	// Only manufacturers create batches.
	env.do(t, "POST", "/api/batches", model.RolePrinter, map[string]any{
		"product_name": "x", "quantity": 1,
		"expires_at":      time.Now().AddDate(1, 0, 0).Format(time.RFC3339),
		"registration_no": "REG-1",
	}, http.StatusForbidden, nil)

	// Only the regulator reviews first.
	env.do(t, "POST", base+"/regulator-approval", model.RoleAdmin,
		map[string]any{"approve": true}, http.StatusForbidden, nil)

	// Only admins manage users.
	env.do(t, "GET", "/api/users", model.RoleRegulator, nil, http.StatusForbidden, nil)

	// Unauthenticated requests are rejected outright.
	resp, _ := http.Get(env.server.URL + "/api/batches")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestManufacturerScoping(t *testing.T) {
	env := setupTestServer(t)
	batch := createTestBatch(t, env, 3)

	// A second manufacturer cannot see the first one's batch.
	hash, _ := bcrypt.GenerateFromPassword([]byte("password1"), bcrypt.DefaultCost)
	if _, err := store.CreateUser(context.Background(), env.db, "other-mfr", string(hash), model.RoleManufacturer); err != nil {
		t.Fatalf("creating second manufacturer: %v", err)
	}
	otherToken := login(t, env.server, "other-mfr", "password1")

	req, _ := authRequest("GET", env.server.URL+"/api/batches", otherToken, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("listing batches: %v", err)
	}
	var batches []model.Batch
	json.NewDecoder(resp.Body).Decode(&batches)
	resp.Body.Close()
	if len(batches) != 0 {
		t.Errorf("expected empty list for second manufacturer, got %d", len(batches))
	}

	req, _ = authRequest("GET", fmt.Sprintf("%s/api/batches/%d", env.server.URL, batch.ID), otherToken, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("getting batch: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for foreign batch, got %d", resp.StatusCode)
	}
}

func TestSealExport(t *testing.T) {
	env := setupTestServer(t)
	batch := createTestBatch(t, env, 3)
	base := fmt.Sprintf("/api/batches/%d", batch.ID)

	// No codes yet: nothing to export.
	env.do(t, "GET", base+"/seals", model.RolePrinter, nil, http.StatusConflict, nil)

	env.do(t, "POST", base+"/submit", model.RoleManufacturer, nil, http.StatusOK, nil)
	env.do(t, "POST", base+"/regulator-approval", model.RoleRegulator,
		map[string]any{"approve": true}, http.StatusOK, nil)
	env.do(t, "POST", base+"/admin-approval", model.RoleAdmin,
		map[string]any{"approve": true}, http.StatusOK, nil)

	req, _ := authRequest("GET", env.server.URL+base+"/seals", env.tokens[model.RolePrinter], nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("seal export: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/zip" {
		t.Errorf("expected application/zip, got %s", ct)
	}

	// Manufacturers do not get seal sheets.
	env.do(t, "GET", base+"/seals", model.RoleManufacturer, nil, http.StatusForbidden, nil)
}

func TestLogoutRevokesToken(t *testing.T) {
	env := setupTestServer(t)

	env.do(t, "POST", "/api/auth/logout", model.RoleRegulator, nil, http.StatusOK, nil)

	// The revoked token no longer authenticates.
	env.do(t, "GET", "/api/batches", model.RoleRegulator, nil, http.StatusUnauthorized, nil)
}

func TestArchiveEndpoint(t *testing.T) {
	env := setupTestServer(t)
	createTestBatch(t, env, 3)

	var export struct {
		Batches []model.Batch `json:"batches"`
	}
	env.do(t, "POST", "/api/admin/archive", model.RoleAdmin, nil, http.StatusOK, &export)
	if len(export.Batches) != 1 {
		t.Errorf("expected 1 archived batch, got %d", len(export.Batches))
	}

	var remaining []model.Batch
	env.do(t, "GET", "/api/batches", model.RoleAdmin, nil, http.StatusOK, &remaining)
	if len(remaining) != 0 {
		t.Errorf("expected empty list after archive, got %d", len(remaining))
	}

	// Not an admin operation for anyone else.
	env.do(t, "POST", "/api/admin/archive", model.RoleLogistics, nil, http.StatusForbidden, nil)
}

func TestHealthz(t *testing.T) {
	env := setupTestServer(t)
	resp, err := http.Get(env.server.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

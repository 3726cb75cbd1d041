package api

import (
	"database/sql"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/daykid555/criterion-mark-sub000/internal/geo"
	"github.com/daykid555/criterion-mark-sub000/internal/ledger"
	"github.com/daykid555/criterion-mark-sub000/internal/model"
)

// NewRouter creates the API router with all endpoints registered.
func NewRouter(db *sql.DB, jwtSecret string, resolver *geo.Resolver) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: db, JWTSecret: jwtSecret}
	usersHandler := &UsersHandler{DB: db}
	batchesHandler := &BatchesHandler{DB: db}
	custodyHandler := &CustodyHandler{DB: db}
	exportHandler := &ExportHandler{DB: db}
	verifyHandler := &VerifyHandler{
		Ledger:    &ledger.Ledger{DB: db, Geo: resolver},
		JWTSecret: jwtSecret,
	}

	authMW := AuthMiddleware(jwtSecret, db)
	admin := RequireRole(model.RoleAdmin)
	manufacturer := RequireRole(model.RoleManufacturer)
	regulator := RequireRole(model.RoleRegulator)
	printer := RequireRole(model.RolePrinter)
	logistics := RequireRole(model.RoleLogistics)

	// Public: verification and login. Anyone holding a unit can verify it.
	mux.HandleFunc("POST /api/verify", verifyHandler.Verify)
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// Authenticated routes.
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))

	// Users (admin only).
	mux.Handle("GET /api/users", authMW(admin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(admin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("GET /api/users/{id}", authMW(admin(http.HandlerFunc(usersHandler.Get))))
	mux.Handle("PUT /api/users/{id}", authMW(admin(http.HandlerFunc(usersHandler.Update))))
	mux.Handle("PUT /api/users/{id}/password", authMW(admin(http.HandlerFunc(usersHandler.ResetPassword))))
	mux.Handle("DELETE /api/users/{id}", authMW(admin(http.HandlerFunc(usersHandler.Delete))))

	// Batches: creation and reading. Reads are scoped per role inside the
	// handlers; every workflow role needs to see its queue.
	mux.Handle("POST /api/batches", authMW(manufacturer(http.HandlerFunc(batchesHandler.Create))))
	mux.Handle("GET /api/batches", authMW(http.HandlerFunc(batchesHandler.List)))
	mux.Handle("GET /api/batches/{id}", authMW(http.HandlerFunc(batchesHandler.Get)))

	// Lifecycle transitions, one route per edge. The store enforces role
	// and state again inside the transaction; the route-level gate just
	// gives cleaner errors.
	mux.Handle("POST /api/batches/{id}/submit", authMW(manufacturer(http.HandlerFunc(batchesHandler.Submit))))
	mux.Handle("POST /api/batches/{id}/regulator-approval", authMW(regulator(http.HandlerFunc(batchesHandler.RegulatorApproval))))
	mux.Handle("POST /api/batches/{id}/admin-approval", authMW(admin(http.HandlerFunc(batchesHandler.AdminApproval))))
	mux.Handle("POST /api/batches/{id}/printing/start", authMW(printer(http.HandlerFunc(batchesHandler.StartPrinting))))
	mux.Handle("POST /api/batches/{id}/printing/complete", authMW(printer(http.HandlerFunc(batchesHandler.CompletePrinting))))
	mux.Handle("POST /api/batches/{id}/pickup", authMW(logistics(http.HandlerFunc(batchesHandler.Pickup))))

	// Custody handoff.
	mux.Handle("POST /api/batches/{id}/receipt", authMW(manufacturer(http.HandlerFunc(custodyHandler.ConfirmReceipt))))
	mux.Handle("POST /api/batches/{id}/finalize", authMW(logistics(http.HandlerFunc(custodyHandler.Finalize))))

	// Codes and seal assets.
	mux.Handle("GET /api/batches/{id}/codes", authMW(RequireRole(model.RoleAdmin, model.RolePrinter, model.RoleManufacturer)(http.HandlerFunc(batchesHandler.ListCodes))))
	mux.Handle("PUT /api/batches/{id}/background", authMW(RequireRole(model.RoleManufacturer, model.RoleAdmin)(http.HandlerFunc(batchesHandler.UploadBackground))))
	mux.Handle("GET /api/batches/{id}/background", authMW(http.HandlerFunc(batchesHandler.GetBackground)))
	mux.Handle("GET /api/batches/{id}/seals", authMW(RequireRole(model.RoleAdmin, model.RolePrinter)(http.HandlerFunc(exportHandler.Seals))))

	// Administrative archive.
	mux.Handle("POST /api/admin/archive", authMW(admin(http.HandlerFunc(exportHandler.Archive))))

	// Operational endpoints.
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			jsonError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	return RequestIDMiddleware(LoggingMiddleware(MetricsMiddleware(mux)))
}

package api

import (
	"net"
	"net/http"
	"strings"

	"github.com/daykid555/criterion-mark-sub000/internal/auth"
	"github.com/daykid555/criterion-mark-sub000/internal/ledger"
)

// VerifyHandler handles the public verification endpoint.
type VerifyHandler struct {
	Ledger    *ledger.Ledger
	JWTSecret string
}

type verifyRequest struct {
	Code            string `json:"code"`
	IncludeLocation bool   `json:"include_location"`
}

// Verify handles POST /api/verify. The endpoint is public: anyone holding
// a physical unit can check it. A valid bearer token upgrades the scan to
// a partner scan, but an invalid or absent one never blocks verification.
func (h *VerifyHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	partner := false
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		if _, err := auth.ValidateToken(h.JWTSecret, strings.TrimPrefix(header, "Bearer ")); err == nil {
			partner = true
		}
	}

	result, err := h.Ledger.Verify(r.Context(), ledger.Request{
		Code:            req.Code,
		Partner:         partner,
		IP:              clientIP(r),
		IncludeLocation: req.IncludeLocation,
	})
	if err != nil {
		handleError(w, err)
		return
	}

	status := http.StatusOK
	if result.Verdict == ledger.VerdictCounterfeit {
		status = http.StatusNotFound
	}
	jsonResponse(w, status, result)
}

// clientIP extracts the requester's IP, preferring the first hop in
// X-Forwarded-For when a proxy set it.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

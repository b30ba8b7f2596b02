package httpapi

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/bronn-dev/dentalbridge/internal/auth"
	"github.com/bronn-dev/dentalbridge/internal/compliance"
	"github.com/bronn-dev/dentalbridge/internal/model"
	"github.com/bronn-dev/dentalbridge/pkg/logging"
)

// loginPool is the narrow read surface the login handler needs.
type loginPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AuthHandler authenticates staff users against the users table and issues
// their tokens. Passwords are stored as hex SHA-256 of salt+password.
type AuthHandler struct {
	pool   loginPool
	issuer *auth.Issuer
	audit  auditRecorder
	logger *logging.Logger
}

// NewAuthHandler wires the login surface.
func NewAuthHandler(pool loginPool, issuer *auth.Issuer, audit auditRecorder, logger *logging.Logger) *AuthHandler {
	if pool == nil {
		panic("httpapi: pgx pool required")
	}
	if issuer == nil {
		panic("httpapi: token issuer required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AuthHandler{pool: pool, issuer: issuer, audit: audit, logger: logger}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token    string `json:"token"`
	Role     string `json:"role"`
	TenantID string `json:"tenant_id,omitempty"`
}

// Login verifies credentials and returns a staff token.
// POST /v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password required")
		return
	}

	var (
		userID   string
		tenantID *string
		salt     string
		digest   string
		role     string
	)
	err := h.pool.QueryRow(r.Context(), `
		SELECT user_id, tenant_id, password_salt, password_digest, role
		FROM users
		WHERE email = $1
	`, req.Email).Scan(&userID, &tenantID, &salt, &digest, &role)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		h.logger.Error("user lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	if !verifyPassword(salt, req.Password, digest) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	tenant := ""
	if tenantID != nil {
		tenant = *tenantID
	}
	token, err := h.issuer.IssueStaff(userID, tenant, role)
	if err != nil {
		h.logger.Error("token issue failed", "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	if h.audit != nil && tenant != "" {
		if err := h.audit.Record(r.Context(), model.AuditEvent{
			TenantID:   tenant,
			ActorID:    &userID,
			Action:     compliance.ActionLogin,
			EntityType: "user",
			EntityID:   userID,
			IP:         clientIP(r),
		}); err != nil {
			h.logger.Error("audit record failed", "error", err, "action", compliance.ActionLogin)
		}
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, Role: role, TenantID: tenant})
}

// HashPassword produces the stored digest for a salt and password. Seeding
// and tests share it with the verifier.
func HashPassword(salt, password string) string {
	sum := sha256.Sum256([]byte(salt + password))
	return hex.EncodeToString(sum[:])
}

func verifyPassword(salt, password, digest string) bool {
	computed := HashPassword(salt, password)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(digest)) == 1
}

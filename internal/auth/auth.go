// Package auth issues and verifies the HMAC-signed JWTs that scope the HTTP
// surface: staff tokens carry a tenant and role, patient tokens carry the
// patient id. Password hashing and identity providers live outside the core;
// this package only signs and checks claims.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Principal kinds.
const (
	KindStaff   = "staff"
	KindAdmin   = "admin"
	KindPatient = "patient"
)

// ErrInvalidToken covers every verification failure; callers map it to 401.
var ErrInvalidToken = errors.New("auth: invalid token")

// Claims are the platform's JWT claims.
type Claims struct {
	Kind      string `json:"kind"`
	TenantID  string `json:"tenant_id,omitempty"`
	PatientID string `json:"patient_id,omitempty"`
	Role      string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies tokens with one HS256 secret.
type Issuer struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

// NewIssuer builds an issuer. The default expiry is 8 hours.
func NewIssuer(secret string, expiry time.Duration) *Issuer {
	if secret == "" {
		panic("auth: jwt secret required")
	}
	if expiry <= 0 {
		expiry = 8 * time.Hour
	}
	return &Issuer{secret: []byte(secret), expiry: expiry, now: time.Now}
}

// IssueStaff signs a staff token bound to a tenant.
func (i *Issuer) IssueStaff(userID, tenantID, role string) (string, error) {
	kind := KindStaff
	if role == "admin" {
		kind = KindAdmin
	}
	return i.sign(Claims{
		Kind:     kind,
		TenantID: tenantID,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: userID,
		},
	})
}

// IssuePatient signs a patient token.
func (i *Issuer) IssuePatient(patientID string) (string, error) {
	return i.sign(Claims{
		Kind:      KindPatient,
		PatientID: patientID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: patientID,
		},
	})
}

func (i *Issuer) sign(claims Claims) (string, error) {
	now := i.now().UTC()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(i.expiry))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token string.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return i.now() }))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Kind == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

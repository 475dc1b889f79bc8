package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type TokenRequest struct {
	Subject      uuid.UUID
	Roles        []string
	HospitalID   string
	DoctorID     *uuid.UUID
	DepartmentID *uuid.UUID
	Issuer       string
	Audience     string
	TTL          time.Duration
}

// SignToken mints an HS256 token accepted by JWTMiddleware configured with
// the same key. It backs the token command for local and test environments.
func SignToken(key []byte, req TokenRequest) (string, error) {
	if len(key) == 0 {
		return "", fmt.Errorf("signing key is required")
	}
	if len(req.Roles) == 0 {
		return "", fmt.Errorf("at least one role is required")
	}
	ttl := req.TTL
	if ttl == 0 {
		ttl = 8 * time.Hour
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   req.Subject.String(),
			Issuer:    req.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		HospitalID: req.HospitalID,
		Roles:      req.Roles,
	}
	if req.Audience != "" {
		claims.Audience = jwt.ClaimStrings{req.Audience}
	}
	if req.DoctorID != nil {
		claims.DoctorID = req.DoctorID.String()
	}
	if req.DepartmentID != nil {
		claims.DepartmentID = req.DepartmentID.String()
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

const (
	RoleAdmin      = "admin"
	RoleDoctor     = "doctor"
	RoleNurse      = "nurse"
	RolePharmacist = "pharmacist"
	RoleCashier    = "cashier"
)

// Caller identifies the staff member performing an operation. Services take
// it as an explicit argument instead of reading ambient state.
type Caller struct {
	UserID       uuid.UUID
	Roles        []string
	DoctorID     *uuid.UUID
	DepartmentID *uuid.UUID
}

func (c Caller) IsAdmin() bool {
	for _, r := range c.Roles {
		if r == RoleAdmin {
			return true
		}
	}
	return false
}

// HasRole reports whether the caller holds role. Admins hold every role.
func (c Caller) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role || r == RoleAdmin {
			return true
		}
	}
	return false
}

// Role returns the first role for audit records.
func (c Caller) Role() string {
	if len(c.Roles) == 0 {
		return ""
	}
	return c.Roles[0]
}

// CallerFromContext builds a Caller from the values the auth middleware
// stored on ctx.
func CallerFromContext(ctx context.Context) (Caller, error) {
	uid, err := uuid.Parse(UserIDFromContext(ctx))
	if err != nil {
		return Caller{}, fmt.Errorf("invalid subject in token")
	}
	caller := Caller{UserID: uid, Roles: RolesFromContext(ctx)}

	if s, _ := ctx.Value(DoctorIDKey).(string); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return Caller{}, fmt.Errorf("invalid doctor_id in token")
		}
		caller.DoctorID = &id
	}
	if s, _ := ctx.Value(DepartmentIDKey).(string); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return Caller{}, fmt.Errorf("invalid department_id in token")
		}
		caller.DepartmentID = &id
	}
	return caller, nil
}

// ContextWithCaller stores caller on ctx the same way the auth middleware
// does.
func ContextWithCaller(ctx context.Context, caller Caller) context.Context {
	claims := &Claims{Roles: caller.Roles}
	claims.Subject = caller.UserID.String()
	if caller.DoctorID != nil {
		claims.DoctorID = caller.DoctorID.String()
	}
	if caller.DepartmentID != nil {
		claims.DepartmentID = caller.DepartmentID.String()
	}
	return withClaims(ctx, claims)
}

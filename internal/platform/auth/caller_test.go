package auth

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestCallerRoundTrip(t *testing.T) {
	doctorID := uuid.New()
	in := Caller{UserID: uuid.New(), Roles: []string{RoleDoctor}, DoctorID: &doctorID}

	out, err := CallerFromContext(ContextWithCaller(context.Background(), in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.UserID != in.UserID {
		t.Errorf("expected user %s, got %s", in.UserID, out.UserID)
	}
	if out.DoctorID == nil || *out.DoctorID != doctorID {
		t.Errorf("expected doctor id %s, got %v", doctorID, out.DoctorID)
	}
	if out.DepartmentID != nil {
		t.Errorf("expected no department, got %v", out.DepartmentID)
	}
}

func TestCaller_HasRole(t *testing.T) {
	tests := []struct {
		roles []string
		role  string
		want  bool
	}{
		{[]string{RoleDoctor}, RoleDoctor, true},
		{[]string{RoleDoctor}, RolePharmacist, false},
		{[]string{RoleAdmin}, RoleCashier, true},
		{nil, RoleNurse, false},
	}
	for _, tt := range tests {
		c := Caller{Roles: tt.roles}
		if got := c.HasRole(tt.role); got != tt.want {
			t.Errorf("HasRole(%v, %s) = %v, want %v", tt.roles, tt.role, got, tt.want)
		}
	}
	if (Caller{}).Role() != "" {
		t.Error("expected empty role")
	}
}

package staff

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/his/his/internal/platform/apperr"
)

// -- Mock Repositories --

type mockDepartmentRepo struct {
	records map[uuid.UUID]*Department
}

func newMockDepartmentRepo() *mockDepartmentRepo {
	return &mockDepartmentRepo{records: make(map[uuid.UUID]*Department)}
}

func (m *mockDepartmentRepo) Create(_ context.Context, d *Department) error {
	for _, existing := range m.records {
		if existing.Code == d.Code {
			return apperr.Validation("department already exists")
		}
	}
	d.ID = uuid.New()
	m.records[d.ID] = d
	return nil
}

func (m *mockDepartmentRepo) GetByID(_ context.Context, id uuid.UUID) (*Department, error) {
	d, ok := m.records[id]
	if !ok {
		return nil, apperr.NotFound("department", id)
	}
	return d, nil
}

func (m *mockDepartmentRepo) List(_ context.Context, activeOnly bool) ([]*Department, error) {
	var result []*Department
	for _, d := range m.records {
		if activeOnly && !d.IsActive {
			continue
		}
		result = append(result, d)
	}
	return result, nil
}

type mockDoctorRepo struct {
	records map[uuid.UUID]*Doctor
}

func newMockDoctorRepo() *mockDoctorRepo {
	return &mockDoctorRepo{records: make(map[uuid.UUID]*Doctor)}
}

func (m *mockDoctorRepo) Create(_ context.Context, d *Doctor) error {
	d.ID = uuid.New()
	m.records[d.ID] = d
	return nil
}

func (m *mockDoctorRepo) GetByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	d, ok := m.records[id]
	if !ok {
		return nil, apperr.NotFound("doctor", id)
	}
	return d, nil
}

func (m *mockDoctorRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*Doctor, error) {
	for _, d := range m.records {
		if d.UserID != nil && *d.UserID == userID {
			return d, nil
		}
	}
	return nil, apperr.NotFound("doctor", userID)
}

func (m *mockDoctorRepo) ListByDepartment(_ context.Context, departmentID uuid.UUID, activeOnly bool) ([]*Doctor, error) {
	var result []*Doctor
	for _, d := range m.records {
		if d.DepartmentID != departmentID || (activeOnly && !d.IsActive) {
			continue
		}
		result = append(result, d)
	}
	return result, nil
}

func newTestService() *Service {
	return NewService(newMockDepartmentRepo(), newMockDoctorRepo())
}

func mustDepartment(t *testing.T, s *Service) *Department {
	t.Helper()
	d := &Department{Code: "IM", Name: "Internal Medicine"}
	if err := s.CreateDepartment(context.Background(), d); err != nil {
		t.Fatalf("create department: %v", err)
	}
	return d
}

// -- Department Tests --

func TestCreateDepartment(t *testing.T) {
	s := newTestService()
	d := mustDepartment(t, s)
	if d.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if !d.IsActive {
		t.Error("new departments should be active")
	}
}

func TestCreateDepartment_Validation(t *testing.T) {
	s := newTestService()
	for _, d := range []*Department{{Name: "No code"}, {Code: "X", Name: "  "}} {
		err := s.CreateDepartment(context.Background(), d)
		if !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("expected validation error for %+v, got %v", d, err)
		}
	}
}

// -- Doctor Tests --

func TestCreateDoctor(t *testing.T) {
	s := newTestService()
	dept := mustDepartment(t, s)

	d := &Doctor{Name: "Dr. Li", DepartmentID: dept.ID, RegistrationFee: decimal.RequireFromString("15.005")}
	if err := s.CreateDoctor(context.Background(), d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.RegistrationFee.Equal(decimal.RequireFromString("15.01")) {
		t.Errorf("expected fee rounded to cents, got %s", d.RegistrationFee)
	}

	got, err := s.ListDoctorsByDepartment(context.Background(), dept.ID, true)
	if err != nil || len(got) != 1 {
		t.Fatalf("expected 1 doctor, got %d (%v)", len(got), err)
	}
}

func TestCreateDoctor_Validation(t *testing.T) {
	s := newTestService()
	dept := mustDepartment(t, s)
	inactive := &Department{Code: "OLD", Name: "Closed"}
	s.CreateDepartment(context.Background(), inactive)
	inactive.IsActive = false

	tests := []struct {
		name string
		doc  *Doctor
	}{
		{"missing name", &Doctor{DepartmentID: dept.ID}},
		{"missing department", &Doctor{Name: "Dr. A"}},
		{"unknown department", &Doctor{Name: "Dr. A", DepartmentID: uuid.New()}},
		{"inactive department", &Doctor{Name: "Dr. A", DepartmentID: inactive.ID}},
		{"negative fee", &Doctor{Name: "Dr. A", DepartmentID: dept.ID, RegistrationFee: decimal.NewFromInt(-1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.CreateDoctor(context.Background(), tt.doc)
			if !apperr.Is(err, apperr.KindValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestGetDoctorByUserID(t *testing.T) {
	s := newTestService()
	dept := mustDepartment(t, s)
	userID := uuid.New()
	d := &Doctor{Name: "Dr. Wang", DepartmentID: dept.ID, UserID: &userID}
	s.CreateDoctor(context.Background(), d)

	got, err := s.GetDoctorByUserID(context.Background(), userID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != d.ID {
		t.Errorf("expected doctor %s, got %s", d.ID, got.ID)
	}

	_, err = s.GetDoctorByUserID(context.Background(), uuid.New())
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

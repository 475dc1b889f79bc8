package staff

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/his/his/internal/platform/apperr"
)

type Service struct {
	departments DepartmentRepository
	doctors     DoctorRepository
}

func NewService(departments DepartmentRepository, doctors DoctorRepository) *Service {
	return &Service{departments: departments, doctors: doctors}
}

// -- Department --

func (s *Service) CreateDepartment(ctx context.Context, d *Department) error {
	d.Code = strings.TrimSpace(d.Code)
	d.Name = strings.TrimSpace(d.Name)
	if d.Code == "" {
		return apperr.Validation("department code is required")
	}
	if d.Name == "" {
		return apperr.Validation("department name is required")
	}
	d.IsActive = true
	return s.departments.Create(ctx, d)
}

func (s *Service) GetDepartment(ctx context.Context, id uuid.UUID) (*Department, error) {
	return s.departments.GetByID(ctx, id)
}

func (s *Service) ListDepartments(ctx context.Context, activeOnly bool) ([]*Department, error) {
	return s.departments.List(ctx, activeOnly)
}

// -- Doctor --

func (s *Service) CreateDoctor(ctx context.Context, d *Doctor) error {
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		return apperr.Validation("doctor name is required")
	}
	if d.DepartmentID == uuid.Nil {
		return apperr.Validation("department_id is required")
	}
	if d.RegistrationFee.IsNegative() {
		return apperr.Validation("registration fee must not be negative")
	}
	dept, err := s.departments.GetByID(ctx, d.DepartmentID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return apperr.Validation("department does not exist")
		}
		return err
	}
	if !dept.IsActive {
		return apperr.Validation("department %s is inactive", dept.Code)
	}
	d.RegistrationFee = d.RegistrationFee.Round(2)
	d.IsActive = true
	return s.doctors.Create(ctx, d)
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

func (s *Service) GetDoctorByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	return s.doctors.GetByUserID(ctx, userID)
}

func (s *Service) ListDoctorsByDepartment(ctx context.Context, departmentID uuid.UUID, activeOnly bool) ([]*Doctor, error) {
	return s.doctors.ListByDepartment(ctx, departmentID, activeOnly)
}

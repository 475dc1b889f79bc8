package nursing

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/his/his/internal/domain/patient"
	"github.com/his/his/internal/domain/registration"
	"github.com/his/his/internal/platform/apperr"
	"github.com/his/his/internal/platform/auth"
	"github.com/his/his/internal/platform/clock"
	"github.com/his/his/internal/platform/db"
)

type PatientDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
	FindByIDCard(ctx context.Context, idCard string) (*patient.Patient, error)
	Create(ctx context.Context, p *patient.Patient) error
}

type Registrar interface {
	Register(ctx context.Context, caller auth.Caller, req registration.RegisterRequest) (*registration.Registration, error)
	Cancel(ctx context.Context, caller auth.Caller, id uuid.UUID, reason string) (*registration.Registration, error)
	DepartmentQueue(ctx context.Context, departmentID uuid.UUID, day time.Time) ([]*registration.QueueEntry, error)
}

// Service is the nurse station front desk: it finds or enrols the patient
// and books the visit.
type Service struct {
	patients  PatientDirectory
	registrar Registrar
	tx        db.Transactor
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(patients PatientDirectory, registrar Registrar, tx db.Transactor) *Service {
	return &Service{patients: patients, registrar: registrar, tx: tx, logger: zerolog.Nop(), now: time.Now}
}

func (s *Service) SetLogger(l zerolog.Logger) { s.logger = l }

// CheckIn resolves the patient, creating one for a new walk-in, and
// registers the visit in the same transaction.
func (s *Service) CheckIn(ctx context.Context, caller auth.Caller, req CheckInRequest) (*CheckInResult, error) {
	if req.DoctorID == uuid.Nil {
		return nil, apperr.Validation("doctor_id is required")
	}
	if req.PatientID == uuid.Nil && req.Patient == nil {
		return nil, apperr.Validation("patient_id or patient details are required")
	}

	res := &CheckInResult{}
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		p, created, err := s.resolvePatient(ctx, req)
		if err != nil {
			return err
		}
		res.Patient, res.NewPatient = p, created

		reg, err := s.registrar.Register(ctx, caller, registration.RegisterRequest{
			PatientID: p.ID,
			DoctorID:  req.DoctorID,
			VisitDate: req.VisitDate,
		})
		if err != nil {
			return err
		}
		res.Registration = reg
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("patient_no", res.Patient.PatientNo).
		Bool("new_patient", res.NewPatient).
		Str("reg_no", res.Registration.RegNo).
		Int("queue_no", res.Registration.QueueNo).
		Msg("patient checked in")
	return res, nil
}

func (s *Service) resolvePatient(ctx context.Context, req CheckInRequest) (*patient.Patient, bool, error) {
	if req.PatientID != uuid.Nil {
		p, err := s.patients.Get(ctx, req.PatientID)
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, false, apperr.Validation("patient does not exist")
		}
		return p, false, err
	}

	walkIn := *req.Patient
	if walkIn.IDCard != nil && strings.TrimSpace(*walkIn.IDCard) != "" {
		p, err := s.patients.FindByIDCard(ctx, *walkIn.IDCard)
		if err == nil {
			return p, false, nil
		}
		if !apperr.Is(err, apperr.KindNotFound) {
			return nil, false, err
		}
	}
	walkIn.ID = uuid.Nil
	if err := s.patients.Create(ctx, &walkIn); err != nil {
		return nil, false, err
	}
	return &walkIn, true, nil
}

// CancelCheckIn withdraws a registration that has not been paid.
func (s *Service) CancelCheckIn(ctx context.Context, caller auth.Caller, registrationID uuid.UUID, reason string) (*registration.Registration, error) {
	return s.registrar.Cancel(ctx, caller, registrationID, reason)
}

// DepartmentQueue groups a department's open registrations for a day by
// doctor, keeping queue order within each doctor.
func (s *Service) DepartmentQueue(ctx context.Context, departmentID uuid.UUID, day string) ([]*DoctorQueue, error) {
	if departmentID == uuid.Nil {
		return nil, apperr.Validation("department_id is required")
	}
	d, err := clock.ParseDay(day, s.now())
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	entries, err := s.registrar.DepartmentQueue(ctx, departmentID, d)
	if err != nil {
		return nil, err
	}

	groups := []*DoctorQueue{}
	byDoctor := make(map[uuid.UUID]*DoctorQueue)
	for _, e := range entries {
		g, ok := byDoctor[e.DoctorID]
		if !ok {
			g = &DoctorQueue{DoctorID: e.DoctorID, DoctorName: e.DoctorName}
			byDoctor[e.DoctorID] = g
			groups = append(groups, g)
		}
		g.Entries = append(g.Entries, e)
		if e.Status == registration.StatusWaiting || e.Status == registration.StatusPaidRegistration {
			g.Waiting++
		}
	}
	return groups, nil
}

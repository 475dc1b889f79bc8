package nursing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/his/his/internal/domain/patient"
	"github.com/his/his/internal/domain/registration"
	"github.com/his/his/internal/platform/apperr"
	"github.com/his/his/internal/platform/auth"
	"github.com/his/his/internal/platform/db"
)

type mockPatients struct {
	byID map[uuid.UUID]*patient.Patient
}

func (m *mockPatients) Get(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, apperr.NotFound("patient", id)
	}
	return p, nil
}

func (m *mockPatients) FindByIDCard(_ context.Context, idCard string) (*patient.Patient, error) {
	for _, p := range m.byID {
		if p.IDCard != nil && *p.IDCard == idCard {
			return p, nil
		}
	}
	return nil, apperr.NotFound("patient", idCard)
}

func (m *mockPatients) Create(_ context.Context, p *patient.Patient) error {
	if p.Name == "" {
		return apperr.Validation("patient name is required")
	}
	p.ID = uuid.New()
	p.PatientNo = "P202403020001"
	m.byID[p.ID] = p
	return nil
}

type mockRegistrar struct {
	registered []registration.RegisterRequest
	cancelled  []uuid.UUID
	queue      []*registration.QueueEntry
	fail       error
}

func (m *mockRegistrar) Register(_ context.Context, _ auth.Caller, req registration.RegisterRequest) (*registration.Registration, error) {
	if m.fail != nil {
		return nil, m.fail
	}
	m.registered = append(m.registered, req)
	return &registration.Registration{
		ID: uuid.New(), RegNo: "REG202403020001", PatientID: req.PatientID, DoctorID: req.DoctorID,
		QueueNo: len(m.registered), Status: registration.StatusWaiting,
	}, nil
}

func (m *mockRegistrar) Cancel(_ context.Context, _ auth.Caller, id uuid.UUID, _ string) (*registration.Registration, error) {
	m.cancelled = append(m.cancelled, id)
	return &registration.Registration{ID: id, Status: registration.StatusCancelled}, nil
}

func (m *mockRegistrar) DepartmentQueue(_ context.Context, _ uuid.UUID, _ time.Time) ([]*registration.QueueEntry, error) {
	return m.queue, nil
}

var nurse = auth.Caller{UserID: uuid.New(), Roles: []string{auth.RoleNurse}}

func newTestService() (*Service, *mockPatients, *mockRegistrar) {
	patients := &mockPatients{byID: map[uuid.UUID]*patient.Patient{}}
	registrar := &mockRegistrar{}
	svc := NewService(patients, registrar, db.Passthrough)
	svc.now = func() time.Time { return time.Date(2024, 3, 2, 8, 0, 0, 0, time.Local) }
	return svc, patients, registrar
}

func strPtr(s string) *string { return &s }

func TestCheckIn_NewWalkIn(t *testing.T) {
	svc, patients, registrar := newTestService()
	doctorID := uuid.New()

	res, err := svc.CheckIn(context.Background(), nurse, CheckInRequest{
		Patient:  &patient.Patient{Name: "Li Wei", IDCard: strPtr("110101199003071234")},
		DoctorID: doctorID,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.NewPatient || len(patients.byID) != 1 {
		t.Error("expected a new patient to be created")
	}
	if res.Registration.QueueNo != 1 || registrar.registered[0].PatientID != res.Patient.ID {
		t.Errorf("unexpected registration %+v", res.Registration)
	}
}

func TestCheckIn_MatchesIDCard(t *testing.T) {
	svc, patients, _ := newTestService()
	existing := &patient.Patient{ID: uuid.New(), Name: "Li Wei", IDCard: strPtr("110101199003071234")}
	patients.byID[existing.ID] = existing

	res, err := svc.CheckIn(context.Background(), nurse, CheckInRequest{
		Patient:  &patient.Patient{Name: "Li W.", IDCard: strPtr("110101199003071234")},
		DoctorID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.NewPatient || res.Patient.ID != existing.ID {
		t.Error("expected the patient on file to be reused")
	}
}

func TestCheckIn_Rejects(t *testing.T) {
	svc, _, registrar := newTestService()
	ctx := context.Background()

	if _, err := svc.CheckIn(ctx, nurse, CheckInRequest{Patient: &patient.Patient{Name: "X"}}); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error without doctor, got %v", err)
	}
	if _, err := svc.CheckIn(ctx, nurse, CheckInRequest{DoctorID: uuid.New()}); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error without patient, got %v", err)
	}
	if _, err := svc.CheckIn(ctx, nurse, CheckInRequest{PatientID: uuid.New(), DoctorID: uuid.New()}); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error for unknown patient, got %v", err)
	}

	registrar.fail = apperr.Validation("patient is already registered with this doctor")
	if _, err := svc.CheckIn(ctx, nurse, CheckInRequest{Patient: &patient.Patient{Name: "Zhang San"}, DoctorID: uuid.New()}); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected registration error to surface, got %v", err)
	}
}

func TestCancelCheckIn(t *testing.T) {
	svc, _, registrar := newTestService()
	id := uuid.New()
	reg, err := svc.CancelCheckIn(context.Background(), nurse, id, "left")
	if err != nil || reg.Status != registration.StatusCancelled {
		t.Fatalf("unexpected result %+v, %v", reg, err)
	}
	if len(registrar.cancelled) != 1 || registrar.cancelled[0] != id {
		t.Error("expected cancellation to be delegated")
	}
}

func TestDepartmentQueue_GroupsByDoctor(t *testing.T) {
	svc, _, registrar := newTestService()
	a, b := uuid.New(), uuid.New()
	entry := func(doctor uuid.UUID, name string, queue int, status registration.Status) *registration.QueueEntry {
		return &registration.QueueEntry{
			Registration: registration.Registration{ID: uuid.New(), DoctorID: doctor, QueueNo: queue, Status: status},
			DoctorName:   name,
		}
	}
	registrar.queue = []*registration.QueueEntry{
		entry(a, "Dr. Wang", 1, registration.StatusWaiting),
		entry(a, "Dr. Wang", 2, registration.StatusPaidRegistration),
		entry(b, "Dr. Chen", 1, registration.StatusWaiting),
	}

	groups, err := svc.DepartmentQueue(context.Background(), uuid.New(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(groups) != 2 || groups[0].DoctorID != a || groups[0].Waiting != 2 || groups[1].Waiting != 1 {
		t.Errorf("unexpected grouping %+v", groups)
	}
	if groups[0].Entries[1].QueueNo != 2 {
		t.Error("queue order must be kept")
	}

	if _, err := svc.DepartmentQueue(context.Background(), uuid.Nil, ""); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error without department, got %v", err)
	}
}

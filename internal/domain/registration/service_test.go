package registration

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/his/his/internal/domain/patient"
	"github.com/his/his/internal/domain/staff"
	"github.com/his/his/internal/platform/apperr"
	"github.com/his/his/internal/platform/auth"
	"github.com/his/his/internal/platform/clock"
	"github.com/his/his/internal/platform/db"
	"github.com/his/his/internal/platform/serial"
)

// -- Mocks --

type mockRegistrationRepo struct {
	records map[uuid.UUID]*Registration
}

func newMockRegistrationRepo() *mockRegistrationRepo {
	return &mockRegistrationRepo{records: make(map[uuid.UUID]*Registration)}
}

func (m *mockRegistrationRepo) Create(_ context.Context, r *Registration) error {
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	m.records[r.ID] = r
	return nil
}

func (m *mockRegistrationRepo) GetByID(_ context.Context, id uuid.UUID) (*Registration, error) {
	r, ok := m.records[id]
	if !ok {
		return nil, apperr.NotFound("registration", id)
	}
	cp := *r
	return &cp, nil
}

func (m *mockRegistrationRepo) GetByRegNo(_ context.Context, regNo string) (*Registration, error) {
	for _, r := range m.records {
		if r.RegNo == regNo {
			cp := *r
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("registration", regNo)
}

func (m *mockRegistrationRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Registration, error) {
	return m.GetByID(ctx, id)
}

func (m *mockRegistrationRepo) UpdateStatus(_ context.Context, id uuid.UUID, status Status, reason *string) error {
	r, ok := m.records[id]
	if !ok {
		return apperr.NotFound("registration", id)
	}
	r.Status = status
	if reason != nil {
		r.CancelReason = reason
	}
	return nil
}

func (m *mockRegistrationRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Registration, int, error) {
	var result []*Registration
	for _, r := range m.records {
		if r.PatientID == patientID {
			result = append(result, r)
		}
	}
	return result, len(result), nil
}

func (m *mockRegistrationRepo) HasActive(_ context.Context, patientID, doctorID uuid.UUID, day time.Time) (bool, error) {
	for _, r := range m.records {
		if r.PatientID == patientID && r.DoctorID == doctorID && r.VisitDate.Equal(day) && r.Status.Active() {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRegistrationRepo) queue(match func(*Registration) bool, day time.Time) []*QueueEntry {
	var result []*QueueEntry
	for _, r := range m.records {
		if match(r) && r.VisitDate.Equal(day) && r.Status.Active() {
			result = append(result, &QueueEntry{Registration: *r})
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].QueueNo < result[j].QueueNo })
	return result
}

func (m *mockRegistrationRepo) DoctorQueue(_ context.Context, doctorID uuid.UUID, day time.Time) ([]*QueueEntry, error) {
	return m.queue(func(r *Registration) bool { return r.DoctorID == doctorID }, day), nil
}

func (m *mockRegistrationRepo) DepartmentQueue(_ context.Context, departmentID uuid.UUID, day time.Time) ([]*QueueEntry, error) {
	return m.queue(func(r *Registration) bool { return r.DepartmentID == departmentID }, day), nil
}

type mockDoctors map[uuid.UUID]*staff.Doctor

func (m mockDoctors) GetDoctor(_ context.Context, id uuid.UUID) (*staff.Doctor, error) {
	d, ok := m[id]
	if !ok {
		return nil, apperr.NotFound("doctor", id)
	}
	return d, nil
}

type mockPatients map[uuid.UUID]*patient.Patient

func (m mockPatients) Get(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	p, ok := m[id]
	if !ok {
		return nil, apperr.NotFound("patient", id)
	}
	return p, nil
}

type fixture struct {
	svc     *Service
	repo    *mockRegistrationRepo
	doctor  *staff.Doctor
	patient *patient.Patient
	today   time.Time
}

var nurse = auth.Caller{UserID: uuid.New(), Roles: []string{auth.RoleNurse}}

func newFixture() *fixture {
	doc := &staff.Doctor{ID: uuid.New(), Name: "Dr. Li", DepartmentID: uuid.New(), RegistrationFee: decimal.RequireFromString("15.00"), IsActive: true}
	pat := &patient.Patient{ID: uuid.New(), Name: "Zhang San", PatientNo: "P202403020001"}
	repo := newMockRegistrationRepo()
	svc := NewService(repo, mockDoctors{doc.ID: doc}, mockPatients{pat.ID: pat}, serial.NewMemory(), db.Passthrough)
	now := time.Date(2024, 3, 2, 9, 30, 0, 0, clock.Location())
	svc.now = func() time.Time { return now }
	return &fixture{svc: svc, repo: repo, doctor: doc, patient: pat, today: clock.StartOfDay(now)}
}

func (f *fixture) register(t *testing.T) *Registration {
	t.Helper()
	reg, err := f.svc.Register(context.Background(), nurse, RegisterRequest{PatientID: f.patient.ID, DoctorID: f.doctor.ID})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return reg
}

func (f *fixture) doctorCaller() auth.Caller {
	id := f.doctor.ID
	return auth.Caller{UserID: uuid.New(), Roles: []string{auth.RoleDoctor}, DoctorID: &id}
}

// -- Register --

func TestRegister(t *testing.T) {
	f := newFixture()
	reg := f.register(t)

	if reg.RegNo != "REG202403020001" {
		t.Errorf("unexpected reg_no %s", reg.RegNo)
	}
	if reg.QueueNo != 1 || reg.Status != StatusWaiting {
		t.Errorf("unexpected queue/status %d/%s", reg.QueueNo, reg.Status)
	}
	if !reg.RegistrationFee.Equal(f.doctor.RegistrationFee) || reg.DepartmentID != f.doctor.DepartmentID {
		t.Error("fee and department must come from the doctor")
	}
	if !reg.VisitDate.Equal(f.today) {
		t.Errorf("expected visit date today, got %s", reg.VisitDate)
	}
}

func TestRegister_QueuePerDoctor(t *testing.T) {
	f := newFixture()
	f.register(t)

	other := &patient.Patient{ID: uuid.New(), Name: "Li Si"}
	f.svc.patients.(mockPatients)[other.ID] = other
	reg, err := f.svc.Register(context.Background(), nurse, RegisterRequest{PatientID: other.ID, DoctorID: f.doctor.ID})
	if err != nil {
		t.Fatal(err)
	}
	if reg.QueueNo != 2 {
		t.Errorf("expected queue number 2, got %d", reg.QueueNo)
	}
}

func TestRegister_Rejects(t *testing.T) {
	f := newFixture()
	inactive := &staff.Doctor{ID: uuid.New(), Name: "Dr. Gone", DepartmentID: uuid.New()}
	f.svc.doctors.(mockDoctors)[inactive.ID] = inactive

	tests := []struct {
		name string
		req  RegisterRequest
	}{
		{"unknown patient", RegisterRequest{PatientID: uuid.New(), DoctorID: f.doctor.ID}},
		{"unknown doctor", RegisterRequest{PatientID: f.patient.ID, DoctorID: uuid.New()}},
		{"inactive doctor", RegisterRequest{PatientID: f.patient.ID, DoctorID: inactive.ID}},
		{"past date", RegisterRequest{PatientID: f.patient.ID, DoctorID: f.doctor.ID, VisitDate: "2024-03-01"}},
		{"bad date", RegisterRequest{PatientID: f.patient.ID, DoctorID: f.doctor.ID, VisitDate: "03/05/2024"}},
		{"missing ids", RegisterRequest{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Register(context.Background(), nurse, tt.req); !apperr.Is(err, apperr.KindValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
	if len(f.repo.records) != 0 {
		t.Errorf("no registration should be created, got %d", len(f.repo.records))
	}
}

func TestRegister_DuplicateCheckIn(t *testing.T) {
	f := newFixture()
	f.register(t)
	_, err := f.svc.Register(context.Background(), nurse, RegisterRequest{PatientID: f.patient.ID, DoctorID: f.doctor.ID})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for duplicate check-in, got %v", err)
	}

	// a future day is a separate visit
	if _, err := f.svc.Register(context.Background(), nurse, RegisterRequest{PatientID: f.patient.ID, DoctorID: f.doctor.ID, VisitDate: "2024-03-03"}); err != nil {
		t.Errorf("unexpected error for next-day registration: %v", err)
	}
}

// -- Transitions --

func TestComplete(t *testing.T) {
	f := newFixture()
	reg := f.register(t)

	if _, err := f.svc.Complete(context.Background(), nurse, reg.ID); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("expected forbidden for non-doctor, got %v", err)
	}

	got, err := f.svc.Complete(context.Background(), f.doctorCaller(), reg.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("expected COMPLETED, got %s", got.Status)
	}
	if _, err := f.svc.Complete(context.Background(), f.doctorCaller(), reg.ID); !apperr.Is(err, apperr.KindState) {
		t.Errorf("expected state error on second completion, got %v", err)
	}
}

func TestCancel(t *testing.T) {
	f := newFixture()
	reg := f.register(t)

	got, err := f.svc.Cancel(context.Background(), nurse, reg.ID, "patient left")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusCancelled || got.CancelReason == nil || *got.CancelReason != "patient left" {
		t.Errorf("unexpected registration %+v", got)
	}
	if _, err := f.svc.Cancel(context.Background(), nurse, reg.ID, ""); !apperr.Is(err, apperr.KindState) {
		t.Errorf("cancelled registrations must not be re-entered, got %v", err)
	}
}

func TestCancel_PaidRegistrationNeedsRefund(t *testing.T) {
	f := newFixture()
	reg := f.register(t)
	if err := f.svc.MarkFeePaid(context.Background(), reg.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Cancel(context.Background(), nurse, reg.ID, ""); !apperr.Is(err, apperr.KindState) {
		t.Errorf("expected state error, got %v", err)
	}
}

func TestMarkFeePaidAndRefunded(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	reg := f.register(t)

	if err := f.svc.MarkFeePaid(ctx, reg.ID); err != nil {
		t.Fatal(err)
	}
	if f.repo.records[reg.ID].Status != StatusPaidRegistration {
		t.Fatalf("expected PAID_REGISTRATION, got %s", f.repo.records[reg.ID].Status)
	}
	if err := f.svc.MarkFeePaid(ctx, reg.ID); err != nil {
		t.Errorf("marking twice should be a no-op, got %v", err)
	}
	if err := f.svc.MarkRefunded(ctx, reg.ID); err != nil {
		t.Fatal(err)
	}
	if f.repo.records[reg.ID].Status != StatusRefunded {
		t.Fatalf("expected REFUNDED, got %s", f.repo.records[reg.ID].Status)
	}
	if err := f.svc.MarkFeePaid(ctx, reg.ID); !apperr.Is(err, apperr.KindState) {
		t.Errorf("refunded registration must not take a payment, got %v", err)
	}
}

func TestMarkRefunded_CompletedVisitKeepsStatus(t *testing.T) {
	f := newFixture()
	reg := f.register(t)
	f.svc.Complete(context.Background(), f.doctorCaller(), reg.ID)

	if err := f.svc.MarkRefunded(context.Background(), reg.ID); err != nil {
		t.Fatal(err)
	}
	if f.repo.records[reg.ID].Status != StatusCompleted {
		t.Errorf("expected COMPLETED kept, got %s", f.repo.records[reg.ID].Status)
	}
}

// -- Queue --

func TestDoctorQueue(t *testing.T) {
	f := newFixture()
	reg := f.register(t)

	if _, err := f.svc.DoctorQueue(context.Background(), nurse, ""); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("expected forbidden for caller without doctor id, got %v", err)
	}
	items, err := f.svc.DoctorQueue(context.Background(), f.doctorCaller(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || items[0].ID != reg.ID {
		t.Fatalf("expected the registration in the queue, got %d entries", len(items))
	}

	f.svc.Complete(context.Background(), f.doctorCaller(), reg.ID)
	items, _ = f.svc.DoctorQueue(context.Background(), f.doctorCaller(), "2024-03-02")
	if len(items) != 0 {
		t.Errorf("completed visits should leave the queue, got %d", len(items))
	}
}

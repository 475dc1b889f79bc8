package patient

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/his/his/internal/platform/apperr"
	"github.com/his/his/internal/platform/serial"
)

type Service struct {
	patients Repository
	serials  serial.Generator
	now      func() time.Time
}

func NewService(patients Repository, serials serial.Generator) *Service {
	return &Service{patients: patients, serials: serials, now: time.Now}
}

// Create registers a new patient and assigns a patient number. An id card,
// when given, must not belong to another patient.
func (s *Service) Create(ctx context.Context, p *Patient) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return apperr.Validation("patient name is required")
	}
	if p.Gender != nil && !validGenders[*p.Gender] {
		return apperr.Validation("invalid gender: %s", *p.Gender)
	}
	if p.BirthDate != nil && p.BirthDate.After(s.now()) {
		return apperr.Validation("birth date is in the future")
	}
	if p.IDCard != nil {
		card := strings.ToUpper(strings.TrimSpace(*p.IDCard))
		if card == "" {
			p.IDCard = nil
		} else {
			p.IDCard = &card
			if _, err := s.patients.GetByIDCard(ctx, card); err == nil {
				return apperr.Validation("a patient with this id card already exists")
			} else if !apperr.Is(err, apperr.KindNotFound) {
				return err
			}
		}
	}

	no, err := serial.NextNumber(ctx, s.serials, serial.Patient, s.now())
	if err != nil {
		return apperr.System(err, "allocate patient number")
	}
	p.PatientNo = no
	return s.patients.Create(ctx, p)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) FindByIDCard(ctx context.Context, idCard string) (*Patient, error) {
	card := strings.ToUpper(strings.TrimSpace(idCard))
	if card == "" {
		return nil, apperr.Validation("id card is required")
	}
	return s.patients.GetByIDCard(ctx, card)
}

func (s *Service) Search(ctx context.Context, keyword string, limit, offset int) ([]*Patient, int, error) {
	return s.patients.Search(ctx, strings.TrimSpace(keyword), limit, offset)
}

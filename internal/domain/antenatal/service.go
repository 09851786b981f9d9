package antenatal

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// pageSize bounds each repository read made by AllPatients.
const pageSize = 100

// idPattern is the FHIR id grammar. Ids end up in export file names and
// Content-Disposition headers.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9\-.]{1,64}$`)

type Service struct {
	patients PatientRepository
}

func NewService(patients PatientRepository) *Service {
	return &Service{patients: patients}
}

// NewPatientID returns a short clinic id such as "P1a2b3c4d".
func NewPatientID() string {
	return "P" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidPatient, fmt.Sprintf(format, args...))
}

func validatePatient(p *PatientRecord) error {
	if p.ID != "" && !idPattern.MatchString(p.ID) {
		return invalid("id must match [A-Za-z0-9-.]{1,64}, got %q", p.ID)
	}
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return invalid("name is required")
	}
	if p.Age < 0 {
		return invalid("age must not be negative")
	}
	if p.GestationWeeks < 0 {
		return invalid("gestationWeeks must not be negative")
	}
	if p.ANCVisits < 0 {
		return invalid("ancVisits must not be negative")
	}

	if p.RiskLevel == "" {
		p.RiskLevel = RiskLow
	}
	risk, err := ParseRiskLevel(string(p.RiskLevel))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPatient, err)
	}
	p.RiskLevel = risk

	dates := []struct{ field, value string }{
		{"dueDate", p.DueDate},
		{"lastVisit", p.LastVisit},
	}
	for _, d := range dates {
		if d.value == "" {
			continue
		}
		if _, err := time.Parse(DateLayout, d.value); err != nil {
			return invalid("%s must be YYYY-MM-DD, got %q", d.field, d.value)
		}
	}
	return nil
}

func (s *Service) CreatePatient(ctx context.Context, p *PatientRecord) error {
	if err := validatePatient(p); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = NewPatientID()
	} else if _, err := s.patients.GetByID(ctx, p.ID); err == nil {
		return fmt.Errorf("%w: %s", ErrPatientExists, p.ID)
	} else if !errors.Is(err, ErrPatientNotFound) {
		return err
	}
	return s.patients.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id string) (*PatientRecord, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) UpdatePatient(ctx context.Context, p *PatientRecord) error {
	if p.ID == "" {
		return invalid("id is required")
	}
	if err := validatePatient(p); err != nil {
		return err
	}
	return s.patients.Update(ctx, p)
}

func (s *Service) DeletePatient(ctx context.Context, id string) error {
	return s.patients.Delete(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*PatientRecord, int, error) {
	return s.patients.List(ctx, limit, offset)
}

// AllPatients pages through the repository and returns every stored record
// in list order.
func (s *Service) AllPatients(ctx context.Context) ([]PatientRecord, error) {
	var all []PatientRecord
	for offset := 0; ; offset += pageSize {
		items, total, err := s.patients.List(ctx, pageSize, offset)
		if err != nil {
			return nil, err
		}
		for _, p := range items {
			all = append(all, *p)
		}
		if len(items) == 0 || offset+len(items) >= total {
			break
		}
	}
	if all == nil {
		all = []PatientRecord{}
	}
	return all, nil
}

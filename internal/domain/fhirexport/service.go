package fhirexport

import (
	"context"

	"github.com/ehr/ancexport/internal/domain/antenatal"
	"github.com/ehr/ancexport/internal/platform/fhir"
)

// PatientSource supplies stored records. *antenatal.Service implements it.
type PatientSource interface {
	GetPatient(ctx context.Context, id string) (*antenatal.PatientRecord, error)
	AllPatients(ctx context.Context) ([]antenatal.PatientRecord, error)
}

// Service loads records and maps them for export.
type Service struct {
	source  PatientSource
	metrics *Metrics
}

func NewService(source PatientSource, metrics *Metrics) *Service {
	return &Service{source: source, metrics: metrics}
}

func (s *Service) Patient(ctx context.Context, id string) (*fhir.Patient, error) {
	rec, err := s.source.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveMapped(1)
	return MapPatient(*rec), nil
}

func (s *Service) Patients(ctx context.Context) ([]*fhir.Patient, error) {
	recs, err := s.source.AllPatients(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveMapped(len(recs))
	return MapPatients(recs), nil
}

func (s *Service) Bundle(ctx context.Context) (*fhir.Bundle, error) {
	recs, err := s.source.AllPatients(ctx)
	if err != nil {
		return nil, err
	}
	bundle, err := BuildBundle(recs)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveMapped(len(recs))
	return bundle, nil
}

// ExportPatient emits one stored patient as patient-<id>-fhir.json and
// returns the file name used.
func (s *Service) ExportPatient(ctx context.Context, em *Emitter, id string) (string, error) {
	p, err := s.Patient(ctx, id)
	if err != nil {
		return "", err
	}
	name := PatientFilename(p.ID)
	return name, em.Emit(ctx, p, name)
}

// ExportBundle emits every stored patient as one collection Bundle.
func (s *Service) ExportBundle(ctx context.Context, em *Emitter, filename string) error {
	bundle, err := s.Bundle(ctx)
	if err != nil {
		return err
	}
	return em.Emit(ctx, bundle, filename)
}

// ExportNDJSON emits every stored patient, one per line.
func (s *Service) ExportNDJSON(ctx context.Context, em *Emitter, filename string) error {
	patients, err := s.Patients(ctx)
	if err != nil {
		return err
	}
	return em.EmitNDJSON(ctx, patients, filename)
}

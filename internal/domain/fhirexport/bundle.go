package fhirexport

import (
	"fmt"

	"github.com/ehr/ancexport/internal/domain/antenatal"
	"github.com/ehr/ancexport/internal/platform/fhir"
)

// Default names for multi-patient export files.
const (
	BundleFilename = "patients-bundle-fhir.json"
	NDJSONFilename = "Patient.ndjson"
)

// PatientFilename is the download name for a single patient document.
func PatientFilename(id string) string {
	return "patient-" + id + "-fhir.json"
}

// MapPatients maps each record in order.
func MapPatients(records []antenatal.PatientRecord) []*fhir.Patient {
	out := make([]*fhir.Patient, 0, len(records))
	for _, r := range records {
		out = append(out, MapPatient(r))
	}
	return out
}

// BuildBundle maps every record and wraps the results, in input order, in a
// collection Bundle. An empty input gives a Bundle with no entries. If any
// entry cannot be encoded the whole bundle is rejected.
func BuildBundle(records []antenatal.PatientRecord) (*fhir.Bundle, error) {
	patients := MapPatients(records)
	resources := make([]interface{}, len(patients))
	for i, p := range patients {
		resources[i] = p
	}

	bundle, err := fhir.NewCollectionBundle(resources)
	if err != nil {
		return nil, fmt.Errorf("build patient bundle: %w", err)
	}
	return bundle, nil
}

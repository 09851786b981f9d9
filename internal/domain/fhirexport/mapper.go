// Package fhirexport turns antenatal patient records into FHIR R4 Patient
// resources and collection Bundles, and writes them out as pretty-printed
// JSON files through pluggable sinks.
package fhirexport

import (
	"strings"

	"github.com/google/uuid"

	"github.com/ehr/ancexport/internal/domain/antenatal"
	"github.com/ehr/ancexport/internal/platform/fhir"
)

const (
	ProfileUSCorePatient = "http://hl7.org/fhir/us/core/StructureDefinition/us-core-patient"
	SystemMRN            = "http://example.org/fhir/NamingSystem/MRN"

	ExtGestationWeeks = "http://hl7.org/fhir/StructureDefinition/patient-gestationWeeks"
	ExtDueDate        = "http://hl7.org/fhir/StructureDefinition/patient-dueDate"
	ExtRiskLevel      = "http://hl7.org/fhir/StructureDefinition/patient-riskLevel"
	ExtBloodType      = "http://hl7.org/fhir/StructureDefinition/patient-bloodType"

	SystemObservationValue = "http://terminology.hl7.org/CodeSystem/v3-ObservationValue"
	SystemContactRole      = "http://terminology.hl7.org/CodeSystem/v2-0131"
)

// Prefixes for records that have not been persisted yet. Both share one
// placeholder token.
const (
	placeholderIDPrefix  = "temp-"
	placeholderMRNPrefix = "MRN-"
)

// Every exported patient is a pregnancy patient.
const patientGender = "female"

// newPlaceholderToken yields a process-unique, time-ordered token.
var newPlaceholderToken = func() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// MapPatient converts one record into a Patient resource. It never fails and
// does not modify the record. Output depends only on the record, except that
// a record without an id gets a freshly generated placeholder.
func MapPatient(r antenatal.PatientRecord) *fhir.Patient {
	resourceID, mrn := patientIdentity(r)

	p := &fhir.Patient{
		ResourceType: fhir.ResourceTypePatient,
		ID:           resourceID,
		Meta:         fhir.Meta{Profile: []string{ProfileUSCorePatient}},
		Identifier:   []fhir.Identifier{{System: SystemMRN, Value: mrn}},
		Active:       true,
		Name:         []fhir.HumanName{officialName(r.Name)},
		Telecom:      telecom(r),
		Gender:       patientGender,
		Address:      []fhir.Address{{Use: "home", Type: "physical", Text: r.Address}},
		Contact:      []fhir.PatientContact{},
		Extension:    extensions(r),
	}

	if ec, ok := r.EmergencyContactInfo(); ok {
		p.Contact = append(p.Contact, emergencyContact(ec))
	}
	return p
}

func patientIdentity(r antenatal.PatientRecord) (resourceID, mrn string) {
	if id, ok := r.Identifier(); ok {
		return id, id
	}
	token := newPlaceholderToken()
	return placeholderIDPrefix + token, placeholderMRNPrefix + token
}

// officialName splits on whitespace: the first token is the given name, any
// middle tokens follow it, and the last token is the family name only when
// there are at least two tokens.
func officialName(name string) fhir.HumanName {
	tokens := strings.Fields(name)
	hn := fhir.HumanName{Use: "official", Given: []string{}}
	switch len(tokens) {
	case 0:
	case 1:
		hn.Given = append(hn.Given, tokens[0])
	default:
		hn.Family = tokens[len(tokens)-1]
		hn.Given = append(hn.Given, tokens[:len(tokens)-1]...)
	}
	return hn
}

func telecom(r antenatal.PatientRecord) []fhir.ContactPoint {
	cps := []fhir.ContactPoint{{System: "phone", Value: r.Phone, Use: "mobile"}}
	if email, ok := r.EmailAddress(); ok {
		cps = append(cps, fhir.ContactPoint{System: "email", Value: email, Use: "home"})
	}
	return cps
}

func emergencyContact(ec antenatal.EmergencyContact) fhir.PatientContact {
	return fhir.PatientContact{
		Relationship: []fhir.CodeableConcept{{
			Coding: []fhir.Coding{{System: SystemContactRole, Code: "C", Display: "Emergency Contact"}},
		}},
		Name:    &fhir.ContactName{Use: "official", Text: ec.Name},
		Telecom: []fhir.ContactPoint{{System: "phone", Value: ec.Phone}},
	}
}

func extensions(r antenatal.PatientRecord) []fhir.Extension {
	weeks := r.GestationWeeks
	dueDate := r.DueDate

	exts := []fhir.Extension{
		{URL: ExtGestationWeeks, ValueInteger: &weeks},
		{URL: ExtDueDate, ValueDateTime: &dueDate},
		{URL: ExtRiskLevel, ValueCodeableConcept: &fhir.CodeableConcept{
			Coding: []fhir.Coding{{
				System:  SystemObservationValue,
				Code:    string(r.RiskLevel),
				Display: r.RiskLevel.Display(),
			}},
		}},
	}
	if bt, ok := r.BloodTypeValue(); ok {
		exts = append(exts, fhir.Extension{URL: ExtBloodType, ValueString: &bt})
	}
	return exts
}

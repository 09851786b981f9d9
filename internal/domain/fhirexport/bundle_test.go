package fhirexport

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/ehr/ancexport/internal/domain/antenatal"
	"github.com/ehr/ancexport/internal/platform/fhir"
)

func TestBuildBundle_Empty(t *testing.T) {
	for _, in := range [][]antenatal.PatientRecord{nil, {}} {
		b, err := BuildBundle(in)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		data, _ := json.Marshal(b)
		if string(data) != `{"resourceType":"Bundle","type":"collection","entry":[]}` {
			t.Errorf("unexpected JSON: %s", data)
		}
	}
}

func TestBuildBundle_SingleRecord(t *testing.T) {
	b, err := BuildBundle([]antenatal.PatientRecord{sarah()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.ResourceType != "Bundle" || b.Type != "collection" || len(b.Entry) != 1 {
		t.Errorf("unexpected bundle %+v", b)
	}
}

func TestBuildBundle_OrderAndContextFree(t *testing.T) {
	second := antenatal.PatientRecord{
		ID: "P002", Name: "Amina Bello", Phone: "+2348000000", Email: "amina@example.org",
		GestationWeeks: 30, RiskLevel: antenatal.RiskHigh, BloodType: "AB-",
		EmergencyContact: "Musa Bello", EmergencyPhone: "+2348111111",
	}
	records := []antenatal.PatientRecord{sarah(), second}

	b, err := BuildBundle(records)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(b.Entry) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(b.Entry))
	}
	for i, r := range records {
		var got fhir.Patient
		if err := b.DecodeEntry(i, &got); err != nil {
			t.Fatalf("decode entry %d: %v", i, err)
		}
		if want := MapPatient(r); !reflect.DeepEqual(want, &got) {
			t.Errorf("entry %d differs from standalone mapping:\n got %+v\nwant %+v", i, got, *want)
		}
	}
}

func TestBuildBundle_WireShape(t *testing.T) {
	b, _ := BuildBundle([]antenatal.PatientRecord{sarah()})
	data, _ := json.Marshal(b)

	var generic struct {
		ResourceType string `json:"resourceType"`
		Type         string `json:"type"`
		Entry        []struct {
			Resource map[string]interface{} `json:"resource"`
		} `json:"entry"`
	}
	if err := json.Unmarshal(data, &generic); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if generic.Entry[0].Resource["resourceType"] != "Patient" || generic.Entry[0].Resource["id"] != "P001" {
		t.Errorf("unexpected entry resource %v", generic.Entry[0].Resource)
	}
}

func TestPatientFilename(t *testing.T) {
	if got := PatientFilename("P001"); got != "patient-P001-fhir.json" {
		t.Errorf("unexpected filename %q", got)
	}
}

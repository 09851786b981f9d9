package fhir

// Resource type names produced by this service.
const (
	ResourceTypePatient = "Patient"
	ResourceTypeBundle  = "Bundle"
)

// ContentType is the media type for FHIR JSON payloads.
const ContentType = "application/fhir+json"

type Meta struct {
	Profile []string `json:"profile,omitempty"`
}

type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

type Identifier struct {
	System string `json:"system"`
	Value  string `json:"value"`
}

// HumanName is the structured official name. Family and Given are always
// serialized, even when empty, because consumers index into them directly.
type HumanName struct {
	Use    string   `json:"use,omitempty"`
	Family string   `json:"family"`
	Given  []string `json:"given"`
}

// ContactName is a free-text HumanName used for related parties.
type ContactName struct {
	Use  string `json:"use,omitempty"`
	Text string `json:"text"`
}

type Address struct {
	Use  string `json:"use,omitempty"`
	Type string `json:"type,omitempty"`
	Text string `json:"text"`
}

// ContactPoint carries a phone number or email. Value is kept even when
// empty so a record without a phone still yields a phone entry.
type ContactPoint struct {
	System string `json:"system"`
	Value  string `json:"value"`
	Use    string `json:"use,omitempty"`
}

// Extension holds exactly one value[x]. Pointer fields distinguish an
// absent value from a zero one.
type Extension struct {
	URL                  string           `json:"url"`
	ValueString          *string          `json:"valueString,omitempty"`
	ValueInteger         *int             `json:"valueInteger,omitempty"`
	ValueDateTime        *string          `json:"valueDateTime,omitempty"`
	ValueCodeableConcept *CodeableConcept `json:"valueCodeableConcept,omitempty"`
}

// PatientContact is a Patient.contact entry.
type PatientContact struct {
	Relationship []CodeableConcept `json:"relationship"`
	Name         *ContactName      `json:"name,omitempty"`
	Telecom      []ContactPoint    `json:"telecom"`
}

// Patient is the FHIR R4 Patient resource in the shape this service emits.
// Repeating elements are never omitted; an empty list serializes as [].
type Patient struct {
	ResourceType string           `json:"resourceType"`
	ID           string           `json:"id"`
	Meta         Meta             `json:"meta"`
	Identifier   []Identifier     `json:"identifier"`
	Active       bool             `json:"active"`
	Name         []HumanName      `json:"name"`
	Telecom      []ContactPoint   `json:"telecom"`
	Gender       string           `json:"gender"`
	BirthDate    string           `json:"birthDate,omitempty"`
	Address      []Address        `json:"address"`
	Contact      []PatientContact `json:"contact"`
	Extension    []Extension      `json:"extension"`
}

// FindExtension returns the first extension with the given URL.
func (p *Patient) FindExtension(url string) (*Extension, bool) {
	for i := range p.Extension {
		if p.Extension[i].URL == url {
			return &p.Extension[i], true
		}
	}
	return nil, false
}

// OperationOutcome represents a FHIR OperationOutcome for errors.
type OperationOutcome struct {
	ResourceType string                  `json:"resourceType"`
	Issue        []OperationOutcomeIssue `json:"issue"`
}

type OperationOutcomeIssue struct {
	Severity    string           `json:"severity"`
	Code        string           `json:"code"`
	Details     *CodeableConcept `json:"details,omitempty"`
	Diagnostics string           `json:"diagnostics,omitempty"`
	Expression  []string         `json:"expression,omitempty"`
}

func NewOperationOutcome(severity, code, diagnostics string) *OperationOutcome {
	return &OperationOutcome{
		ResourceType: "OperationOutcome",
		Issue: []OperationOutcomeIssue{
			{
				Severity:    severity,
				Code:        code,
				Diagnostics: diagnostics,
			},
		},
	}
}

func ErrorOutcome(diagnostics string) *OperationOutcome {
	return NewOperationOutcome(IssueSeverityError, IssueTypeProcessing, diagnostics)
}

func NotFoundOutcome(resourceType, id string) *OperationOutcome {
	return NewOperationOutcome(IssueSeverityError, IssueTypeNotFound, resourceType+"/"+id+" not found")
}

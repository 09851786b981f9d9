package antenatal

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

var (
	ErrPatientNotFound  = errors.New("patient not found")
	ErrPatientExists    = errors.New("patient already exists")
	ErrInvalidPatient   = errors.New("invalid patient record")
	ErrInvalidRiskLevel = errors.New("invalid risk level")
)

// RiskLevel is the clinical triage category assigned to a pregnancy.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// Display returns the level with its first letter upper-cased ("high" -> "High").
func (r RiskLevel) Display() string {
	s := string(r)
	first, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return ""
	}
	return string(unicode.ToUpper(first)) + s[size:]
}

// ParseRiskLevel accepts the lower-case enum values, ignoring surrounding
// whitespace and case.
func ParseRiskLevel(s string) (RiskLevel, error) {
	r := RiskLevel(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRiskLevel, s)
	}
	return r, nil
}

// DateLayout is the calendar date format used for due dates and visit dates.
const DateLayout = "2006-01-02"

// PatientRecord maps to the anc_patient table. JSON field names follow the
// clinic UI payload. Empty strings mean "not recorded".
type PatientRecord struct {
	ID               string    `db:"id" json:"id,omitempty"`
	Name             string    `db:"name" json:"name"`
	Age              int       `db:"age" json:"age"`
	Phone            string    `db:"phone" json:"phone"`
	Email            string    `db:"email" json:"email"`
	Address          string    `db:"address" json:"address"`
	BloodType        string    `db:"blood_type" json:"bloodType"`
	Allergies        string    `db:"allergies" json:"allergies"`
	MedicalHistory   string    `db:"medical_history" json:"medicalHistory"`
	EmergencyContact string    `db:"emergency_contact" json:"emergencyContact"`
	EmergencyPhone   string    `db:"emergency_phone" json:"emergencyPhone"`
	GestationWeeks   int       `db:"gestation_weeks" json:"gestationWeeks"`
	DueDate          string    `db:"due_date" json:"dueDate"`
	LastVisit        string    `db:"last_visit" json:"lastVisit"`
	RiskLevel        RiskLevel `db:"risk_level" json:"riskLevel"`
	ANCVisits        int       `db:"anc_visits" json:"ancVisits"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt,omitzero"`
	UpdatedAt        time.Time `db:"updated_at" json:"updatedAt,omitzero"`
}

// EmergencyContact is a named person reachable by phone.
type EmergencyContact struct {
	Name  string
	Phone string
}

// Identifier returns the record id, or false for a record that has not been
// persisted yet.
func (p PatientRecord) Identifier() (string, bool) {
	return p.ID, p.ID != ""
}

func (p PatientRecord) EmailAddress() (string, bool) {
	return p.Email, p.Email != ""
}

// EmergencyContactInfo is present only when both the contact name and phone
// are recorded.
func (p PatientRecord) EmergencyContactInfo() (EmergencyContact, bool) {
	if p.EmergencyContact == "" || p.EmergencyPhone == "" {
		return EmergencyContact{}, false
	}
	return EmergencyContact{Name: p.EmergencyContact, Phone: p.EmergencyPhone}, true
}

func (p PatientRecord) BloodTypeValue() (string, bool) {
	return p.BloodType, p.BloodType != ""
}

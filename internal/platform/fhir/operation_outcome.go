package fhir

import "fmt"

// OperationOutcome severity levels.
const (
	IssueSeverityFatal       = "fatal"
	IssueSeverityError       = "error"
	IssueSeverityWarning     = "warning"
	IssueSeverityInformation = "information"
)

// OperationOutcome issue type codes used by this service.
const (
	IssueTypeInvalid      = "invalid"
	IssueTypeRequired     = "required"
	IssueTypeValue        = "value"
	IssueTypeNotFound     = "not-found"
	IssueTypeProcessing   = "processing"
	IssueTypeNotSupported = "not-supported"
	IssueTypeException    = "exception"
)

// ValidationOutcome creates an OperationOutcome for a rejected input field.
func ValidationOutcome(field, message string) *OperationOutcome {
	oo := NewOperationOutcome(IssueSeverityError, IssueTypeInvalid, message)
	if field != "" {
		oo.Issue[0].Expression = []string{field}
	}
	return oo
}

// UnsupportedFormatOutcome is returned when a client asks for an output
// format the exporter does not produce.
func UnsupportedFormatOutcome(format string) *OperationOutcome {
	return NewOperationOutcome(
		IssueSeverityError,
		IssueTypeNotSupported,
		fmt.Sprintf("unsupported _outputFormat: %s", format),
	)
}

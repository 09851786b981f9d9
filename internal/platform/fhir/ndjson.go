package fhir

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// NDJSONContentType is the bulk-data media type for newline-delimited FHIR.
const NDJSONContentType = "application/fhir+ndjson"

// NDJSONWriter writes one compact JSON resource per line, the layout used by
// FHIR Bulk Data exports.
type NDJSONWriter struct {
	w     *bufio.Writer
	count int
}

func NewNDJSONWriter(w io.Writer) *NDJSONWriter {
	return &NDJSONWriter{w: bufio.NewWriter(w)}
}

// WriteResource serialises resource as a single line followed by '\n'.
func (n *NDJSONWriter) WriteResource(resource interface{}) error {
	data, err := json.Marshal(resource)
	if err != nil {
		return fmt.Errorf("ndjson line %d: %w", n.count+1, err)
	}
	if _, err := n.w.Write(data); err != nil {
		return err
	}
	if err := n.w.WriteByte('\n'); err != nil {
		return err
	}
	n.count++
	return nil
}

// Count reports how many resources have been written.
func (n *NDJSONWriter) Count() int {
	return n.count
}

// Flush flushes any buffered data to the underlying writer.
func (n *NDJSONWriter) Flush() error {
	return n.w.Flush()
}

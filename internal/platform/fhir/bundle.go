package fhir

import (
	"encoding/json"
	"fmt"
)

// Bundle types emitted by this service.
const (
	BundleTypeCollection = "collection"
)

// Bundle represents a FHIR Bundle resource. Entry is always serialized so an
// empty collection is written as "entry": [].
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type"`
	Entry        []BundleEntry `json:"entry"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource"`
}

// NewCollectionBundle wraps resources, in order, in a collection Bundle.
// Encoding is all-or-nothing: if any resource fails to marshal no bundle is
// returned.
func NewCollectionBundle(resources []interface{}) (*Bundle, error) {
	entries := make([]BundleEntry, 0, len(resources))
	for i, r := range resources {
		raw, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("bundle entry %d: %w", i, err)
		}
		entries = append(entries, BundleEntry{Resource: raw})
	}

	return &Bundle{
		ResourceType: ResourceTypeBundle,
		Type:         BundleTypeCollection,
		Entry:        entries,
	}, nil
}

// DecodeEntry unmarshals the resource held by entry i into v.
func (b *Bundle) DecodeEntry(i int, v interface{}) error {
	if i < 0 || i >= len(b.Entry) {
		return fmt.Errorf("bundle entry %d out of range (len %d)", i, len(b.Entry))
	}
	if err := json.Unmarshal(b.Entry[i].Resource, v); err != nil {
		return fmt.Errorf("decode bundle entry %d: %w", i, err)
	}
	return nil
}

// Package blobstore archives exported FHIR files. It defines the BlobStore
// interface with an in-memory implementation for development and tests and an
// S3-backed implementation for deployments, plus Echo handlers for browsing
// the archive.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrMissingFileName    = errors.New("file name is required")
)

// MaxFileSize is the maximum allowed blob size in bytes (100 MB).
const MaxFileSize = 100 * 1024 * 1024

// Archive categories.
const (
	CategoryPatientExport = "patient-export"
	CategoryBundleExport  = "bundle-export"
	CategoryNDJSONExport  = "ndjson-export"
)

// AllowedContentTypes lists the media types the export archive accepts.
var AllowedContentTypes = map[string]bool{
	"application/fhir+json":   true,
	"application/fhir+ndjson": true,
	"application/json":        true,
	"application/x-ndjson":    true,
}

// BlobMetadata describes an archived file.
type BlobMetadata struct {
	ID          string            `json:"id"`
	FileName    string            `json:"file_name"`
	ContentType string            `json:"content_type"`
	Size        int64             `json:"size"`
	PatientID   string            `json:"patient_id,omitempty"`
	Category    string            `json:"category"`
	Hash        string            `json:"hash"`
	CreatedAt   time.Time         `json:"created_at"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// ListParams filters and pages archive listings.
type ListParams struct {
	PatientID   string
	Category    string
	ContentType string
	FileName    string // partial match
	Limit       int
	Offset      int
}

type BlobStore interface {
	Upload(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error)
	Download(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error)
	Delete(ctx context.Context, id string) error
	GetMetadata(ctx context.Context, id string) (*BlobMetadata, error)
	List(ctx context.Context, params ListParams) ([]*BlobMetadata, int, error)
}

// prepareUpload validates meta, reads content fully and fills in the
// generated fields (ID, Size, Hash, CreatedAt).
func prepareUpload(meta BlobMetadata, content io.Reader) (BlobMetadata, []byte, error) {
	if meta.FileName == "" {
		return meta, nil, ErrMissingFileName
	}
	if !AllowedContentTypes[meta.ContentType] {
		return meta, nil, fmt.Errorf("%w: %s", ErrInvalidContentType, meta.ContentType)
	}

	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return meta, nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return meta, nil, ErrFileTooLarge
	}

	meta.ID = uuid.New().String()
	meta.Size = int64(len(data))
	meta.Hash = fmt.Sprintf("%x", sha256.Sum256(data))
	meta.CreatedAt = time.Now().UTC()
	if meta.Tags == nil {
		meta.Tags = make(map[string]string)
	}
	return meta, data, nil
}

func (p ListParams) matches(m *BlobMetadata) bool {
	if p.PatientID != "" && m.PatientID != p.PatientID {
		return false
	}
	if p.Category != "" && m.Category != p.Category {
		return false
	}
	if p.ContentType != "" && m.ContentType != p.ContentType {
		return false
	}
	if p.FileName != "" && !strings.Contains(strings.ToLower(m.FileName), strings.ToLower(p.FileName)) {
		return false
	}
	return true
}

// page sorts matched newest first and returns the requested window.
func page(matched []*BlobMetadata, limit, offset int) []*BlobMetadata {
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	if limit <= 0 {
		limit = 20
	}
	if offset > len(matched) {
		offset = len(matched)
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end]
}

type storedBlob struct {
	metadata BlobMetadata
	content  []byte
}

// InMemoryBlobStore is a thread-safe, in-memory BlobStore for testing/dev.
type InMemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string]*storedBlob
}

func NewInMemoryBlobStore() *InMemoryBlobStore {
	return &InMemoryBlobStore{
		blobs: make(map[string]*storedBlob),
	}
}

func (s *InMemoryBlobStore) Upload(_ context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	meta, data, err := prepareUpload(meta, content)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.blobs[meta.ID] = &storedBlob{metadata: meta, content: data}
	s.mu.Unlock()

	out := meta
	return &out, nil
}

func (s *InMemoryBlobStore) Download(_ context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[id]
	s.mu.RUnlock()

	if !ok {
		return nil, nil, ErrBlobNotFound
	}

	meta := blob.metadata
	return io.NopCloser(bytes.NewReader(blob.content)), &meta, nil
}

func (s *InMemoryBlobStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[id]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, id)
	return nil
}

func (s *InMemoryBlobStore) GetMetadata(_ context.Context, id string) (*BlobMetadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[id]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrBlobNotFound
	}

	meta := blob.metadata
	return &meta, nil
}

// List returns archived files matching params, newest first, with the total
// match count.
func (s *InMemoryBlobStore) List(_ context.Context, params ListParams) ([]*BlobMetadata, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := []*BlobMetadata{}
	for _, b := range s.blobs {
		if !params.matches(&b.metadata) {
			continue
		}
		m := b.metadata
		matched = append(matched, &m)
	}

	return page(matched, params.Limit, params.Offset), len(matched), nil
}

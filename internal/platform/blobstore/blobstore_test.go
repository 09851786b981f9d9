package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
)

const fhirJSON = "application/fhir+json"

func seedBlob(t *testing.T, store BlobStore, patientID, category, fileName, content string) *BlobMetadata {
	t.Helper()
	meta := BlobMetadata{
		FileName:    fileName,
		ContentType: fhirJSON,
		PatientID:   patientID,
		Category:    category,
		Tags:        map[string]string{"source": "unit-test"},
	}
	result, err := store.Upload(context.Background(), meta, strings.NewReader(content))
	if err != nil {
		t.Fatalf("seedBlob: %v", err)
	}
	return result
}

// ---------------------------------------------------------------------------
// Store tests
// ---------------------------------------------------------------------------

func TestInMemoryBlobStore_Upload(t *testing.T) {
	store := NewInMemoryBlobStore()
	content := `{"resourceType":"Patient","id":"P001"}`

	result := seedBlob(t, store, "P001", CategoryPatientExport, "patient-P001-fhir.json", content)

	if result.ID == "" {
		t.Fatal("expected non-empty ID")
	}
	if result.FileName != "patient-P001-fhir.json" {
		t.Errorf("expected FileName=patient-P001-fhir.json, got %s", result.FileName)
	}
	if result.Size != int64(len(content)) {
		t.Errorf("expected Size=%d, got %d", len(content), result.Size)
	}
	if result.Hash != fmt.Sprintf("%x", sha256.Sum256([]byte(content))) {
		t.Errorf("unexpected hash %s", result.Hash)
	}
	if result.CreatedAt.IsZero() {
		t.Fatal("expected non-zero CreatedAt")
	}
}

func TestInMemoryBlobStore_Upload_Validation(t *testing.T) {
	store := NewInMemoryBlobStore()

	_, err := store.Upload(context.Background(), BlobMetadata{ContentType: fhirJSON}, strings.NewReader("{}"))
	if !errors.Is(err, ErrMissingFileName) {
		t.Errorf("expected ErrMissingFileName, got %v", err)
	}

	_, err = store.Upload(context.Background(), BlobMetadata{FileName: "scan.png", ContentType: "image/png"}, strings.NewReader("x"))
	if !errors.Is(err, ErrInvalidContentType) {
		t.Errorf("expected ErrInvalidContentType, got %v", err)
	}
}

func TestInMemoryBlobStore_Upload_FileTooLarge(t *testing.T) {
	store := NewInMemoryBlobStore()
	big := io.LimitReader(zeroReader{}, MaxFileSize+1)

	_, err := store.Upload(context.Background(), BlobMetadata{FileName: "big.json", ContentType: fhirJSON}, big)
	if !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("expected ErrFileTooLarge, got %v", err)
	}
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

func TestInMemoryBlobStore_DownloadAndDelete(t *testing.T) {
	store := NewInMemoryBlobStore()
	uploaded := seedBlob(t, store, "P001", CategoryPatientExport, "patient-P001-fhir.json", "payload")

	rc, meta, err := store.Download(context.Background(), uploaded.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "payload" || meta.FileName != "patient-P001-fhir.json" {
		t.Errorf("unexpected download %q %+v", data, meta)
	}

	if err := store.Delete(context.Background(), uploaded.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := store.Download(context.Background(), uploaded.ID); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound after delete, got %v", err)
	}
	if err := store.Delete(context.Background(), uploaded.ID); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound on second delete, got %v", err)
	}
}

func TestInMemoryBlobStore_GetMetadata(t *testing.T) {
	store := NewInMemoryBlobStore()
	uploaded := seedBlob(t, store, "", CategoryBundleExport, "patients-bundle-fhir.json", "{}")

	meta, err := store.GetMetadata(context.Background(), uploaded.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if meta.Category != CategoryBundleExport || meta.Tags["source"] != "unit-test" {
		t.Errorf("unexpected metadata %+v", meta)
	}

	if _, err := store.GetMetadata(context.Background(), "missing"); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound, got %v", err)
	}
}

func TestInMemoryBlobStore_List(t *testing.T) {
	store := NewInMemoryBlobStore()
	seedBlob(t, store, "P001", CategoryPatientExport, "patient-P001-fhir.json", "a")
	seedBlob(t, store, "P001", CategoryPatientExport, "patient-P001-fhir.json", "b")
	seedBlob(t, store, "P002", CategoryPatientExport, "patient-P002-fhir.json", "c")
	seedBlob(t, store, "", CategoryBundleExport, "patients-bundle-fhir.json", "d")

	tests := []struct {
		name   string
		params ListParams
		want   int
	}{
		{"all", ListParams{}, 4},
		{"by patient", ListParams{PatientID: "P001"}, 2},
		{"by category", ListParams{Category: CategoryBundleExport}, 1},
		{"by file name", ListParams{FileName: "P002"}, 1},
		{"by content type", ListParams{ContentType: "application/fhir+ndjson"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, total, err := store.List(context.Background(), tt.params)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if total != tt.want || len(items) != tt.want {
				t.Errorf("expected %d, got total=%d len=%d", tt.want, total, len(items))
			}
		})
	}

	page, total, _ := store.List(context.Background(), ListParams{Limit: 3, Offset: 2})
	if total != 4 || len(page) != 2 {
		t.Errorf("expected page of 2 from 4, got %d of %d", len(page), total)
	}
}

func TestInMemoryBlobStore_ConcurrentAccess(t *testing.T) {
	store := NewInMemoryBlobStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			meta := BlobMetadata{FileName: fmt.Sprintf("patient-P%03d-fhir.json", i), ContentType: fhirJSON, Category: CategoryPatientExport}
			if _, err := store.Upload(context.Background(), meta, strings.NewReader("{}")); err != nil {
				t.Errorf("upload %d: %v", i, err)
			}
			store.List(context.Background(), ListParams{})
		}(i)
	}
	wg.Wait()

	_, total, _ := store.List(context.Background(), ListParams{})
	if total != 50 {
		t.Errorf("expected 50 blobs, got %d", total)
	}
}

// ---------------------------------------------------------------------------
// Handler tests
// ---------------------------------------------------------------------------

func newTestBlobHandler(t *testing.T) (*BlobHandler, *InMemoryBlobStore, *echo.Echo) {
	t.Helper()
	store := NewInMemoryBlobStore()
	return NewBlobHandler(store), store, echo.New()
}

func TestBlobHandler_Download(t *testing.T) {
	h, store, e := newTestBlobHandler(t)
	uploaded := seedBlob(t, store, "P001", CategoryPatientExport, "patient-P001-fhir.json", `{"id":"P001"}`)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(uploaded.ID)

	if err := h.handleDownload(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Disposition"); got != "attachment; filename=patient-P001-fhir.json" {
		t.Errorf("unexpected Content-Disposition %q", got)
	}
	if rec.Body.String() != `{"id":"P001"}` {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestBlobHandler_GetMetadata_NotFound(t *testing.T) {
	h, _, e := newTestBlobHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("missing")

	if err := h.handleGetMetadata(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestBlobHandler_Delete(t *testing.T) {
	h, store, e := newTestBlobHandler(t)
	uploaded := seedBlob(t, store, "P001", CategoryPatientExport, "patient-P001-fhir.json", "{}")

	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(uploaded.ID)

	if err := h.handleDelete(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestBlobHandler_List(t *testing.T) {
	h, store, e := newTestBlobHandler(t)
	seedBlob(t, store, "P001", CategoryPatientExport, "patient-P001-fhir.json", "{}")
	seedBlob(t, store, "", CategoryBundleExport, "patients-bundle-fhir.json", "{}")

	req := httptest.NewRequest(http.MethodGet, "/?category=bundle-export", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.handleList(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Data  []BlobMetadata `json:"data"`
		Total int            `json:"total"`
	}
	if err := json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Total != 1 || body.Data[0].FileName != "patients-bundle-fhir.json" {
		t.Errorf("unexpected list %+v", body)
	}
}

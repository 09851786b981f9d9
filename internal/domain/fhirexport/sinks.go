package fhirexport

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/ancexport/internal/platform/blobstore"
)

// HTTPSink sends the file as an attachment on the current response.
type HTTPSink struct {
	c echo.Context
}

func NewHTTPSink(c echo.Context) *HTTPSink {
	return &HTTPSink{c: c}
}

func (s *HTTPSink) Name() string { return "http" }

func (s *HTTPSink) Save(_ context.Context, f File) error {
	s.c.Response().Header().Set(echo.HeaderContentDisposition,
		mime.FormatMediaType("attachment", map[string]string{"filename": f.Name}))
	return s.c.Blob(http.StatusOK, f.ContentType, f.Payload)
}

// DirSink writes files into a local directory. Each file is written to a
// temporary name and renamed into place, so readers never see a partial file.
type DirSink struct {
	dir string
}

func NewDirSink(dir string) *DirSink {
	return &DirSink{dir: dir}
}

func (s *DirSink) Name() string { return "dir" }

// Path returns where a file with the given name is written.
func (s *DirSink) Path(name string) string {
	return filepath.Join(s.dir, name)
}

func (s *DirSink) Save(ctx context.Context, f File) (err error) {
	if f.Name == "" || f.Name == "." || f.Name == ".." || filepath.Base(f.Name) != f.Name {
		return fmt.Errorf("invalid export file name %q", f.Name)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+f.Name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(f.Payload); err != nil {
		return fmt.Errorf("write %s: %w", f.Name, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", f.Name, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", f.Name, err)
	}
	if err = ctx.Err(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", f.Name, err)
	}
	if err = os.Rename(tmp.Name(), s.Path(f.Name)); err != nil {
		return fmt.Errorf("rename %s: %w", f.Name, err)
	}
	return nil
}

// ArchiveSink uploads a copy of each file to a blob store.
type ArchiveSink struct {
	store blobstore.BlobStore
	tags  map[string]string
}

func NewArchiveSink(store blobstore.BlobStore, tags map[string]string) *ArchiveSink {
	return &ArchiveSink{store: store, tags: tags}
}

func (s *ArchiveSink) Name() string { return "archive" }

func archiveCategory(k Kind) string {
	switch k {
	case KindPatient:
		return blobstore.CategoryPatientExport
	case KindNDJSON:
		return blobstore.CategoryNDJSONExport
	}
	return blobstore.CategoryBundleExport
}

func (s *ArchiveSink) Save(ctx context.Context, f File) error {
	tags := make(map[string]string, len(s.tags))
	for k, v := range s.tags {
		tags[k] = v
	}
	_, err := s.store.Upload(ctx, blobstore.BlobMetadata{
		FileName:    f.Name,
		ContentType: f.ContentType,
		PatientID:   f.PatientID,
		Category:    archiveCategory(f.Kind),
		Tags:        tags,
	}, bytes.NewReader(f.Payload))
	if err != nil {
		return fmt.Errorf("archive %s: %w", f.Name, err)
	}
	return nil
}

// MultiSink saves to a primary sink and then copies the file to secondary
// sinks. Only a primary failure is returned; secondary failures are logged
// and counted.
type MultiSink struct {
	primary     Sink
	secondaries []Sink
	logger      zerolog.Logger
	metrics     *Metrics
}

func NewMultiSink(primary Sink, logger zerolog.Logger, metrics *Metrics, secondaries ...Sink) *MultiSink {
	return &MultiSink{primary: primary, secondaries: secondaries, logger: logger, metrics: metrics}
}

func (s *MultiSink) Name() string { return s.primary.Name() }

func (s *MultiSink) Save(ctx context.Context, f File) error {
	if err := s.primary.Save(ctx, f); err != nil {
		return err
	}
	for _, sec := range s.secondaries {
		err := sec.Save(ctx, f)
		s.metrics.ObserveEmission(sec.Name(), err, len(f.Payload))
		if err != nil {
			s.logger.Warn().Err(err).
				Str("filename", f.Name).
				Str("sink", sec.Name()).
				Msg("secondary fhir export failed")
		}
	}
	return nil
}

package fhirexport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ehr/ancexport/internal/platform/fhir"
)

var ErrEmptyFilename = errors.New("export filename is required")

// Kind says what an emitted file holds.
type Kind string

const (
	KindPatient Kind = "patient"
	KindBundle  Kind = "bundle"
	KindNDJSON  Kind = "ndjson"
)

// File is one serialized export handed to a Sink. Payload is only valid for
// the duration of the Save call.
type File struct {
	Name        string
	ContentType string
	Kind        Kind
	PatientID   string
	Payload     []byte
}

// Sink is the host's save-as-file mechanism: an HTTP download, a directory,
// an archive store.
type Sink interface {
	Name() string
	Save(ctx context.Context, f File) error
}

type bufferPool interface {
	Get() *bytes.Buffer
	Put(*bytes.Buffer)
}

// maxPooledBuffer keeps one very large bundle from pinning memory in the pool.
const maxPooledBuffer = 4 << 20

type syncBufferPool struct{ p sync.Pool }

func (s *syncBufferPool) Get() *bytes.Buffer {
	if b, ok := s.p.Get().(*bytes.Buffer); ok {
		return b
	}
	return new(bytes.Buffer)
}

func (s *syncBufferPool) Put(b *bytes.Buffer) {
	if b.Cap() > maxPooledBuffer {
		return
	}
	b.Reset()
	s.p.Put(b)
}

var sharedBuffers = &syncBufferPool{}

// Emitter serializes documents as two-space indented UTF-8 JSON and passes
// them to its sink. Sink errors are returned wrapped and never retried.
type Emitter struct {
	sink    Sink
	logger  zerolog.Logger
	metrics *Metrics
	buffers bufferPool
}

func NewEmitter(sink Sink, logger zerolog.Logger, metrics *Metrics) *Emitter {
	return &Emitter{sink: sink, logger: logger, metrics: metrics, buffers: sharedBuffers}
}

// WithSink returns a copy of e that writes to s.
func (e *Emitter) WithSink(s Sink) *Emitter {
	cp := *e
	cp.sink = s
	return &cp
}

// Emit writes doc (a *fhir.Patient, *fhir.Bundle or any JSON value) to the
// sink under filename.
func (e *Emitter) Emit(ctx context.Context, doc interface{}, filename string) error {
	if filename == "" {
		return ErrEmptyFilename
	}

	buf := e.buffers.Get()
	defer e.buffers.Put(buf)

	enc := json.NewEncoder(buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode %s: %w", filename, err)
	}

	f := File{Name: filename, ContentType: fhir.ContentType, Payload: buf.Bytes()}
	switch d := doc.(type) {
	case *fhir.Patient:
		f.Kind = KindPatient
		f.PatientID = d.ID
	case *fhir.Bundle:
		f.Kind = KindBundle
	}
	return e.save(ctx, f)
}

// EmitNDJSON writes one compact Patient per line.
func (e *Emitter) EmitNDJSON(ctx context.Context, patients []*fhir.Patient, filename string) error {
	if filename == "" {
		return ErrEmptyFilename
	}

	buf := e.buffers.Get()
	defer e.buffers.Put(buf)

	w := fhir.NewNDJSONWriter(buf)
	for _, p := range patients {
		if err := w.WriteResource(p); err != nil {
			return fmt.Errorf("encode %s: %w", filename, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("encode %s: %w", filename, err)
	}

	return e.save(ctx, File{
		Name:        filename,
		ContentType: fhir.NDJSONContentType,
		Kind:        KindNDJSON,
		Payload:     buf.Bytes(),
	})
}

func (e *Emitter) save(ctx context.Context, f File) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("emit %s: %w", f.Name, err)
	}

	sink := e.sink.Name()
	err := e.sink.Save(ctx, f)
	e.metrics.ObserveEmission(sink, err, len(f.Payload))
	if err != nil {
		e.logger.Error().Err(err).
			Str("filename", f.Name).
			Str("sink", sink).
			Msg("fhir export failed")
		return fmt.Errorf("emit %s via %s sink: %w", f.Name, sink, err)
	}

	e.logger.Info().
		Str("filename", f.Name).
		Str("kind", string(f.Kind)).
		Int("bytes", len(f.Payload)).
		Str("sink", sink).
		Msg("fhir export written")
	return nil
}

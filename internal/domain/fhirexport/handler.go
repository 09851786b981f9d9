package fhirexport

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/ancexport/internal/domain/antenatal"
	"github.com/ehr/ancexport/internal/platform/fhir"
)

// Handler serves mapped resources and export downloads under /fhir.
type Handler struct {
	svc     *Service
	emitter *Emitter
	archive Sink
	logger  zerolog.Logger
	metrics *Metrics
}

// NewHandler builds the handler. archive may be nil when exports are not
// archived.
func NewHandler(svc *Service, emitter *Emitter, archive Sink, logger zerolog.Logger, metrics *Metrics) *Handler {
	return &Handler{svc: svc, emitter: emitter, archive: archive, logger: logger, metrics: metrics}
}

func (h *Handler) RegisterRoutes(fhirGroup *echo.Group) {
	fhirGroup.GET("/Patient/$export", h.ExportAll)
	fhirGroup.GET("/Patient/:id", h.ReadPatient)
	fhirGroup.GET("/Patient/:id/$export", h.ExportPatient)
}

func (h *Handler) sinkFor(c echo.Context) *Emitter {
	var sink Sink = NewHTTPSink(c)
	if h.archive != nil {
		sink = NewMultiSink(sink, h.logger, h.metrics, h.archive)
	}
	return h.emitter.WithSink(sink)
}

func outcome(c echo.Context, status int, oo *fhir.OperationOutcome) error {
	c.Response().Header().Set(echo.HeaderContentType, fhir.ContentType)
	return c.JSON(status, oo)
}

func (h *Handler) sourceError(c echo.Context, id string, err error) error {
	if errors.Is(err, antenatal.ErrPatientNotFound) {
		return outcome(c, http.StatusNotFound, fhir.NotFoundOutcome(fhir.ResourceTypePatient, id))
	}
	return outcome(c, http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
}

func (h *Handler) ReadPatient(c echo.Context) error {
	id := c.Param("id")
	p, err := h.svc.Patient(c.Request().Context(), id)
	if err != nil {
		return h.sourceError(c, id, err)
	}
	c.Response().Header().Set(echo.HeaderContentType, fhir.ContentType)
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ExportPatient(c echo.Context) error {
	id := c.Param("id")
	if _, err := h.svc.ExportPatient(c.Request().Context(), h.sinkFor(c), id); err != nil {
		if c.Response().Committed {
			return err
		}
		return h.sourceError(c, id, err)
	}
	return nil
}

// ExportAll downloads every patient as a collection Bundle, or as NDJSON
// with _outputFormat=ndjson. ?filename= overrides the default name.
func (h *Handler) ExportAll(c echo.Context) error {
	format := c.QueryParam("_outputFormat")
	ndjson := false
	switch format {
	case "", "json", fhir.ContentType:
	case "ndjson", fhir.NDJSONContentType:
		ndjson = true
	default:
		return outcome(c, http.StatusBadRequest, fhir.UnsupportedFormatOutcome(format))
	}

	filename := strings.TrimSpace(c.QueryParam("filename"))
	if filename == "" {
		filename = BundleFilename
		if ndjson {
			filename = NDJSONFilename
		}
	}
	if filepath.Base(filename) != filename || strings.ContainsAny(filename, `"\`) {
		return outcome(c, http.StatusBadRequest, fhir.ValidationOutcome("filename", "filename must be a plain file name"))
	}

	var err error
	if ndjson {
		err = h.svc.ExportNDJSON(c.Request().Context(), h.sinkFor(c), filename)
	} else {
		err = h.svc.ExportBundle(c.Request().Context(), h.sinkFor(c), filename)
	}
	if err != nil {
		if c.Response().Committed {
			return err
		}
		return outcome(c, http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
	return nil
}

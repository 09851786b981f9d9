package blobstore

import (
	"errors"
	"mime"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/ancexport/pkg/pagination"
)

// BlobHandler exposes the export archive over HTTP. Files enter the archive
// through the export emitter, so there is no upload route.
type BlobHandler struct {
	store BlobStore
}

func NewBlobHandler(store BlobStore) *BlobHandler {
	return &BlobHandler{store: store}
}

func (h *BlobHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/exports", h.handleList)
	g.GET("/exports/:id/metadata", h.handleGetMetadata)
	g.GET("/exports/:id", h.handleDownload)
	g.DELETE("/exports/:id", h.handleDelete)
}

func storeError(c echo.Context, err error) error {
	if errors.Is(err, ErrBlobNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func (h *BlobHandler) handleDownload(c echo.Context) error {
	rc, meta, err := h.store.Download(c.Request().Context(), c.Param("id"))
	if err != nil {
		return storeError(c, err)
	}
	defer rc.Close()

	c.Response().Header().Set(echo.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": meta.FileName}))
	return c.Stream(http.StatusOK, meta.ContentType, rc)
}

func (h *BlobHandler) handleGetMetadata(c echo.Context) error {
	meta, err := h.store.GetMetadata(c.Request().Context(), c.Param("id"))
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(http.StatusOK, meta)
}

func (h *BlobHandler) handleDelete(c echo.Context) error {
	if err := h.store.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return storeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *BlobHandler) handleList(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := ListParams{
		PatientID:   c.QueryParam("patient_id"),
		Category:    c.QueryParam("category"),
		ContentType: c.QueryParam("content_type"),
		FileName:    c.QueryParam("file_name"),
		Limit:       pg.Limit,
		Offset:      pg.Offset,
	}

	items, total, err := h.store.List(c.Request().Context(), params)
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithNext(c.Request().URL))
}

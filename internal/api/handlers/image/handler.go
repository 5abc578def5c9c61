package image

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-storage/internal/api/respond"
	"github.com/aliskhannn/image-storage/internal/apperr"
	"github.com/aliskhannn/image-storage/internal/auth"
	"github.com/aliskhannn/image-storage/internal/middleware"
	"github.com/aliskhannn/image-storage/internal/model"
	"github.com/aliskhannn/image-storage/internal/processor"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	// maxDeleteBatch caps how many UUIDs a single batch delete may name.
	maxDeleteBatch = 100
)

// service defines the interface for image-related operations.
type service interface {
	Store(ctx context.Context, canonicalPath, originalName string, data []byte) (model.ImageRecord, error)
	Info(ctx context.Context, id uuid.UUID) (model.ImageRecord, error)
	Fetch(ctx context.Context, rec model.ImageRecord, p processor.Params) ([]byte, model.Format, error)
	Remove(ctx context.Context, rec model.ImageRecord) error
	List(ctx context.Context, pathPrefix string, page, limit int) ([]model.ImageRecord, int, error)
}

// paramsParser validates raw transform query parameters.
type paramsParser interface {
	ParseParams(raw processor.RawParams) (processor.Params, error)
}

// Handler provides HTTP handlers for image-related endpoints.
// It depends on a service interface to perform the business logic.
type Handler struct {
	service     service
	params      paramsParser
	maxFileSize int64
}

// NewHandler creates a new Handler with the given service and params parser.
// maxFileSize bounds how many bytes of an upload are read into memory.
func NewHandler(s service, p paramsParser, maxFileSize int64) *Handler {
	return &Handler{service: s, params: p, maxFileSize: maxFileSize}
}

// imageResponse is the client-facing projection of an image record.
type imageResponse struct {
	UUID         string    `json:"uuid"`
	OriginalName string    `json:"original_name"`
	UserPath     string    `json:"user_path"`
	SizeBytes    int64     `json:"size_bytes"`
	Format       string    `json:"format"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	CreatedAt    time.Time `json:"created_at"`
	AccessURL    string    `json:"access_url"`
}

func toResponse(rec model.ImageRecord) imageResponse {
	return imageResponse{
		UUID:         rec.UUID.String(),
		OriginalName: rec.OriginalName,
		UserPath:     rec.UserPath,
		SizeBytes:    rec.SizeBytes,
		Format:       string(rec.Format),
		Width:        rec.Width,
		Height:       rec.Height,
		CreatedAt:    rec.CreatedAt,
		AccessURL:    "/api/v1/images/" + rec.UUID.String(),
	}
}

// Upload handles a single image upload. It resolves the client-supplied
// user_path against the caller's prefix, reads the file and stores it.
func (h *Handler) Upload(c *ginext.Context) {
	cred := middleware.CredentialFrom(c)

	canonical, err := auth.ResolvePath(cred, c.PostForm("user_path"))
	if err != nil {
		respond.Error(c, err)
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		respond.Error(c, apperr.New(apperr.CodeInvalidRequest, "file field is required"))
		return
	}
	defer file.Close()

	data, err := h.readUpload(file)
	if err != nil {
		zlog.Logger.Err(err).Str("filename", header.Filename).Msg("failed to read upload")
		respond.Error(c, err)
		return
	}

	rec, err := h.service.Store(c.Request.Context(), canonical, header.Filename, data)
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.Created(c, toResponse(rec))
}

// Serve streams image bytes for a given UUID, optionally transformed by
// width, height, quality, format and mode query parameters.
func (h *Handler) Serve(c *ginext.Context) {
	rec, ok := h.lookupAuthorized(c)
	if !ok {
		return
	}

	raw := processor.RawParams{
		Width:   c.Query("width"),
		Height:  c.Query("height"),
		Quality: c.Query("quality"),
		Format:  c.Query("format"),
		Mode:    c.Query("mode"),
	}

	var params processor.Params
	if !raw.IsZero() {
		var err error
		params, err = h.params.ParseParams(raw)
		if err != nil {
			respond.Error(c, err)
			return
		}
	}

	data, format, err := h.service.Fetch(c.Request.Context(), rec, params)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.Header("Cache-Control", "public, max-age=3600")
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", rec.OriginalName))
	respond.Image(c, processor.ContentType(format), data)
}

// Info returns metadata about the image without serving the file itself.
func (h *Handler) Info(c *ginext.Context) {
	rec, ok := h.lookupAuthorized(c)
	if !ok {
		return
	}

	respond.OK(c, toResponse(rec))
}

// listResponse pairs a page of images with pagination info.
type listResponse struct {
	Images     []imageResponse `json:"images"`
	Pagination pagination      `json:"pagination"`
}

type pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// List returns images under the caller's prefix, newest first. An optional
// user_path query narrows the listing to a subtree.
func (h *Handler) List(c *ginext.Context) {
	cred := middleware.CredentialFrom(c)

	canonical, err := auth.ResolvePath(cred, c.Query("user_path"))
	if err != nil {
		respond.Error(c, err)
		return
	}

	page := intQuery(c, "page", 1)
	if page < 1 {
		page = 1
	}

	limit := intQuery(c, "limit", defaultPageSize)
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	records, total, err := h.service.List(c.Request.Context(), canonical, page, limit)
	if err != nil {
		respond.Error(c, err)
		return
	}

	images := make([]imageResponse, 0, len(records))
	for _, rec := range records {
		images = append(images, toResponse(rec))
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + limit - 1) / limit
	}

	respond.OK(c, listResponse{
		Images: images,
		Pagination: pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: totalPages,
		},
	})
}

// Delete removes an image by UUID.
func (h *Handler) Delete(c *ginext.Context) {
	rec, ok := h.lookupAuthorized(c)
	if !ok {
		return
	}

	if err := h.service.Remove(c.Request.Context(), rec); err != nil {
		respond.Error(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// deleteBatchRequest names the images a batch delete targets.
type deleteBatchRequest struct {
	UUIDs []string `json:"uuids"`
}

type deleteResult struct {
	UUID      string `json:"uuid"`
	Status    string `json:"status"`
	ErrorCode string `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`
}

type deleteSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

type deleteBatchResponse struct {
	Results []deleteResult `json:"results"`
	Summary deleteSummary  `json:"summary"`
}

// DeleteBatch removes several images in one request. Each UUID succeeds or
// fails independently; the response reports a per-item result.
func (h *Handler) DeleteBatch(c *ginext.Context) {
	cred := middleware.CredentialFrom(c)

	var req deleteBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, apperr.New(apperr.CodeInvalidRequest, "request body must be JSON with a uuids array"))
		return
	}

	if len(req.UUIDs) == 0 {
		respond.Error(c, apperr.New(apperr.CodeInvalidRequest, "uuids must not be empty"))
		return
	}
	if len(req.UUIDs) > maxDeleteBatch {
		respond.Error(c, apperr.New(apperr.CodeBatchTooLarge, "too many uuids in one request").
			WithDetail("max_items", maxDeleteBatch).
			WithDetail("received", len(req.UUIDs)))
		return
	}

	results := make([]deleteResult, 0, len(req.UUIDs))
	succeeded := 0
	for _, raw := range req.UUIDs {
		res := h.deleteOne(c.Request.Context(), cred, raw)
		if res.Status == "deleted" {
			succeeded++
		}
		results = append(results, res)
	}

	respond.OK(c, deleteBatchResponse{
		Results: results,
		Summary: deleteSummary{
			Total:     len(results),
			Succeeded: succeeded,
			Failed:    len(results) - succeeded,
		},
	})
}

func (h *Handler) deleteOne(ctx context.Context, cred model.Credential, raw string) deleteResult {
	fail := func(e *apperr.Error) deleteResult {
		return deleteResult{UUID: raw, Status: "failed", ErrorCode: string(e.Code), Error: e.Message}
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return fail(apperr.New(apperr.CodeInvalidRequest, "invalid uuid"))
	}

	rec, err := h.service.Info(ctx, id)
	if err != nil {
		return fail(toAppErr(err))
	}

	if !auth.CanAccess(cred, rec.StoredPath) {
		return fail(apperr.New(apperr.CodeAccessDenied, "access denied"))
	}

	if err := h.service.Remove(ctx, rec); err != nil {
		return fail(toAppErr(err))
	}

	return deleteResult{UUID: raw, Status: "deleted"}
}

// lookupAuthorized parses the uuid path parameter, loads the record and
// checks it falls under the caller's prefix. On failure it writes the
// error response itself and reports false.
func (h *Handler) lookupAuthorized(c *ginext.Context) (model.ImageRecord, bool) {
	cred := middleware.CredentialFrom(c)

	id, err := uuid.Parse(c.Param("uuid"))
	if err != nil {
		respond.Error(c, apperr.New(apperr.CodeImageNotFound, "image not found"))
		return model.ImageRecord{}, false
	}

	rec, err := h.service.Info(c.Request.Context(), id)
	if err != nil {
		respond.Error(c, err)
		return model.ImageRecord{}, false
	}

	if !auth.CanAccess(cred, rec.StoredPath) {
		zlog.Logger.Warn().
			Str("credential", cred.Name).
			Str("uuid", id.String()).
			Msg("cross-prefix access denied")
		respond.Error(c, apperr.New(apperr.CodeAccessDenied, "access denied"))
		return model.ImageRecord{}, false
	}

	return rec, true
}

// readUpload reads at most maxFileSize bytes plus one, so oversized files
// are detected without buffering their full contents.
func (h *Handler) readUpload(file io.Reader) ([]byte, error) {
	r := file
	if h.maxFileSize > 0 {
		r = io.LimitReader(file, h.maxFileSize+1)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to read upload", err)
	}

	return data, nil
}

func toAppErr(err error) *apperr.Error {
	if e := apperr.From(err); e != nil {
		return e
	}
	return apperr.New(apperr.CodeInternal, "internal error")
}

// intQuery parses an integer query parameter, falling back to def when the
// parameter is absent or not a number.
func intQuery(c *ginext.Context, name string, def int) int {
	v := c.Query(name)
	if v == "" {
		return def
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}

	return n
}

package batch

import (
	"io"
	"mime/multipart"

	"github.com/wb-go/wbf/ginext"

	"github.com/aliskhannn/image-storage/internal/api/respond"
	"github.com/aliskhannn/image-storage/internal/apperr"
	"github.com/aliskhannn/image-storage/internal/auth"
	batchsvc "github.com/aliskhannn/image-storage/internal/batch"
	"github.com/aliskhannn/image-storage/internal/middleware"
	"github.com/aliskhannn/image-storage/internal/model"
)

// coordinator defines the batch operations the handlers depend on.
type coordinator interface {
	Submit(cred model.Credential, canonicalBase string, items []batchsvc.Item) (string, error)
	Progress(batchID string) (batchsvc.Snapshot, error)
}

// Handler provides HTTP handlers for batch upload endpoints.
type Handler struct {
	coord       coordinator
	maxFileSize int64
}

// NewHandler creates a new Handler with the given coordinator. maxFileSize
// bounds how many bytes of each file are read into memory.
func NewHandler(coord coordinator, maxFileSize int64) *Handler {
	return &Handler{coord: coord, maxFileSize: maxFileSize}
}

// acceptedResponse acknowledges a submitted batch.
type acceptedResponse struct {
	BatchID     string `json:"batch_id"`
	Status      string `json:"status"`
	TotalFiles  int    `json:"total_files"`
	ProgressURL string `json:"progress_url"`
}

// Upload accepts several files in one multipart request and processes them
// in the background. It responds immediately with a batch ID the client
// polls for progress; individual files succeed or fail independently.
func (h *Handler) Upload(c *ginext.Context) {
	cred := middleware.CredentialFrom(c)

	canonical, err := auth.ResolvePath(cred, c.PostForm("user_path"))
	if err != nil {
		respond.Error(c, err)
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		respond.Error(c, apperr.New(apperr.CodeInvalidRequest, "multipart form is required"))
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		respond.Error(c, apperr.New(apperr.CodeInvalidRequest, "files field is required"))
		return
	}

	items := make([]batchsvc.Item, 0, len(files))
	for _, fh := range files {
		data, err := h.readFile(fh)
		if err != nil {
			respond.Error(c, err)
			return
		}

		items = append(items, batchsvc.Item{Name: fh.Filename, Data: data})
	}

	id, err := h.coord.Submit(cred, canonical, items)
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.Accepted(c, acceptedResponse{
		BatchID:     id,
		Status:      batchsvc.StatusAccepted,
		TotalFiles:  len(items),
		ProgressURL: "/api/v1/batch/" + id + "/progress",
	})
}

// Progress reports the current state of a batch.
func (h *Handler) Progress(c *ginext.Context) {
	snap, err := h.coord.Progress(c.Param("batch_id"))
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, snap)
}

// readFile reads one part of the form. Reads are capped just above the
// size limit; an oversized item then fails validation on its own instead
// of rejecting the whole batch.
func (h *Handler) readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to read upload", err)
	}
	defer f.Close()

	var r io.Reader = f
	if h.maxFileSize > 0 {
		r = io.LimitReader(f, h.maxFileSize+1)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to read upload", err)
	}

	return data, nil
}

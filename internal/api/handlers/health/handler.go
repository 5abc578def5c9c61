package health

import (
	"context"
	"net/http"

	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-storage/internal/api/respond"
)

// pinger checks that the blob store is reachable.
type pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the health endpoint.
type Handler struct {
	storage pinger
}

// NewHandler creates a new Handler probing the given storage.
func NewHandler(storage pinger) *Handler {
	return &Handler{storage: storage}
}

type status struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
}

// Check reports whether the service can reach its blob store. It requires
// no API key so load balancers can probe it.
func (h *Handler) Check(c *ginext.Context) {
	if err := h.storage.Ping(c.Request.Context()); err != nil {
		zlog.Logger.Err(err).Msg("health check failed")
		respond.JSON(c, http.StatusServiceUnavailable, status{Status: "unhealthy", Storage: "unreachable"})
		return
	}

	respond.JSON(c, http.StatusOK, status{Status: "healthy", Storage: "ok"})
}

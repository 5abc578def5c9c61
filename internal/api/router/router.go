package router

import (
	"github.com/wb-go/wbf/ginext"

	"github.com/aliskhannn/image-storage/internal/api/handlers/batch"
	"github.com/aliskhannn/image-storage/internal/api/handlers/health"
	"github.com/aliskhannn/image-storage/internal/api/handlers/image"
	"github.com/aliskhannn/image-storage/internal/middleware"
)

// Setup wires all routes. Everything under /api/v1 requires an API key;
// the health probe does not.
func Setup(img *image.Handler, bh *batch.Handler, hh *health.Handler, creds middleware.CredentialResolver) *ginext.Engine {
	r := ginext.New()

	r.Use(middleware.CORSMiddleware())
	r.Use(ginext.Logger())
	r.Use(ginext.Recovery())

	r.GET("/health", hh.Check)

	api := r.Group("/api/v1")
	api.Use(middleware.Auth(creds))

	api.POST("/images/upload", img.Upload)         // uploading a single image
	api.POST("/images/batch-upload", bh.Upload)    // uploading several images asynchronously
	api.GET("/batch/:batch_id/progress", bh.Progress)

	api.GET("/images", img.List)            // listing images under a path
	api.GET("/images/:uuid", img.Serve)     // serving image bytes, optionally transformed
	api.GET("/images/:uuid/info", img.Info) // image metadata

	api.DELETE("/images/batch", img.DeleteBatch) // deleting several images by uuid
	api.DELETE("/images/:uuid", img.Delete)      // deleting one image by uuid

	return r
}

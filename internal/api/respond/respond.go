package respond

import (
	"net/http"
	"time"

	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-storage/internal/apperr"
)

// Success represents a standard structure for successful responses.
type Success struct {
	Result interface{} `json:"result"`
}

// ErrorBody is the machine-readable part of an error response.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorResponse is the envelope every error is served with.
type ErrorResponse struct {
	Error     ErrorBody `json:"error"`
	Timestamp time.Time `json:"timestamp"`
	Path      string    `json:"path"`
}

// JSON sends a JSON response with the specified HTTP status code and data.
// It uses the Gin context to encode the data into JSON format.
func JSON(c *ginext.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// OK sends a 200 OK JSON response, wrapping the given result in a Success struct.
func OK(c *ginext.Context, result interface{}) {
	JSON(c, http.StatusOK, Success{Result: result})
}

// Created sends a 201 Created JSON response, wrapping the given result in a Success struct.
func Created(c *ginext.Context, result interface{}) {
	JSON(c, http.StatusCreated, Success{Result: result})
}

// Accepted sends a 202 Accepted JSON response, wrapping the given result in a Success struct.
func Accepted(c *ginext.Context, result interface{}) {
	JSON(c, http.StatusAccepted, Success{Result: result})
}

// Image streams image bytes with the given content type.
func Image(c *ginext.Context, contentType string, data []byte) {
	c.Data(http.StatusOK, contentType, data)
}

// Error sends err as a structured error response. Errors that carry no
// code are served as a generic internal error so details never leak;
// the cause is logged instead.
func Error(c *ginext.Context, err error) {
	e := apperr.From(err)
	if e == nil {
		zlog.Logger.Err(err).Str("path", c.Request.URL.Path).Msg("unclassified error")
		e = apperr.New(apperr.CodeInternal, "internal error")
	}

	JSON(c, e.Status(), ErrorResponse{
		Error: ErrorBody{
			Code:    string(e.Code),
			Message: e.Message,
			Details: e.Details,
		},
		Timestamp: time.Now().UTC(),
		Path:      c.Request.URL.Path,
	})
}

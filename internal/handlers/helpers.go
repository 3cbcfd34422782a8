package handlers

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fedivid/recoserver/internal/errors"
	"github.com/fedivid/recoserver/internal/logger"
)

// decodeObject reads the request body and unmarshals it into dst. The body
// must be a single JSON object: oversized, invalid, and non-object bodies
// all come back as bad-request.
func decodeObject(c *gin.Context, dst interface{}) *errors.APIError {
	raw, apiErr := readObjectBody(c)
	if apiErr != nil {
		return apiErr
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errors.BadRequest("invalid request body")
	}
	return nil
}

// readObjectBody returns the raw body after verifying it parses as a JSON
// object. Used directly by the events endpoint, which accepts two shapes.
func readObjectBody(c *gin.Context) ([]byte, *errors.APIError) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if stderrors.As(err, &maxErr) {
			return nil, errors.BadRequest("request body too large")
		}
		return nil, errors.BadRequest("could not read request body")
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errors.BadRequest("request body must be a JSON object")
	}
	if !json.Valid(trimmed) {
		return nil, errors.BadRequest("invalid request body")
	}
	return trimmed, nil
}

// respondError translates an error into the wire error shape. Unknown
// errors are logged with detail and surfaced as a generic server error.
func respondError(c *gin.Context, err error) {
	apiErr, ok := errors.AsAPIError(err)
	if !ok {
		logger.ErrorWithFields("request failed", err)
		apiErr = errors.InternalError("")
	}
	c.JSON(apiErr.Status, gin.H{
		"ok":    false,
		"error": apiErr,
	})
}

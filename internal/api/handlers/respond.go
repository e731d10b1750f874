// Package handlers implements the HTTP endpoints for the setup gateway.
package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/tuttiud/platform/internal/apperr"
)

// respondError writes the shared error envelope. Classified errors expose
// their message and detail; anything else becomes a generic 500 so internal
// state never leaks to clients.
func respondError(c *gin.Context, logger zerolog.Logger, err error) {
	status := apperr.StatusOf(err)

	body := gin.H{"success": false}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		body["message"] = ae.Message
		body["code"] = string(ae.Kind)
		if ae.Detail != "" {
			body["details"] = ae.Detail
		}
	} else {
		body["message"] = "internal server error"
	}

	if status >= 500 {
		logger.Error().Err(err).Int("status", status).Msg("request failed")
	} else {
		logger.Debug().Err(err).Int("status", status).Msg("request rejected")
	}

	c.JSON(status, body)
}

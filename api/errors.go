package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/YDUTSEVOLDN/Subway/core/pipeline"
)

// statusOf maps pipeline errors to HTTP status codes.
func statusOf(err error) int {
	var window *pipeline.InvalidWindowError
	switch {
	case errors.As(err, &window):
		return http.StatusBadRequest
	case pipeline.IsUpstream(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		h.log.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func notConfigured(c *gin.Context, what string) {
	c.JSON(http.StatusNotImplemented, gin.H{"error": what + " not configured"})
}

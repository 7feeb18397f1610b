package http

import (
	"github.com/gin-gonic/gin"
)

type apiErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (h *APIHandler) writeJSONError(c *gin.Context, status int, message string, err error) {
	resp := apiErrorResponse{Error: message}
	if err != nil {
		h.logger.Error("HTTP %d - %s: %v", status, message, err)
		resp.Details = err.Error()
		_ = c.Error(err)
	} else {
		h.logger.Warn("HTTP %d - %s", status, message)
	}
	c.AbortWithStatusJSON(status, resp)
}

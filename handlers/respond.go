package handlers

import (
	"net/http"

	"casecounsel-backend/service"

	"github.com/gin-gonic/gin"
)

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// respondServiceError maps a stage error kind to an HTTP status
func respondServiceError(c *gin.Context, err error) {
	kind, _ := service.KindOf(err)
	switch kind {
	case service.KindInvalid:
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case service.KindAuthorization:
		respondError(c, http.StatusForbidden, "FORBIDDEN", "You do not have access to this case")
	case service.KindNotFound:
		respondError(c, http.StatusNotFound, "NOT_FOUND", "Case not found")
	case service.KindTransport, service.KindParse:
		respondError(c, http.StatusBadGateway, "UPSTREAM_ERROR", err.Error())
	default:
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

func respondOK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

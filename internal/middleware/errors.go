package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"homebuild/project-portal/project-portal-backend/pkg/apperrors"
)

// RespondError writes err using the apperrors taxonomy. Only unexpected
// failures are logged; the log carries the route, never the payload.
func RespondError(c *gin.Context, logger *zap.Logger, err error) {
	status := apperrors.HTTPStatus(err)
	switch apperrors.KindOf(err) {
	case apperrors.KindInternal:
		logger.Error("Request failed",
			zap.String("route", c.FullPath()),
			zap.String("request_id", RequestID(c)),
			zap.Error(err))
	case apperrors.KindStorageUnavailable:
		logger.Warn("Storage unavailable",
			zap.String("route", c.FullPath()),
			zap.String("request_id", RequestID(c)),
			zap.Error(err))
		c.Header("Retry-After", "1")
	}
	c.AbortWithStatusJSON(status, apperrors.Body(err))
}

// BadRequest rejects malformed transport input before it reaches a service.
func BadRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error": message,
		"code":  apperrors.KindValidation,
	})
}

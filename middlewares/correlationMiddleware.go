package middlewares

import (
	"bitbucket.org/mmdatafocus/hims_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CorrelationMiddleware tags every request with a correlation id, taken
// from the X-Correlation-Id header when the caller supplies one. The id
// flows through the request context onto stock transactions and logs, and
// is echoed back in the response.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationId := c.Request.Header.Get("X-Correlation-Id")
		if correlationId == "" {
			correlationId = uuid.NewString()
		}

		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), correlationId)
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set("X-Correlation-Id", correlationId)
		c.Next()
	}
}

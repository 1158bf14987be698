package middleware

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/01moynul/bookmarket-golang/internal/apperr"
)

// ErrorHandler turns the last error attached with c.Error into
// `{"error": {"message": ...}}`. Internal errors are logged with their cause
// and reported with a generic message.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err

		e, ok := apperr.As(err)
		if !ok {
			e = apperr.Internal(err)
		}
		switch e.Kind {
		case apperr.KindInternal:
			slog.Error("request failed",
				"method", c.Request.Method,
				"path", c.FullPath(),
				"req_id", c.GetString(ContextRequestID),
				"err", err,
			)
		case apperr.KindUnavailable:
			slog.Warn("dependency unavailable",
				"path", c.FullPath(),
				"req_id", c.GetString(ContextRequestID),
				"err", err,
			)
		}

		c.JSON(e.StatusCode(), gin.H{"error": gin.H{"message": e.Message}})
	}
}

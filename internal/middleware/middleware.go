// Package middleware holds the gin middleware shared by every route and
// the JSON error envelope handlers respond with.
package middleware

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atharvakonge/portfolio-ai/internal/apperrors"
)

const (
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	maxRequestIDLen = 64
)

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// WriteError aborts c with err rendered as {"error": {...}}. Internal
// errors get a generic message; their cause is only attached to the
// context for the request logger.
func WriteError(c *gin.Context, err error) {
	kind := apperrors.KindOf(err)
	body := errorBody{Code: kind.Code(), Message: "internal server error"}

	var appErr *apperrors.Error
	if kind != apperrors.KindInternal && errors.As(err, &appErr) {
		body.Message = appErr.Message
		body.Fields = appErr.Fields
	}
	if body.Message == "" {
		body.Message = kind.Code()
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(kind.Status(), gin.H{"error": body})
}

// RequestID echoes a caller-supplied X-Request-ID or generates one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Writer.Header().Set(RequestIDHeader, id)
		c.Next()
	}
}

// GetRequestID returns the id set by RequestID, or "".
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// Logger logs one line per request.
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", GetRequestID(c)),
		}
		if userID := UserID(c); userID != "" {
			fields = append(fields, zap.String("user_id", userID))
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			if len(c.Errors) > 0 {
				fields = append(fields, zap.Error(c.Errors.Last().Err))
			}
			logger.Error("http_request", fields...)
		case status >= 400:
			logger.Warn("http_request", fields...)
		default:
			logger.Info("http_request", fields...)
		}
	}
}

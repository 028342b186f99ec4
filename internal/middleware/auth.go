package middleware

import (
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/atharvakonge/portfolio-ai/internal/apperrors"
	"github.com/atharvakonge/portfolio-ai/internal/auth"
	"github.com/atharvakonge/portfolio-ai/internal/models"
)

const (
	UserIDHeader = "X-User-ID"
	userIDKey    = "user_id"
)

// Authenticate resolves the caller's user id. With a verifier it requires
// a bearer token; without one it trusts the X-User-ID header.
func Authenticate(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		var userID string
		if verifier != nil {
			token, err := auth.BearerToken(c.GetHeader("Authorization"))
			if err != nil {
				WriteError(c, apperrors.Unauthorized("missing bearer token"))
				return
			}
			userID, err = verifier.Verify(token)
			if err != nil {
				_ = c.Error(err)
				WriteError(c, apperrors.Unauthorized("invalid or expired token"))
				return
			}
		} else {
			userID = strings.TrimSpace(c.GetHeader(UserIDHeader))
			if userID == "" || utf8.RuneCountInString(userID) > models.MaxUserIDLength {
				WriteError(c, apperrors.Unauthorized("missing "+UserIDHeader+" header"))
				return
			}
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// UserID returns the id set by Authenticate, or "".
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

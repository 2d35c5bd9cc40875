package middlewares

import (
	"net/http"
	"strings"

	"bitbucket.org/mmdatafocus/hims_backend/utils"
	"github.com/gin-gonic/gin"
)

// SessionMiddleware resolves the caller from a Bearer token and records
// the identity in the request context. Requests without a token pass
// through anonymously; RequireUser gates the routes that must know who is
// calling.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")
		if auth == "" {
			c.Next()
			return
		}

		const bearer = "Bearer "
		if !strings.HasPrefix(auth, bearer) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		token := strings.TrimSpace(auth[len(bearer):])

		validated, err := utils.JwtValidate(token)
		if err != nil || !validated.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		claim, ok := validated.Claims.(*utils.JwtCustomClaim)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := utils.SetTokenInContext(c.Request.Context(), token)
		ctx = utils.SetUserIdInContext(ctx, claim.ID)
		ctx = utils.SetUsernameInContext(ctx, claim.Username)
		if claim.Role == "admin" {
			ctx = utils.SetIsAdminInContext(ctx, true)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireUser rejects requests that did not present a valid token.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUserIdFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAdmin gates the internal ops endpoints.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isAdmin, ok := utils.GetIsAdminFromContext(c.Request.Context()); !ok || !isAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			c.Abort()
			return
		}
		c.Next()
	}
}

package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"reveal-service/internal/auth"
	"reveal-service/internal/models"
)

const callerKey = "caller"

// RequireCaller rejects requests without a valid identity.
func RequireCaller(authenticator auth.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, err := authenticator.Authenticate(c.Request)
		if err != nil {
			if errors.Is(err, auth.ErrNoCredentials) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(callerKey, caller)
		c.Next()
	}
}

// OptionalCaller lets guests through, but still rejects credentials that fail validation.
func OptionalCaller(authenticator auth.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, err := authenticator.Authenticate(c.Request)
		switch {
		case err == nil:
			c.Set(callerKey, caller)
		case errors.Is(err, auth.ErrNoCredentials):
		default:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}

// CallerFrom returns the caller stored by the auth middleware, or a guest.
func CallerFrom(c *gin.Context) models.Caller {
	if v, ok := c.Get(callerKey); ok {
		if caller, ok := v.(models.Caller); ok {
			return caller
		}
	}
	return models.Caller{}
}

// SetCaller stores caller on the request context.
func SetCaller(c *gin.Context, caller models.Caller) {
	c.Set(callerKey, caller)
}

package handlers

import (
	"errors"
	"net/http"
	"time"

	"casecounsel-backend/auth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const uidKey = "uid"

// RequireAuth resolves the bearer token to a uid and stores it on the context
func RequireAuth(verifier auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
			c.Abort()
			return
		}

		uid, err := verifier.VerifyToken(c.Request.Context(), token)
		if err != nil {
			message := "Invalid or expired token"
			if !errors.Is(err, auth.ErrInvalidToken) {
				message = "Token verification failed"
			}
			respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", message)
			c.Abort()
			return
		}

		c.Set(uidKey, uid)
		c.Next()
	}
}

// CurrentUser returns the authenticated uid
func CurrentUser(c *gin.Context) string {
	return c.GetString(uidKey)
}

// RequestLogger logs one line per request
func RequestLogger(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Infow("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"uid", CurrentUser(c),
		)
	}
}

package middleware

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"relove/market/internal/captcha"
)

// CaptchaHeader carries the Turnstile challenge response from the frontend.
const CaptchaHeader = "X-Captcha-Token"

// VerifyHuman gates a route behind a Turnstile challenge. When no secret is
// configured the middleware is a no-op, so local development and tests run
// without a Cloudflare round trip.
func VerifyHuman(verifier captcha.IVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verifier == nil || !verifier.Enabled() {
			c.Next()
			return
		}

		token := c.GetHeader(CaptchaHeader)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Captcha token required"})
			return
		}

		ok, err := verifier.Verify(c.Request.Context(), token, c.ClientIP())
		if err != nil {
			log.Printf("WARN: captcha verification failed: %v", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Captcha verification unavailable"})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Captcha verification failed"})
			return
		}
		c.Next()
	}
}

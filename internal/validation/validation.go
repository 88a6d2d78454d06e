// Package validation provides request validation middleware for the HTTP API.
package validation

import (
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20

// idPattern matches the identifiers accepted in path parameters: prefixed
// ids ("res_…") and bare UUIDs alike.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// IDParams are the path parameters checked by IDParamMiddleware.
var IDParams = []string{"storeId", "reservationId", "customerId"}

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidID reports whether s is an acceptable identifier.
func IsValidID(s string) bool {
	return idPattern.MatchString(s)
}

// IDParamMiddleware rejects malformed identifiers in IDParams before they
// reach a handler. Absent parameters are ignored.
func IDParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, name := range IDParams {
			if v := c.Param(name); v != "" && !IsValidID(v) {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
					"error":   "invalid_" + name,
					"message": name + " must be 1-64 letters, digits, '_' or '-'",
				})
				return
			}
		}
		c.Next()
	}
}

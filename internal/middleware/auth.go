package middleware

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/wb-go/wbf/ginext"

	"github.com/pixmint/genapi/internal/api/respond"
)

// Auth guards endpoints with a single configured development bearer
// token. Anything other than an exact match is unauthenticated; the
// request is rejected before any task row can be created.
func Auth(token string) ginext.HandlerFunc {
	return func(c *ginext.Context) {
		header := c.GetHeader("Authorization")
		const prefix = "Bearer "

		if token == "" || !strings.HasPrefix(header, prefix) {
			respond.Fail(c, http.StatusUnauthorized, fmt.Errorf("unauthorized"))
			c.Abort()
			return
		}

		presented := strings.TrimPrefix(header, prefix)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			respond.Fail(c, http.StatusUnauthorized, fmt.Errorf("unauthorized"))
			c.Abort()
			return
		}

		c.Next()
	}
}

package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tablekeep/tablekeep/internal/pkg/errcode"
	"github.com/tablekeep/tablekeep/internal/pkg/jwt"
	"github.com/tablekeep/tablekeep/internal/pkg/response"
)

const ContextHolderIDKey = "holder_id"

// HolderAuth resolves the opaque holder identity minted by the external
// identity provider. Websocket clients cannot set headers, so the token is
// also accepted as a query parameter.
func HolderAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		header := c.GetHeader("Authorization")
		if header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				response.Error(c, http.StatusUnauthorized, errcode.ErrUnauthorized, "unauthorized", "invalid authorization")
				c.Abort()
				return
			}
			token = parts[1]
		} else {
			token = c.Query("token")
		}
		if token == "" {
			response.Error(c, http.StatusUnauthorized, errcode.ErrUnauthorized, "unauthorized", "missing authorization")
			c.Abort()
			return
		}
		claims, err := jwt.ParseToken(token, secret)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, errcode.ErrUnauthorized, "unauthorized", "invalid token")
			c.Abort()
			return
		}
		c.Set(ContextHolderIDKey, claims.HolderID)
		c.Next()
	}
}

package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"traffic-service/internal/auth"
)

const (
	claimsContextKey    = "tokenClaims"
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer"
)

// Auth requires a valid bearer token on the guarded routes. Authentication
// itself lives in an external service; this only validates its tokens.
func Auth(parser *auth.Parser) gin.HandlerFunc {
	return func(c *gin.Context) {
		rawHeader := c.GetHeader(authorizationHeader)
		if rawHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header missing"})
			return
		}

		parts := strings.SplitN(rawHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		claims, err := parser.Parse(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(claimsContextKey, claims)
		c.Next()
	}
}

func TokenClaims(c *gin.Context) (*auth.Claims, bool) {
	value, exists := c.Get(claimsContextKey)
	if !exists {
		return nil, false
	}

	claims, ok := value.(*auth.Claims)
	if !ok {
		return nil, false
	}

	return claims, true
}

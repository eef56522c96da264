package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/jengzang/forestwatch-backend-go/pkg/response"
)

// SubjectKey is the gin context key holding the authenticated subject
const SubjectKey = "subject"

var errMissingToken = errors.New("missing bearer token")

// Auth validates an HS256 bearer token signed with secret and stores its
// subject in the context. An empty secret disables the check.
func Auth(secret string) gin.HandlerFunc {
	if secret == "" {
		return func(c *gin.Context) { c.Next() }
	}
	key := []byte(secret)

	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || raw == "" {
			response.Error(c, http.StatusUnauthorized, "Unauthorized", errMissingToken)
			return
		}

		claims := &jwt.RegisteredClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			return key, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			response.Error(c, http.StatusUnauthorized, "Invalid token", err)
			return
		}

		c.Set(SubjectKey, claims.Subject)
		c.Next()
	}
}

// IssueToken signs a token for subject; used by tooling and tests
func IssueToken(secret, subject string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: subject})
	return token.SignedString([]byte(secret))
}

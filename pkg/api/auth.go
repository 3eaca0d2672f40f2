package api

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/kart-io/relayhub/pkg/config"
	"github.com/kart-io/relayhub/pkg/errors"
	"github.com/kart-io/relayhub/pkg/trigger"
)

// Claims carries the environment binding inside a JWT bearer token.
type Claims struct {
	jwt.RegisteredClaims
	OrganizationID string `json:"organizationId"`
	EnvironmentID  string `json:"environmentId"`
}

// GenerateToken signs a JWT bound to an organization/environment pair.
func GenerateToken(secret, organizationID, environmentID string) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "relayhub",
		},
		OrganizationID: organizationID,
		EnvironmentID:  environmentID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// Auth authenticates requests with either an environment API key
// ("ApiKey <key>") or a JWT bearer token ("Bearer <token>") and stores
// the resolved environment on the request context.
func Auth(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c, "authorization header is required")
			return
		}

		if key, found := strings.CutPrefix(header, "ApiKey "); found {
			bound, ok := cfg.EnvironmentForKey(key)
			if !ok {
				abortUnauthorized(c, "unknown api key")
				return
			}
			setEnvironment(c, bound.OrganizationID, bound.EnvironmentID)
			c.Next()
			return
		}

		if tokenString, found := strings.CutPrefix(header, "Bearer "); found {
			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
				return []byte(cfg.Auth.JWTSecret), nil
			})
			if err != nil || !token.Valid {
				abortUnauthorized(c, "invalid bearer token")
				return
			}
			if claims.OrganizationID == "" || claims.EnvironmentID == "" {
				abortUnauthorized(c, "token is missing its environment binding")
				return
			}
			setEnvironment(c, claims.OrganizationID, claims.EnvironmentID)
			c.Next()
			return
		}

		abortUnauthorized(c, "unsupported authorization scheme")
	}
}

func setEnvironment(c *gin.Context, organizationID, environmentID string) {
	c.Set("organizationId", organizationID)
	c.Set("environmentId", environmentID)
}

// environmentOf returns the environment binding the auth middleware
// resolved for this request.
func environmentOf(c *gin.Context) trigger.Environment {
	return trigger.Environment{
		OrganizationID: c.GetString("organizationId"),
		EnvironmentID:  c.GetString("environmentId"),
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	err := errors.New(errors.CodeUnauthorized, message)
	c.AbortWithStatusJSON(errors.HTTPStatus(err), errorBody(err))
}

package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const hostIDKey = "host_id"

// Authenticator verifies host bearer tokens. With an empty secret it lets every
// request through and handlers fall back to the host name as identity.
type Authenticator struct {
	secret []byte
	issuer string
}

func NewAuthenticator(secret, issuer string) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer}
}

func (a *Authenticator) Enabled() bool { return len(a.secret) > 0 }

// IssueToken signs a token for hostID, valid for ttl.
func (a *Authenticator) IssueToken(hostID string, ttl time.Duration) (string, error) {
	if !a.Enabled() {
		return "", errors.New("auth disabled: no jwt secret configured")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"host_id": hostID,
		"sub":     hostID,
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	}
	if a.issuer != "" {
		claims["iss"] = a.issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ValidateToken returns the host id carried by a valid token.
func (a *Authenticator) ValidateToken(raw string) (string, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid token claims")
	}
	if id, ok := claims["host_id"].(string); ok && id != "" {
		return id, nil
	}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub, nil
	}
	return "", errors.New("token carries no host identity")
}

// Middleware rejects requests without a valid bearer token and stores the host id.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.Enabled() {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "bearer token required", Code: CodeUnauthorized})
			return
		}
		hostID, err := a.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid or expired token", Code: CodeUnauthorized})
			return
		}
		c.Set(hostIDKey, hostID)
		c.Next()
	}
}

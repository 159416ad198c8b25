package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"ridecontract/internal/config"
	"ridecontract/internal/domain"
)

const callerContextKey = "rideContractCaller"

// ErrMissingCaller is returned when a request carries no caller identity.
var ErrMissingCaller = errors.New("missing caller identity")

// CallerClaims are the claims of a caller bearer token. The subject is the
// caller identity.
type CallerClaims struct {
	jwt.RegisteredClaims
}

// CallerAuthenticator resolves the identity of the caller of a request.
type CallerAuthenticator struct {
	secret []byte
	issuer string
	header string
}

// NewCallerAuthenticator creates a CallerAuthenticator. With a JWT secret it
// only trusts HS256 bearer tokens, otherwise it reads the caller header.
func NewCallerAuthenticator(cfg config.AuthConfig) *CallerAuthenticator {
	header := cfg.CallerHeader
	if header == "" {
		header = "X-Caller-ID"
	}
	return &CallerAuthenticator{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.JWTIssuer,
		header: header,
	}
}

// Identify returns the caller identity of r.
func (a *CallerAuthenticator) Identify(r *http.Request) (domain.Identity, error) {
	if len(a.secret) == 0 {
		caller := strings.TrimSpace(r.Header.Get(a.header))
		if caller == "" {
			return "", ErrMissingCaller
		}
		return domain.Identity(caller), nil
	}

	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return "", ErrMissingCaller
	}
	return a.parse(strings.TrimSpace(raw))
}

func (a *CallerAuthenticator) parse(raw string) (domain.Identity, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	var claims CallerClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return "", ErrMissingCaller
	}
	return domain.Identity(claims.Subject), nil
}

// CallerMiddleware rejects requests without a caller identity and stores the
// identity on the gin context.
func CallerMiddleware(auth *CallerAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, err := auth.Identify(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": err.Error(),
				"code":  "Unauthenticated",
			})
			return
		}
		c.Set(callerContextKey, caller)
		c.Next()
	}
}

// CallerIdentity returns the caller stored by CallerMiddleware.
func CallerIdentity(c *gin.Context) (domain.Identity, bool) {
	value, ok := c.Get(callerContextKey)
	if !ok {
		return "", false
	}
	caller, ok := value.(domain.Identity)
	return caller, ok && caller != ""
}

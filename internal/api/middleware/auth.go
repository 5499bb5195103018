// Package middleware provides HTTP middleware for the Gin router.
//
// Go Learning Note — Middleware Pattern (Gin):
// In Gin, middleware is any function with the signature `gin.HandlerFunc`, which
// is `func(*gin.Context)`. Middleware functions form a chain: each one runs,
// optionally calls c.Next() to pass control to the next handler, and can call
// c.Abort() to stop the chain. This is the "chain of responsibility" pattern.
//
// The chain used by the router is: request id → access log → recovery →
// metrics, then per group: authenticate → authorize → rate limit.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/limoline/dispatch/internal/domain/entities"
	"github.com/limoline/dispatch/internal/logging"
)

// CallerKey is the gin context key holding the authenticated entities.Caller.
const CallerKey = "caller"

// TokenAuthenticator resolves a bearer token. *auth.JWTManager satisfies it.
type TokenAuthenticator interface {
	Authenticate(token string) (entities.Caller, error)
}

// RouteAuthorizer decides whether a role may call a route. *auth.Authorizer
// satisfies it.
type RouteAuthorizer interface {
	Allowed(role entities.Role, path, method string) (bool, error)
}

// Authenticate validates the bearer token and stores the caller.
//
// Browsers cannot set headers on a websocket handshake, so a `token` query
// parameter is accepted as well.
//
// Go Learning Note — c.Abort():
// c.Abort() prevents subsequent handlers in the chain from running. Without it,
// even after writing an error response, the next handler would still execute.
// AbortWithStatusJSON writes the response and aborts in one call.
func Authenticate(tokens TokenAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or malformed authorization"})
			return
		}

		caller, err := tokens.Authenticate(token)
		if err != nil {
			logging.Ctx(c.Request.Context()).Debug().Err(err).Msg("token rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(CallerKey, caller)
		c.Next()
	}
}

// Authorize checks the caller's role against the route policy.
func Authorize(authz RouteAuthorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := CallerFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}

		allowed, err := authz.Allowed(caller.Role, c.Request.URL.Path, c.Request.Method)
		if err != nil {
			logging.Ctx(c.Request.Context()).Error().Err(err).Msg("authorization check failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "authorization unavailable"})
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": string(caller.Role) + " access not permitted"})
			return
		}
		c.Next()
	}
}

// CallerFrom returns the caller stored by Authenticate.
//
// Go Learning Note — Type Assertion:
// c.Get() returns (any, bool). The two-value form `v.(entities.Caller)`
// reports ok=false instead of panicking when the value has another type.
func CallerFrom(c *gin.Context) (entities.Caller, bool) {
	v, exists := c.Get(CallerKey)
	if !exists {
		return entities.Caller{}, false
	}
	caller, ok := v.(entities.Caller)
	return caller, ok
}

// GetCaller returns the authenticated caller. Only call it behind
// Authenticate.
func GetCaller(c *gin.Context) entities.Caller {
	caller, _ := CallerFrom(c)
	return caller
}

func bearerToken(c *gin.Context) (string, bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		// strings.SplitN splits into at most 2 parts, handling tokens with spaces.
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
			return "", false
		}
		return strings.TrimSpace(parts[1]), true
	}
	if token := c.Query("token"); token != "" {
		return token, true
	}
	return "", false
}

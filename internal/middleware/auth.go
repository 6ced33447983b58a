package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"

	"todaride/internal/domain"
)

const actorKey = "actor"

// Claims are the bearer token claims that identify an actor.
type Claims struct {
	Role     string `json:"role"`
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// Authenticate verifies an HS256 bearer token and stores the actor on the
// context. Requests without a valid token are rejected with 401.
func Authenticate(secret []byte, issuer string) gin.HandlerFunc {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	parser := jwt.NewParser(opts...)

	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortUnauthenticated(c, "missing bearer token")
			return
		}

		claims := &Claims{}
		_, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			return secret, nil
		})
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				abortUnauthenticated(c, "token expired")
				return
			}
			abortUnauthenticated(c, "invalid token")
			return
		}

		actor := domain.Actor{
			ID:       claims.Subject,
			Role:     domain.Role(claims.Role),
			TenantID: claims.TenantID,
		}
		if actor.ID == "" || actor.TenantID == "" || !actor.Role.Valid() {
			abortUnauthenticated(c, "token is missing actor claims")
			return
		}

		SetActor(c, actor)
		c.Next()
	}
}

// SetActor stores the actor on the request context.
func SetActor(c *gin.Context, actor domain.Actor) {
	c.Set(actorKey, actor)
	if txn := nrgin.Transaction(c); txn != nil {
		txn.AddAttribute("tenant_id", actor.TenantID)
		txn.AddAttribute("actor_role", string(actor.Role))
	}
}

// ActorFrom returns the actor stored by Authenticate.
func ActorFrom(c *gin.Context) (domain.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return domain.Actor{}, false
	}
	actor, ok := v.(domain.Actor)
	return actor, ok
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}

func abortUnauthenticated(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHENTICATED", "error": msg})
}

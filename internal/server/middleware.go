package server

import (
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/carebill/internal/actor"
	obscontext "github.com/smallbiznis/carebill/internal/observability/context"
	"go.uber.org/zap"
)

const (
	HeaderActorID   = "X-Actor-Id"
	HeaderActorRole = "X-Actor-Role"

	contextActorKey = "actor"
)

// RequireActor reads the caller identity set by the identity gateway.
// Identity is attribution only; permissions are checked by each service.
func (s *Server) RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderActorID))
		role := strings.TrimSpace(c.GetHeader(HeaderActorRole))
		if id == "" && role == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		a, err := actor.New(id, role)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		// system is reserved for in-process jobs and gateway intake
		if a.Role == actor.RoleSystem {
			AbortWithError(c, actor.ErrInvalidActor)
			return
		}
		c.Set(contextActorKey, a)
		c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), a.ID, string(a.Role)))
		c.Next()
	}
}

func actorFromContext(c *gin.Context) actor.Actor {
	if v, ok := c.Get(contextActorKey); ok {
		if a, ok := v.(actor.Actor); ok {
			return a
		}
	}
	return actor.Actor{}
}

// WebhookRateLimit throttles gateway callbacks per provider and client
// address. Redis failures let the request through.
func (s *Server) WebhookRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}
		res, err := s.limiter.Allow(c.Request.Context(), c.Param("provider"), c.ClientIP())
		if err != nil {
			s.log.Warn("webhook rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

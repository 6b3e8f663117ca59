package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lakeshoreswim/clubhouse/internal/authorization"
	memberdomain "github.com/lakeshoreswim/clubhouse/internal/member/domain"
	"github.com/lakeshoreswim/clubhouse/internal/metrics"
)

const principalKey = "clubhouse.principal"

// principal is the authenticated caller. Admin and kiosk principals come
// from shared bearer tokens; member principals authenticate with their
// personal access code and may only act on their own record.
type principal struct {
	role   string
	member *memberdomain.Member
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func (s *Server) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		switch {
		case s.cfg.AdminToken != "" && token == s.cfg.AdminToken:
			c.Set(principalKey, &principal{role: authorization.RoleAdmin})
		case s.cfg.KioskToken != "" && token == s.cfg.KioskToken:
			c.Set(principalKey, &principal{role: authorization.RoleKiosk})
		default:
			member, err := s.accessCodes.Validate(c.Request.Context(), token)
			if err != nil {
				AbortWithError(c, ErrUnauthorized)
				return
			}
			c.Set(principalKey, &principal{role: authorization.RoleMember, member: &member})
		}

		c.Next()
	}
}

func (s *Server) Authorize(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := currentPrincipal(c)
		if p == nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), p.role, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func currentPrincipal(c *gin.Context) *principal {
	value, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	p, ok := value.(*principal)
	if !ok {
		return nil
	}
	return p
}

// currentMember returns the member behind a member-role principal.
func currentMember(c *gin.Context) *memberdomain.Member {
	p := currentPrincipal(c)
	if p == nil {
		return nil
	}
	return p.member
}

func MetricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveHTTPRequest(
			c.Request.Method,
			route,
			strconv.Itoa(c.Writer.Status()),
			time.Since(start),
		)
	}
}

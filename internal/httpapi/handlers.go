package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/marketingkamdi24/Videoberatung-kamdi24/internal/auth"
	"github.com/marketingkamdi24/Videoberatung-kamdi24/internal/dispatch"
	"github.com/marketingkamdi24/Videoberatung-kamdi24/internal/rbac"
	"github.com/marketingkamdi24/Videoberatung-kamdi24/internal/reporting"
	"github.com/marketingkamdi24/Videoberatung-kamdi24/pkg/logger"
)

const headerAgentAccessKey = "X-Agent-Access-Key"

// DispatchQuery is the read-only view of the live dispatcher state.
type DispatchQuery interface {
	QueueInfo() dispatch.QueueInfo
	Agents() []dispatch.AgentView
	Stats() dispatch.Stats
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Dispatch DispatchQuery
	Auth     *auth.Manager
	Reports  *reporting.Service

	// AgentAccessKey guards token issuance. Empty disables the endpoint.
	AgentAccessKey string

	// Checks run on /healthz, keyed by dependency name.
	Checks map[string]func(context.Context) error

	Now func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// --- Health ---

func (h Handlers) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := gin.H{}
	for name, check := range h.Checks {
		if err := check(ctx); err != nil {
			logger.FromGin(c).Warn("health check failed", "dependency", name, "err", err)
			deps[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}
	body := gin.H{"status": "ok", "dependencies": deps}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	c.JSON(status, body)
}

// --- Live dispatcher state ---

func (h Handlers) GetQueue(c *gin.Context) {
	c.JSON(http.StatusOK, h.Dispatch.QueueInfo())
}

func (h Handlers) GetAgents(c *gin.Context) {
	c.JSON(http.StatusOK, h.Dispatch.Agents())
}

// GetStats returns live counters plus a summary of calls ended in [from, to).
// Both bounds are RFC 3339; the default window is the last 24 hours.
func (h Handlers) GetStats(c *gin.Context) {
	now := h.now()
	rng := reporting.TimeRange{From: now.Add(-24 * time.Hour), To: now}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC 3339"})
			return
		}
		rng.From = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC 3339"})
			return
		}
		rng.To = t
	}

	body := gin.H{"live": h.Dispatch.Stats(), "range": rng}
	if h.Reports != nil {
		summary, err := h.Reports.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
			Range:   rng,
			AgentID: c.Query("agent_id"),
		})
		if err != nil {
			h.reportError(c, err)
			return
		}
		loads, err := h.Reports.AgentLoads(c.Request.Context(), rng)
		if err != nil {
			h.reportError(c, err)
			return
		}
		body["calls"] = summary
		body["agents"] = loads
	}
	c.JSON(http.StatusOK, body)
}

func (h Handlers) reportError(c *gin.Context, err error) {
	if errors.Is(err, reporting.ErrInvalidRequest) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid time range"})
		return
	}
	logger.FromGin(c).Error("stats", "err", err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "stats unavailable"})
}

// --- Auth ---

type agentTokenRequest struct {
	AgentID string `json:"agentId"`
	Name    string `json:"name"`
	Role    string `json:"role"`
}

// IssueAgentToken issues a JWT pair for the agent console. The caller proves
// itself with the shared agent access key.
func (h Handlers) IssueAgentToken(c *gin.Context) {
	if h.Auth == nil || h.AgentAccessKey == "" {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "token issuance disabled"})
		return
	}
	key := c.GetHeader(headerAgentAccessKey)
	if subtle.ConstantTimeCompare([]byte(key), []byte(h.AgentAccessKey)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid access key"})
		return
	}

	var req agentTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.AgentID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "agentId required"})
		return
	}
	if req.Role == "" {
		req.Role = rbac.RoleAgent
	}
	if !rbac.IsKnownRole(req.Role) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
		return
	}

	pair, err := h.Auth.IssuePair(h.now(), req.AgentID, req.Name, req.Role)
	if err != nil {
		logger.FromGin(c).Error("issue agent token", "agent_id", req.AgentID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	Role         string `json:"role"`
}

// RefreshAgentToken trades a refresh token for a new pair. Refresh tokens
// carry no role, so elevating to supervisor still needs the access key.
func (h Handlers) RefreshAgentToken(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "token issuance disabled"})
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "refresh_token required"})
		return
	}
	role := rbac.RoleAgent
	if req.Role == rbac.RoleSupervisor {
		key := c.GetHeader(headerAgentAccessKey)
		if h.AgentAccessKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.AgentAccessKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "supervisor role requires access key"})
			return
		}
		role = rbac.RoleSupervisor
	}

	pair, err := h.Auth.Refresh(req.RefreshToken, role, h.now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

// Convenience middleware bundles.

// RequireAgent returns the middleware chain for agent-only views, or nothing
// when m is nil (token auth disabled).
func RequireAgent(m *auth.Manager) []gin.HandlerFunc {
	if m == nil {
		return nil
	}
	return []gin.HandlerFunc{auth.RequireAccessToken(m), rbac.RequireAnyRole(rbac.RoleAgent)}
}

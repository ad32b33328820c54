package main

import (
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/marketingkamdi24/Videoberatung-kamdi24/internal/httpapi"
	"github.com/marketingkamdi24/Videoberatung-kamdi24/internal/realtime"
)

const realtimePrefix = "/realtime"

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, realtime http.Handler, agentMW []gin.HandlerFunc, publicDir string) {
	// public
	r.GET("/healthz", h.Health)

	// SockJS owns everything below the prefix (info, websocket, xhr fallbacks).
	r.Any(realtimePrefix+"/*any", realtimeHandler(realtime))

	api := r.Group("/api")
	{
		api.GET("/queue", h.GetQueue)

		authGroup := api.Group("/auth")
		{
			authGroup.POST("/agent-token", h.IssueAgentToken)
			authGroup.POST("/refresh", h.RefreshAgentToken)
		}

		// Agent views: bearer token + agent role when token auth is required.
		agents := api.Group("", agentMW...)
		{
			agents.GET("/agents", h.GetAgents)
			agents.GET("/stats", h.GetStats)
		}
	}

	if publicDir != "" {
		r.StaticFile("/agent", filepath.Join(publicDir, "agent.html"))
		files := http.FileServer(http.Dir(publicDir))
		r.NoRoute(gin.WrapH(files))
	}
}

// realtimeHandler hands the request to SockJS with the client IP resolved by
// gin (trusted proxies only) attached to the context.
func realtimeHandler(h http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := realtime.WithClientIP(c.Request.Context(), c.ClientIP())
		h.ServeHTTP(c.Writer, c.Request.WithContext(ctx))
	}
}

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/marketingkamdi24/Videoberatung-kamdi24/internal/auth"
	"github.com/marketingkamdi24/Videoberatung-kamdi24/internal/calls"
	"github.com/marketingkamdi24/Videoberatung-kamdi24/internal/config"
	"github.com/marketingkamdi24/Videoberatung-kamdi24/internal/dispatch"
	"github.com/marketingkamdi24/Videoberatung-kamdi24/internal/reporting"
)

var testNow = time.Unix(1700000000, 0).UTC()

type stubQuery struct{}

func (stubQuery) QueueInfo() dispatch.QueueInfo {
	return dispatch.QueueInfo{
		Queue:           []dispatch.QueueEntry{{ID: "c1", Name: "Alice", Position: 1}},
		Total:           1,
		AvailableAgents: 0,
	}
}

func (stubQuery) Agents() []dispatch.AgentView {
	return []dispatch.AgentView{{ID: "bob", Name: "Bob", Status: dispatch.AgentStatusBusy, CurrentCall: "call-1"}}
}

func (stubQuery) Stats() dispatch.Stats {
	return dispatch.Stats{Waiting: 1, ActiveCalls: 1}
}

func newAuth(t *testing.T) *auth.Manager {
	t.Helper()
	m, err := auth.NewManager(config.AuthConfig{
		JWTSecret:       "secret",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
	})
	require.NoError(t, err)
	m.Now = func() time.Time { return testNow }
	return m
}

func newRouter(h Handlers, protect []gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/healthz", h.Health)
	api := r.Group("/api")
	api.GET("/queue", h.GetQueue)
	api.POST("/auth/agent-token", h.IssueAgentToken)
	api.POST("/auth/refresh", h.RefreshAgentToken)
	agents := api.Group("", protect...)
	agents.GET("/agents", h.GetAgents)
	agents.GET("/stats", h.GetStats)
	return r
}

func do(r http.Handler, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGetQueue(t *testing.T) {
	r := newRouter(Handlers{Dispatch: stubQuery{}}, nil)
	w := do(r, http.MethodGet, "/api/queue", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var info dispatch.QueueInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	require.Equal(t, 1, info.Total)
	require.Equal(t, "Alice", info.Queue[0].Name)
}

func TestGetAgents_OpenWithoutAuth(t *testing.T) {
	r := newRouter(Handlers{Dispatch: stubQuery{}}, RequireAgent(nil))
	w := do(r, http.MethodGet, "/api/agents", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"currentCall":"call-1"`)
}

func TestGetAgents_RequiresToken(t *testing.T) {
	m := newAuth(t)
	r := newRouter(Handlers{Dispatch: stubQuery{}, Auth: m}, RequireAgent(m))

	w := do(r, http.MethodGet, "/api/agents", nil, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	pair, err := m.IssuePair(testNow, "bob", "Bob", "agent")
	require.NoError(t, err)
	w = do(r, http.MethodGet, "/api/agents", nil, map[string]string{"Authorization": "Bearer " + pair.AccessToken})
	require.Equal(t, http.StatusOK, w.Code)

	// refresh tokens are not access tokens
	w = do(r, http.MethodGet, "/api/agents", nil, map[string]string{"Authorization": "Bearer " + pair.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestIssueAgentToken(t *testing.T) {
	m := newAuth(t)
	h := Handlers{Dispatch: stubQuery{}, Auth: m, AgentAccessKey: "k3y", Now: func() time.Time { return testNow }}
	r := newRouter(h, nil)

	w := do(r, http.MethodPost, "/api/auth/agent-token", agentTokenRequest{AgentID: "bob"}, map[string]string{headerAgentAccessKey: "wrong"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodPost, "/api/auth/agent-token", agentTokenRequest{Name: "Bob"}, map[string]string{headerAgentAccessKey: "k3y"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/auth/agent-token", agentTokenRequest{AgentID: "bob", Role: "root"}, map[string]string{headerAgentAccessKey: "k3y"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/auth/agent-token", agentTokenRequest{AgentID: "bob", Name: "Bob"}, map[string]string{headerAgentAccessKey: "k3y"})
	require.Equal(t, http.StatusOK, w.Code)

	var pair auth.TokenPair
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pair))
	claims, err := m.Verify(pair.AccessToken, auth.TokenTypeAccess, testNow)
	require.NoError(t, err)
	require.Equal(t, "bob", claims.AgentID)
	require.Equal(t, "agent", claims.Role)
}

func TestIssueAgentToken_DisabledWithoutKey(t *testing.T) {
	r := newRouter(Handlers{Dispatch: stubQuery{}, Auth: newAuth(t)}, nil)
	w := do(r, http.MethodPost, "/api/auth/agent-token", agentTokenRequest{AgentID: "bob"}, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRefreshAgentToken(t *testing.T) {
	m := newAuth(t)
	h := Handlers{Dispatch: stubQuery{}, Auth: m, AgentAccessKey: "k3y", Now: func() time.Time { return testNow }}
	r := newRouter(h, nil)
	pair, err := m.IssuePair(testNow, "bob", "Bob", "agent")
	require.NoError(t, err)

	w := do(r, http.MethodPost, "/api/auth/refresh", refreshRequest{RefreshToken: pair.RefreshToken}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodPost, "/api/auth/refresh", refreshRequest{RefreshToken: pair.RefreshToken, Role: "supervisor"}, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = do(r, http.MethodPost, "/api/auth/refresh", refreshRequest{RefreshToken: pair.AccessToken}, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetStats(t *testing.T) {
	repo := calls.NewMemoryRepo(0)
	require.NoError(t, repo.Save(context.Background(), calls.Record{
		CallID: "c1", AgentIDs: []string{"bob", "carol"}, Type: dispatch.CallTypeVideo,
		EndedAt: testNow.Add(-time.Hour), DurationSeconds: 120, WaitSeconds: 30, EndReason: dispatch.EndReasonHangup,
	}))
	h := Handlers{Dispatch: stubQuery{}, Reports: reporting.NewService(repo), Now: func() time.Time { return testNow }}
	r := newRouter(h, nil)

	w := do(r, http.MethodGet, "/api/stats", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Live   dispatch.Stats         `json:"live"`
		Calls  reporting.CallsSummary `json:"calls"`
		Agents []reporting.AgentLoad  `json:"agents"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, 1, body.Live.Waiting)
	require.Equal(t, 1, body.Calls.TotalCalls)
	require.Equal(t, 1, body.Calls.ConferenceCalls)
	require.Equal(t, 30, body.Calls.AverageWaitSeconds)
	require.Len(t, body.Agents, 2)

	w = do(r, http.MethodGet, "/api/stats?from=yesterday", nil, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/api/stats?from=2023-11-14T00:00:00Z&to=2023-11-13T00:00:00Z", nil, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	h := Handlers{Dispatch: stubQuery{}, Checks: map[string]func(context.Context) error{
		"postgres": func(context.Context) error { return nil },
	}}
	w := do(newRouter(h, nil), http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"postgres":"ok"`)

	h.Checks["redis"] = func(context.Context) error { return errors.New("refused") }
	w = do(newRouter(h, nil), http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Contains(t, w.Body.String(), `"redis":"down"`)
}

package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestNew_LevelByEnv(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter("production", &buf).Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug must be off in production")
	}
	NewWithWriter("dev", &buf).Debug("shown")
	if !strings.Contains(buf.String(), `"msg":"shown"`) {
		t.Fatalf("expected debug line in dev, got %q", buf.String())
	}
}

func TestFrom_FallsBackToDefault(t *testing.T) {
	if From(context.Background()) != slog.Default() {
		t.Fatalf("expected default logger")
	}
	l := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	if From(With(context.Background(), l)) != l {
		t.Fatalf("expected stored logger")
	}
}

func newRouter(buf *bytes.Buffer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware(NewWithWriter("dev", buf), "/realtime"))
	r.GET("/api/queue", func(c *gin.Context) {
		if From(c.Request.Context()) != FromGin(c) {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusOK)
	})
	r.GET("/realtime/*any", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestMiddleware_LogsRequestWithRequestID(t *testing.T) {
	var buf bytes.Buffer
	r := newRouter(&buf)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/queue", nil)
	req.Header.Set(headerRequestID, "rid-1")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Header().Get(headerRequestID) != "rid-1" {
		t.Fatalf("expected request id echoed")
	}
	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["request_id"] != "rid-1" || line["path"] != "/api/queue" || line["status"] != float64(200) {
		t.Fatalf("unexpected log line %v", line)
	}
}

func TestMiddleware_SkipsRealtime(t *testing.T) {
	var buf bytes.Buffer
	r := newRouter(&buf)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/realtime/info", nil))

	if w.Header().Get(headerRequestID) == "" {
		t.Fatalf("expected generated request id")
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no summary for realtime, got %q", buf.String())
	}
}

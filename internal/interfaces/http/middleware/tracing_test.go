package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/waterbill/backend/internal/infrastructure/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTracedEngine(t *testing.T) (*gin.Engine, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(t.Context()) })

	cfg := DefaultTracingConfig()
	cfg.TracerProvider = tp

	engine := gin.New()
	engine.Use(logger.RequestID(zap.NewNop()), Tracing(cfg), SpanErrorMarker())
	engine.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	engine.GET("/ops/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	engine.GET("/ops/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	engine.GET("/ops/broken", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
	return engine, recorder
}

func serve(engine *gin.Engine, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestTracing_RecordsSpanWithRequestID(t *testing.T) {
	engine, recorder := newTracedEngine(t)

	w := serve(engine, "/ops/ok", map[string]string{logger.RequestIDHeader: "req-42"})
	assert.Equal(t, http.StatusOK, w.Code)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Contains(t, spans[0].Attributes(), attribute.String("request_id", "req-42"))
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
}

func TestTracing_SkipsHealthChecks(t *testing.T) {
	engine, recorder := newTracedEngine(t)

	serve(engine, "/health", nil)
	assert.Empty(t, recorder.Ended())
}

func TestSpanErrorMarker(t *testing.T) {
	tests := []struct {
		path   string
		status int
	}{
		{"/ops/missing", http.StatusNotFound},
		{"/ops/broken", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			engine, recorder := newTracedEngine(t)
			serve(engine, tt.path, nil)

			spans := recorder.Ended()
			require.Len(t, spans, 1)
			assert.Equal(t, codes.Error, spans[0].Status().Code)
			assert.Contains(t, spans[0].Attributes(), attribute.Int("http.status_code", tt.status))
		})
	}
}

func TestTracing_Disabled(t *testing.T) {
	engine := gin.New()
	engine.Use(Tracing(TracingConfig{Enabled: false}))
	engine.GET("/ops/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(engine, "/ops/ok", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromOr(t *testing.T) {
	fallback := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	stored := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	assert.Same(t, fallback, FromOr(context.Background(), fallback))
	assert.Same(t, stored, FromOr(With(context.Background(), stored), fallback))
	assert.Same(t, slog.Default(), From(context.Background()))
}

func TestMiddleware_LogsRequestSummary(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	r := gin.New()
	r.Use(Middleware(NewWriter(&buf, "production")))
	r.GET("/v1/bills/:id", func(c *gin.Context) {
		c.Set("user_id", "ops")
		c.Set("role", "operator")
		FromGin(c).Debug("hidden at info level")
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "bill not found"})
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/bills/b-1", nil)
	req.Header.Set(headerRequestID, "rid-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "rid-1", w.Header().Get(headerRequestID))

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line), buf.String())
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "rid-1", line["request_id"])
	assert.Equal(t, "/v1/bills/:id", line["path"])
	assert.Equal(t, "ops", line["user_id"])
	assert.Equal(t, "billing-api", line["service"])
	assert.EqualValues(t, http.StatusNotFound, line["status"])
}

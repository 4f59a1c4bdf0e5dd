package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newLoggedEngine(t *testing.T) (*gin.Engine, *observer.ObservedLogs) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	core, logs := observer.New(zap.InfoLevel)
	engine := gin.New()
	engine.Use(Logger(zap.New(core)))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/api/instances/:id/loop/state", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{})
	})
	engine.GET("/boom", func(c *gin.Context) {
		_ = c.Error(errors.New("kaput"))
		c.JSON(http.StatusInternalServerError, gin.H{})
	})

	return engine, logs
}

func TestLoggerSkipsHealthProbes(t *testing.T) {
	engine, logs := newLoggedEngine(t)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, logs.Len())
}

func TestLoggerRecordsInstanceParam(t *testing.T) {
	engine, logs := newLoggedEngine(t)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/instances/inst-1/loop/state?limit=10", nil))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zap.InfoLevel, entry.Level)
	assert.Equal(t, "http_request", entry.Message)

	fields := entry.ContextMap()
	assert.Equal(t, "inst-1", fields["instance_id"])
	assert.Equal(t, "/api/instances/inst-1/loop/state", fields["path"])
	assert.Equal(t, "limit=10", fields["query"])
	assert.EqualValues(t, http.StatusOK, fields["status"])
}

func TestLoggerEscalatesHandlerErrors(t *testing.T) {
	engine, logs := newLoggedEngine(t)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zap.ErrorLevel, entry.Level)
	assert.Contains(t, entry.ContextMap()["errors"], "kaput")
}

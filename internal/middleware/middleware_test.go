package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"

	"warnet/backend/internal/lib/sl"
	"warnet/backend/internal/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRateLimitPerClient(t *testing.T) {
	engine := gin.New()
	engine.Use(middleware.RateLimit(rate.Limit(0.001), 2))
	engine.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	call := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = ip + ":1234"
		recorder := httptest.NewRecorder()
		engine.ServeHTTP(recorder, req)
		return recorder.Code
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1"))
	assert.Equal(t, http.StatusOK, call("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1"))
	assert.Equal(t, http.StatusOK, call("10.0.0.2"))
}

func TestRequestLoggerObservesRoute(t *testing.T) {
	var gotRoute string
	var gotStatus int
	engine := gin.New()
	engine.Use(middleware.RequestLogger(sl.Discard(), func(method, route string, status int, _ time.Duration) {
		gotRoute = route
		gotStatus = status
	}))
	engine.GET("/api/sessions/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	recorder := httptest.NewRecorder()
	engine.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/sessions/abc", nil))

	assert.Equal(t, "/api/sessions/:id", gotRoute)
	assert.Equal(t, http.StatusNotFound, gotStatus)
}

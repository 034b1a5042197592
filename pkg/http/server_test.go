package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type routes func(e *echo.Echo)

func (r routes) RegisterRoutes(e *echo.Echo) { r(e) }

// deadlineRoutes reports whether each request context carried a deadline.
func deadlineRoutes() routes {
	report := func(c echo.Context) error {
		_, ok := c.Request().Context().Deadline()
		return c.JSON(http.StatusOK, map[string]bool{"deadline": ok})
	}
	return func(e *echo.Echo) {
		e.GET("/api/prices/forecast", report)
		e.GET("/ws/events", report)
		e.GET("/boom", func(echo.Context) error { panic("boom") })
	}
}

func serve(t *testing.T, s *Server, method, target string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServerCORSAllowsConfiguredOrigins(t *testing.T) {
	s := NewServer([]Handler{deadlineRoutes()}, WithCORS([]string{"https://desk.example"}), WithMetricsPath(""))

	rec := serve(t, s, http.MethodOptions, "/api/prices/forecast", map[string]string{
		echo.HeaderOrigin:                     "https://desk.example",
		echo.HeaderAccessControlRequestMethod: http.MethodGet,
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://desk.example", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Contains(t, rec.Header().Get(echo.HeaderAccessControlAllowMethods), http.MethodPost)
	assert.NotContains(t, rec.Header().Get(echo.HeaderAccessControlAllowMethods), http.MethodDelete)

	rec = serve(t, s, http.MethodGet, "/api/prices/forecast", map[string]string{echo.HeaderOrigin: "https://evil.example"})
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func TestServerWithoutCORSSendsNoHeaders(t *testing.T) {
	s := NewServer([]Handler{deadlineRoutes()}, WithMetricsPath(""))
	rec := serve(t, s, http.MethodGet, "/api/prices/forecast", map[string]string{echo.HeaderOrigin: "https://desk.example"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func TestServerRequestTimeoutSkipsStreams(t *testing.T) {
	s := NewServer([]Handler{deadlineRoutes()}, WithRequestTimeout(5*time.Second), WithMetricsPath(""))

	rec := serve(t, s, http.MethodGet, "/api/prices/forecast", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deadline":true}`, rec.Body.String())

	rec = serve(t, s, http.MethodGet, "/ws/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deadline":false}`, rec.Body.String())
}

func TestServerExposesMetricsPath(t *testing.T) {
	s := NewServer([]Handler{deadlineRoutes()}, WithMetricsPath("/internal/metrics"))

	serve(t, s, http.MethodGet, "/api/prices/forecast", nil)
	rec := serve(t, s, http.MethodGet, "/internal/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `shrimpcast_http_requests_total{method="GET",route="/api/prices/forecast",status="200"}`)

	assert.Equal(t, http.StatusNotFound, serve(t, s, http.MethodGet, "/metrics", nil).Code)
}

func TestServerRecoversPanics(t *testing.T) {
	s := NewServer([]Handler{deadlineRoutes()}, WithMetricsPath(""))
	rec := serve(t, s, http.MethodGet, "/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"

	"production-tracker-backend/internal/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestCache_ServesRepeatsAndFlushesOnWrite(t *testing.T) {
	rc := NewResponseCache(time.Minute)
	hits := 0

	r := gin.New()
	r.Use(rc.Middleware())
	r.GET("/machines", func(c *gin.Context) {
		hits++
		c.JSON(http.StatusOK, gin.H{"hits": hits})
	})
	r.POST("/machines/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/broken", func(c *gin.Context) { c.Status(http.StatusBadRequest) })

	first := serve(r, http.MethodGet, "/machines")
	second := serve(r, http.MethodGet, "/machines")
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, "application/json; charset=utf-8", second.Header().Get("Content-Type"))
	assert.Equal(t, 1, hits)

	serve(r, http.MethodPost, "/broken")
	serve(r, http.MethodGet, "/machines")
	assert.Equal(t, 1, hits)

	serve(r, http.MethodPost, "/machines/ping")
	third := serve(r, http.MethodGet, "/machines")
	assert.JSONEq(t, `{"hits": 2}`, third.Body.String())
}

func TestCache_DropsResponsesOverlappingAWrite(t *testing.T) {
	rc := NewResponseCache(time.Minute)
	hits := 0

	r := gin.New()
	r.Use(rc.Middleware())
	r.POST("/machines/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/machines", func(c *gin.Context) {
		hits++
		stale := hits
		if hits == 1 {
			// A write lands after this read loaded its data.
			serve(r, http.MethodPost, "/machines/ping")
		}
		c.JSON(http.StatusOK, gin.H{"hits": stale})
	})

	first := serve(r, http.MethodGet, "/machines")
	assert.JSONEq(t, `{"hits": 1}`, first.Body.String())

	second := serve(r, http.MethodGet, "/machines")
	assert.Empty(t, second.Header().Get("X-Cache"))
	assert.JSONEq(t, `{"hits": 2}`, second.Body.String())

	third := serve(r, http.MethodGet, "/machines")
	assert.Equal(t, "HIT", third.Header().Get("X-Cache"))
	assert.Equal(t, 2, hits)
}

func TestCache_SkipsFailures(t *testing.T) {
	rc := NewResponseCache(time.Minute)
	calls := 0

	r := gin.New()
	r.Use(rc.Middleware())
	r.GET("/missing", func(c *gin.Context) {
		calls++
		c.Status(http.StatusNotFound)
	})

	serve(r, http.MethodGet, "/missing")
	serve(r, http.MethodGet, "/missing")
	assert.Equal(t, 2, calls)
}

func TestCache_UncachedRoutesAndQueryOrder(t *testing.T) {
	rc := NewResponseCache(time.Minute, "/machines/logged-in")
	loggedIn, search := 0, 0

	r := gin.New()
	r.Use(rc.Middleware())
	r.GET("/machines/logged-in", func(c *gin.Context) {
		loggedIn++
		c.JSON(http.StatusOK, gin.H{"calls": loggedIn})
	})
	r.GET("/machines", func(c *gin.Context) {
		search++
		c.JSON(http.StatusOK, gin.H{"calls": search})
	})

	serve(r, http.MethodGet, "/machines/logged-in")
	w := serve(r, http.MethodGet, "/machines/logged-in")
	assert.Empty(t, w.Header().Get("X-Cache"))
	assert.Equal(t, 2, loggedIn)

	serve(r, http.MethodGet, "/machines?q=press&limit=5")
	w = serve(r, http.MethodGet, "/machines?limit=5&q=press")
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.Equal(t, 1, search)

	rc.Flush()
	serve(r, http.MethodGet, "/machines?q=press&limit=5")
	assert.Equal(t, 2, search)
}

func TestRateLimiter(t *testing.T) {
	r := gin.New()
	r.Use(RateLimiter(rate.Every(time.Hour), 2))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, http.MethodGet, "/").Code)
}

func TestIPRateLimiter_SeparatesClients(t *testing.T) {
	l := NewIPRateLimiter(rate.Every(time.Hour), 1)
	assert.True(t, l.GetLimiter("10.0.0.1").Allow())
	assert.False(t, l.GetLimiter("10.0.0.1").Allow())
	assert.True(t, l.GetLimiter("10.0.0.2").Allow())
	assert.Same(t, l.GetLimiter("10.0.0.1"), l.GetLimiter("10.0.0.1"))
}

func TestRequestLogger_PassesThrough(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger(logger.Nop()))
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	assert.Equal(t, http.StatusInternalServerError, serve(r, http.MethodGet, "/boom").Code)
}

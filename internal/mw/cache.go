package mw

import (
	"bytes"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

type cachedResponse struct {
	status  int
	headers http.Header
	body    []byte
}

// recordingWriter copies everything written to the client into body.
type recordingWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w recordingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w recordingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// ResponseCache keeps 200 responses to GET requests until they expire or any
// write request succeeds.
type ResponseCache struct {
	store *cache.Cache
	ttl   time.Duration
	skip  map[string]bool

	// gen counts flushes. A response is only stored if no flush happened
	// while its handler ran.
	mu  sync.Mutex
	gen uint64
}

// NewResponseCache builds a cache holding entries for ttl. Routes listed in
// uncached (gin route patterns) always reach their handler, for reads whose
// answer changes without a write going through the API.
func NewResponseCache(ttl time.Duration, uncached ...string) *ResponseCache {
	skip := make(map[string]bool, len(uncached))
	for _, route := range uncached {
		skip[route] = true
	}
	return &ResponseCache{store: cache.New(ttl, 2*ttl), ttl: ttl, skip: skip}
}

// Flush drops every cached response.
func (rc *ResponseCache) Flush() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.gen++
	rc.store.Flush()
}

func (rc *ResponseCache) generation() uint64 {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.gen
}

// setIfCurrent stores resp unless the cache was flushed since gen was read.
func (rc *ResponseCache) setIfCurrent(gen uint64, key string, resp cachedResponse) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.gen != gen {
		return
	}
	rc.store.Set(key, resp, rc.ttl)
}

func cacheKey(c *gin.Context) string {
	return c.Request.URL.Path + "?" + c.Request.URL.Query().Encode()
}

// Middleware serves cached GET responses and flushes the cache after
// successful writes.
func (rc *ResponseCache) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			if status := c.Writer.Status(); status >= 200 && status < 300 {
				rc.Flush()
			}
			return
		}
		if rc.skip[c.FullPath()] {
			c.Next()
			return
		}

		key := cacheKey(c)
		if v, found := rc.store.Get(key); found {
			hit := v.(cachedResponse)
			header := c.Writer.Header()
			for k, vals := range hit.headers {
				header[k] = vals
			}
			header.Set("X-Cache", "HIT")
			c.Writer.WriteHeader(hit.status)
			_, _ = c.Writer.Write(hit.body)
			c.Abort()
			return
		}

		gen := rc.generation()
		rec := recordingWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = rec
		c.Next()

		if rec.Status() == http.StatusOK {
			rc.setIfCurrent(gen, key, cachedResponse{
				status:  http.StatusOK,
				headers: rec.Header().Clone(),
				body:    rec.body.Bytes(),
			})
		}
	}
}

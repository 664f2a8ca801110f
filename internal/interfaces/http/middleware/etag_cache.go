package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// bodyCacheWriter is a custom gin.ResponseWriter that intercepts and buffers the response body.
// bodyCacheWriter 拦截并缓存响应正文，以便在发送前计算哈希。
type bodyCacheWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *bodyCacheWriter) Write(b []byte) (int, error) {
	return w.body.Write(b)
}

func (w *bodyCacheWriter) WriteString(s string) (int, error) {
	return w.body.WriteString(s)
}

// ETagCache returns a Gin middleware that derives a strong ETag from the first 16 hex characters of the
// SHA-256 of a 200 GET body and answers a matching If-None-Match with 304.
// ETagCache 对 GET 响应计算 ETag，命中 If-None-Match 时返回 304。
func ETagCache(maxAge time.Duration) gin.HandlerFunc {
	cacheControl := fmt.Sprintf("public, max-age=%d", int(maxAge.Seconds()))
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		bcw := &bodyCacheWriter{body: &bytes.Buffer{}, ResponseWriter: c.Writer}
		c.Writer = bcw
		c.Next()
		c.Writer = bcw.ResponseWriter

		body := bcw.body.Bytes()
		if c.Writer.Status() != http.StatusOK || len(body) == 0 {
			_, _ = bcw.ResponseWriter.Write(body)
			return
		}

		sum := sha256.Sum256(body)
		etag := hex.EncodeToString(sum[:])[:16]
		c.Header("ETag", `"`+etag+`"`)
		c.Header("Cache-Control", cacheControl)
		c.Header("Vary", "Accept-Encoding")
		if ETagMatches(c.GetHeader("If-None-Match"), etag) {
			c.Writer.WriteHeader(http.StatusNotModified)
			c.Writer.WriteHeaderNow()
			return
		}
		_, _ = bcw.ResponseWriter.Write(body)
	}
}

// ETagMatches reports whether an If-None-Match header names etag. Weak and list forms are accepted.
func ETagMatches(header, etag string) bool {
	if header == "" || etag == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" {
			return true
		}
		candidate = strings.TrimPrefix(candidate, "W/")
		if strings.Trim(candidate, `"`) == etag {
			return true
		}
	}
	return false
}

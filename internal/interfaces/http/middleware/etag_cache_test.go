package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestETagCache(t *testing.T) {
	r := gin.New()
	r.Use(ETagCache(5 * time.Minute))
	r.GET("/did.json", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"id": "did:web:example.org"}) })
	r.GET("/fail", func(c *gin.Context) { c.JSON(http.StatusNotFound, gin.H{"error": "not_found"}) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/did.json", nil))
	require.Equal(t, http.StatusOK, w.Code)
	etag := w.Header().Get("ETag")
	assert.Regexp(t, `^"[0-9a-f]{16}"$`, etag)
	assert.Equal(t, "public, max-age=300", w.Header().Get("Cache-Control"))
	assert.Contains(t, w.Body.String(), "did:web:example.org")

	req := httptest.NewRequest(http.MethodGet, "/did.json", nil)
	req.Header.Set("If-None-Match", etag)
	w = serve(r, req)
	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Empty(t, w.Body.String())

	w = serve(r, httptest.NewRequest(http.MethodGet, "/fail", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, w.Header().Get("ETag"))
	assert.Contains(t, w.Body.String(), "not_found")
}

func TestETagMatches(t *testing.T) {
	assert.True(t, ETagMatches(`"abc"`, "abc"))
	assert.True(t, ETagMatches(`W/"abc"`, "abc"))
	assert.True(t, ETagMatches(`"x", "abc"`, "abc"))
	assert.True(t, ETagMatches(`*`, "abc"))
	assert.False(t, ETagMatches(`"abcd"`, "abc"))
	assert.False(t, ETagMatches("", "abc"))
}

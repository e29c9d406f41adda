package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/basmagi-quiz/internal/models"
	"github.com/noah-isme/basmagi-quiz/pkg/logger"
)

const (
	responseMetaKey = "response_meta"
	cacheHitKey     = "cache_hit"
	fetchSourceKey  = "fetch_source"
	cacheVersionKey = "cache_version"

	// HeaderCacheSource reports where the gateway answered a fetch from.
	HeaderCacheSource = "X-Cache-Source"
	// HeaderCacheVersion reports the cache version serving the gateway.
	HeaderCacheVersion = "X-Cache-Version"
)

// WithResponseMeta initialises response metadata storage on the request context.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Set(responseMetaKey, map[string]interface{}{})
		c.Next()
		duration := time.Since(start)
		meta := ensureMeta(c)
		if _, exists := meta["processing_time_ms"]; !exists {
			meta["processing_time_ms"] = duration.Milliseconds()
		}
	}
}

// SetFetchSource records where a fetch was answered from. It must run before
// the response headers are written.
func SetFetchSource(c *gin.Context, source models.FetchSource, version string) {
	meta := ensureMeta(c)
	meta[fetchSourceKey] = string(source)
	meta[cacheHitKey] = source == models.SourceCache
	meta[cacheVersionKey] = version
	c.Set(logger.FetchSourceKey, string(source))
	c.Header(HeaderCacheSource, string(source))
	if version != "" {
		c.Header(HeaderCacheVersion, version)
	}
}

// ExtractMeta returns the metadata map stored on the context.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	if meta, exists := c.Get(responseMetaKey); exists {
		if typed, ok := meta.(map[string]interface{}); ok {
			return typed
		}
	}
	return nil
}

func ensureMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return map[string]interface{}{}
	}
	if meta, exists := c.Get(responseMetaKey); exists {
		if typed, ok := meta.(map[string]interface{}); ok {
			return typed
		}
	}
	newMeta := make(map[string]interface{})
	c.Set(responseMetaKey, newMeta)
	return newMeta
}

package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORSConfig controls browser access from the interview frontend.
type CORSConfig struct {
	Enabled          bool     `yaml:"enabled"`
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowedMethods   []string `yaml:"allowedMethods"`
	AllowedHeaders   []string `yaml:"allowedHeaders"`
	ExposedHeaders   []string `yaml:"exposedHeaders"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           string   `yaml:"maxAge"`
}

// CORSMiddleware answers preflights and sets CORS headers for allowed origins.
// Disallowed preflights get 403; other requests from them pass without headers.
func CORSMiddleware(cfg CORSConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	wildcard := len(cfg.AllowedOrigins) == 1 && strings.TrimSpace(cfg.AllowedOrigins[0]) == "*"
	headers := map[string]string{
		"Access-Control-Allow-Methods":  strings.Join(cfg.AllowedMethods, ","),
		"Access-Control-Allow-Headers":  strings.Join(cfg.AllowedHeaders, ","),
		"Access-Control-Expose-Headers": strings.Join(cfg.ExposedHeaders, ","),
		"Access-Control-Max-Age":        cfg.MaxAge,
	}
	// Browsers reject a wildcard origin on credentialed requests, so the origin is echoed.
	echoOrigin := !wildcard || cfg.AllowCredentials

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}
		if !originAllowed(origin, cfg.AllowedOrigins) {
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.Next()
			return
		}

		h := c.Writer.Header()
		if echoOrigin {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
		} else {
			h.Set("Access-Control-Allow-Origin", "*")
		}
		for name, value := range headers {
			if value != "" {
				h.Set(name, value)
			}
		}
		if cfg.AllowCredentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func originAllowed(origin string, allowed []string) bool {
	for _, item := range allowed {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if item == "*" || strings.EqualFold(item, origin) {
			return true
		}
	}
	return false
}

package middleware

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSConfig defines CORS configuration options.
type CORSConfig struct {
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// DefaultCORSConfig names no origins: only same-origin browser requests
// are served until WithOrigins lists cross-origin callers.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Content-Length",
			"Accept-Encoding",
			"Authorization",
			"Accept",
			"Origin",
			"Cache-Control",
			"X-Requested-With",
			HeaderAPIToken,
			"X-Trace-ID",
			"X-Span-ID",
		},
		ExposeHeaders: []string{"X-Trace-ID", "X-Span-ID"},
		MaxAge:        12 * time.Hour,
	}
}

// WithOrigins returns a copy of cfg limited to origins. A "*" entry is
// dropped: the API mutates grants and is never opened to every origin.
func (cfg CORSConfig) WithOrigins(origins []string) CORSConfig {
	cfg.AllowOrigins = namedOrigins(origins)
	cfg.AllowCredentials = len(cfg.AllowOrigins) > 0
	return cfg
}

func namedOrigins(origins []string) []string {
	var named []string
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" && o != "*" {
			named = append(named, o)
		}
	}
	return named
}

// CORS creates a CORS middleware with the provided configuration. With no
// named origins it falls back to SameOrigin.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	origins := namedOrigins(cfg.AllowOrigins)
	if len(origins) == 0 {
		return SameOrigin()
	}
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     cfg.AllowMethods,
		AllowHeaders:     cfg.AllowHeaders,
		ExposeHeaders:    cfg.ExposeHeaders,
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	})
}

// SameOrigin refuses browser requests, preflights included, whose Origin
// is not the server itself. Requests without an Origin header pass.
func SameOrigin() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" || IsSameOrigin(origin, c.Request.Host) {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "cross-origin request refused"})
	}
}

// IsSameOrigin reports whether origin names host.
func IsSameOrigin(origin, host string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	return strings.EqualFold(u.Host, host)
}

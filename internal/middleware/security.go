// security.go provides Gin middleware that injects protective HTTP response headers.
// Watermarked files are per-reader copies, so download responses additionally forbid
// any shared cache from storing them.
package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// SecurityHeadersConfig holds configuration for security headers
type SecurityHeadersConfig struct {
	// EnableHSTS enables HTTP Strict Transport Security
	EnableHSTS bool
	// HSTSMaxAge is the max-age value for HSTS in seconds
	HSTSMaxAge int
	// HSTSIncludeSubdomains includes subdomains in HSTS
	HSTSIncludeSubdomains bool
	// FrameOptionsValue is the value for X-Frame-Options (DENY, SAMEORIGIN); empty omits it
	FrameOptionsValue string
	// EnableContentTypeOptions enables X-Content-Type-Options: nosniff
	EnableContentTypeOptions bool
	// ContentSecurityPolicy is the CSP header value
	ContentSecurityPolicy string
	// ReferrerPolicy is the Referrer-Policy header value
	ReferrerPolicy string
	// CrossOriginResourcePolicy controls which origins may embed the response
	CrossOriginResourcePolicy string
	// CacheControl is sent verbatim when set
	CacheControl string
}

// APISecurityHeadersConfig returns security headers suitable for JSON endpoints
func APISecurityHeadersConfig() SecurityHeadersConfig {
	return SecurityHeadersConfig{
		EnableHSTS:                true,
		HSTSMaxAge:                31536000, // 1 year
		HSTSIncludeSubdomains:     true,
		FrameOptionsValue:         "DENY",
		EnableContentTypeOptions:  true,
		ContentSecurityPolicy:     "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:            "no-referrer",
		CrossOriginResourcePolicy: "same-origin",
	}
}

// DownloadSecurityHeadersConfig returns headers for watermarked file responses. The
// download link carries a bearer token, so referrers are suppressed too.
func DownloadSecurityHeadersConfig() SecurityHeadersConfig {
	cfg := APISecurityHeadersConfig()
	cfg.CacheControl = "no-store, private"
	cfg.CrossOriginResourcePolicy = "same-site"
	return cfg
}

// CoverSecurityHeadersConfig returns headers for locally served cover images, which
// the reader site embeds from another origin.
func CoverSecurityHeadersConfig() SecurityHeadersConfig {
	return SecurityHeadersConfig{
		EnableHSTS:                true,
		HSTSMaxAge:                31536000,
		HSTSIncludeSubdomains:     true,
		EnableContentTypeOptions:  true,
		CrossOriginResourcePolicy: "cross-origin",
		CacheControl:              "public, max-age=3600",
	}
}

// SecurityHeadersMiddleware adds security headers to all responses
func SecurityHeadersMiddleware(config SecurityHeadersConfig) gin.HandlerFunc {
	hsts := ""
	if config.EnableHSTS {
		hsts = "max-age=" + strconv.Itoa(config.HSTSMaxAge)
		if config.HSTSIncludeSubdomains {
			hsts += "; includeSubDomains"
		}
	}

	return func(c *gin.Context) {
		if hsts != "" {
			c.Header("Strict-Transport-Security", hsts)
		}
		if config.FrameOptionsValue != "" {
			c.Header("X-Frame-Options", config.FrameOptionsValue)
		}
		if config.EnableContentTypeOptions {
			c.Header("X-Content-Type-Options", "nosniff")
		}
		if config.ContentSecurityPolicy != "" {
			c.Header("Content-Security-Policy", config.ContentSecurityPolicy)
		}
		if config.ReferrerPolicy != "" {
			c.Header("Referrer-Policy", config.ReferrerPolicy)
		}
		if config.CrossOriginResourcePolicy != "" {
			c.Header("Cross-Origin-Resource-Policy", config.CrossOriginResourcePolicy)
		}
		if config.CacheControl != "" {
			c.Header("Cache-Control", config.CacheControl)
		}
		c.Header("X-Permitted-Cross-Domain-Policies", "none")

		c.Next()
	}
}

package main

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// defaultOrigins are the dashboard dev servers allowed without configuration.
var defaultOrigins = []string{
	"http://localhost:3000",
	"http://127.0.0.1:3000",
	"http://localhost:5173",
	"http://127.0.0.1:5173",
}

// parseOrigins splits a comma-separated CORS_ALLOWED_ORIGINS value.
func parseOrigins(s string) []string {
	var origins []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return defaultOrigins
	}
	return origins
}

func corsConfig(origins []string) cors.Config {
	if len(origins) == 0 {
		origins = defaultOrigins
	}
	return cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", SessionHeader},
		ExposeHeaders:    []string{SessionHeader},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}
}

// requestLogger logs one line per request.
func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := logger.Debug()
		if status >= 500 {
			event = logger.Error()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status_code", status).
			Str("session", c.Writer.Header().Get(SessionHeader)).
			Dur("duration", time.Since(start)).
			Str("ip", c.ClientIP()).
			Msg("HTTP request")
	}
}

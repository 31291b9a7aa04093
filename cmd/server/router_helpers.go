package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// applyCORSMiddleware echoes back the request Origin (there is no browser
// storefront session to protect here, only server-to-server API calls) and
// short-circuits preflight OPTIONS requests with 204.
func applyCORSMiddleware(r *gin.Engine) {
	r.Use(func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key, X-Request-ID")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})
}

// registerHealthRoute exposes a liveness check that does not depend on any
// downstream system, so an orchestrator can distinguish "process is up" from
// "database is reachable".
func registerHealthRoute(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

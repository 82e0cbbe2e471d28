package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Version is stamped at build time.
var Version = "dev"

// Health handles GET /health
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetVersion handles GET /version
func GetVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": Version})
}

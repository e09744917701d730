package common

import "github.com/gin-gonic/gin"

// Detail writes the standard error body: {"detail": "..."} with the given status.
func Detail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"detail": msg})
}

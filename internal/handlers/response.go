package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
)

// Every endpoint responds with the same envelope so the admin panels
// and device firmware share one decoder.
type Response struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data"`
	Timestamp string      `json:"timestamp"`
}

func respond(c *gin.Context, status int, success bool, message string, data interface{}) {
	c.JSON(status, Response{
		Success:   success,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func respondOK(c *gin.Context, message string, data interface{}) {
	respond(c, 200, true, message, data)
}

func respondError(c *gin.Context, status int, message string) {
	respond(c, status, false, message, nil)
}

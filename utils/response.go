package utils

import "github.com/gin-gonic/gin"

// ErrorResponse is the failure half of the response envelope.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Respond writes the success envelope: {success: true, message?, ...payload}.
func Respond(ctx *gin.Context, status int, message string, payload gin.H) {
	body := gin.H{"success": true}
	if message != "" {
		body["message"] = message
	}
	for k, v := range payload {
		body[k] = v
	}
	ctx.JSON(status, body)
}

// Success returns a 200 success envelope.
func Success(ctx *gin.Context, payload gin.H) {
	Respond(ctx, 200, "", payload)
}

// Error returns a standard error envelope.
func Error(ctx *gin.Context, status int, code int, message string) {
	ctx.JSON(status, ErrorResponse{
		Success: false,
		Message: message,
		Code:    code,
	})
}

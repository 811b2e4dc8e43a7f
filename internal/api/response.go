package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the envelope of every JSON reply.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Details string `json:"details,omitempty"`
}

// Error codes carried in Response.Code.
const (
	CodeOK          = 0
	CodeBadRequest  = 40001
	CodeForbidden   = 40301
	CodeNotFound    = 40401
	CodeRejected    = 42201
	CodeInternal    = 50001
	CodeWriteFailed = 50301
)

func success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Code: CodeOK, Message: "success", Data: data})
}

func created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Response{Code: CodeOK, Message: "success", Data: data})
}

func fail(c *gin.Context, status, code int, message string) {
	c.JSON(status, Response{Code: code, Message: message})
}

func failWithDetails(c *gin.Context, status, code int, message, details string) {
	c.JSON(status, Response{Code: code, Message: message, Details: details})
}

func badRequest(c *gin.Context, message string) {
	fail(c, http.StatusBadRequest, CodeBadRequest, message)
}

package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Envelope is the uniform response body of every route.
type Envelope struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func OK(c *gin.Context, data any) {
	OKMsg(c, "ok", data)
}

func OKMsg(c *gin.Context, msg string, data any) {
	c.JSON(http.StatusOK, Envelope{
		Success: true,
		Code:    0,
		Message: msg,
		Data:    data,
	})
}

func Created(c *gin.Context, msg string, data any) {
	c.JSON(http.StatusCreated, Envelope{
		Success: true,
		Code:    0,
		Message: msg,
		Data:    data,
	})
}

func Fail(c *gin.Context, httpStatus int, code int, msg string) {
	c.AbortWithStatusJSON(httpStatus, Envelope{
		Success: false,
		Code:    code,
		Message: msg,
		Data:    nil,
	})
}

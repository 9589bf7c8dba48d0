package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"khedma/internal/apperr"
)

// 统一响应包装：成功为 {success, data, count?}，失败为 {success:false, message}。

func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func OKList(c *gin.Context, data any, count int) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data, "count": count})
}

func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": data})
}

func Error(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"success": false, "message": msg})
}

func AbortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "unauthorized"})
}

func Unauthorized(c *gin.Context)           { Error(c, http.StatusUnauthorized, "unauthorized") }
func BadRequest(c *gin.Context, msg string) { Error(c, http.StatusBadRequest, msg) }
func Forbidden(c *gin.Context, msg string)  { Error(c, http.StatusForbidden, msg) }
func NotFound(c *gin.Context, msg string)   { Error(c, http.StatusNotFound, msg) }
func Conflict(c *gin.Context, msg string)   { Error(c, http.StatusConflict, msg) }
func Internal(c *gin.Context, msg string)   { Error(c, http.StatusInternalServerError, msg) }

// WriteError 把领域错误映射为 HTTP 状态码与统一错误格式。
// Internal 类错误不外泄细节，只返回笼统消息。
func WriteError(c *gin.Context, err error) {
	var domainErr *apperr.Error
	if !errors.As(err, &domainErr) {
		Internal(c, "internal error")
		return
	}

	switch domainErr.Kind {
	case apperr.KindInvalidArgument:
		BadRequest(c, domainErr.Message)
	case apperr.KindForbidden:
		Forbidden(c, domainErr.Message)
	case apperr.KindNotFound:
		NotFound(c, domainErr.Message)
	case apperr.KindConflict:
		Conflict(c, domainErr.Message)
	default:
		Internal(c, "internal error")
	}
}

package handler

import (
	"errors"
	"net/http"

	"github.com/blues/tcf/internal/errs"
	"github.com/gin-gonic/gin"
)

// SuccessResponse 成功响应
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse 错误响应
func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, Response{
		Success: false,
		Message: message,
		Data:    nil,
	})
}

// HandleError 按错误类型返回对应的状态码
func HandleError(c *gin.Context, err error) {
	ErrorResponse(c, StatusCode(err), err.Error())
}

// StatusCode 错误对应的 HTTP 状态码
func StatusCode(err error) int {
	switch {
	case errors.Is(err, errs.ErrCampaignNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrInvalidAmount), errors.Is(err, errs.ErrInvalidCampaign):
		return http.StatusBadRequest
	case errs.IsUserError(err):
		return http.StatusConflict
	case errors.Is(err, errs.ErrExternalCallFailed), errors.Is(err, errs.ErrContractData):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

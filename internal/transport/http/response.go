package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一响应信封
//
// code 与 HTTP 状态码取值一致，前端只消费信封内的 code/msg。
type Response struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data,omitempty"`
}

// 业务状态码
const (
	CodeSuccess   = 200
	CodeCreated   = 201
	CodeNoContent = 204

	CodeBadRequest          = 400
	CodeUnauthorized        = 401
	CodeForbidden           = 403
	CodeNotFound            = 404
	CodeConflict            = 409
	CodeUnprocessableEntity = 422

	CodeInternalError = 500
)

func respond(c *gin.Context, status, code int, msg string, data interface{}) {
	c.JSON(status, Response{Code: code, Msg: msg, Data: data})
}

// Success 成功响应（200）
func Success(c *gin.Context, data interface{}) {
	respond(c, http.StatusOK, CodeSuccess, "成功", data)
}

// SuccessWithMsg 成功响应，自定义提示
func SuccessWithMsg(c *gin.Context, msg string, data interface{}) {
	respond(c, http.StatusOK, CodeSuccess, msg, data)
}

// Created 创建成功响应（201）
func Created(c *gin.Context, data interface{}) {
	respond(c, http.StatusCreated, CodeCreated, "创建成功", data)
}

// CreatedWithMsg 创建成功响应，自定义提示
func CreatedWithMsg(c *gin.Context, msg string, data interface{}) {
	respond(c, http.StatusCreated, CodeCreated, msg, data)
}

// NoContent 删除成功等无载荷场景（204）
func NoContent(c *gin.Context) {
	respond(c, http.StatusNoContent, CodeNoContent, "操作成功", nil)
}

// BadRequest 请求参数错误（400）
func BadRequest(c *gin.Context, msg string) {
	respond(c, http.StatusBadRequest, CodeBadRequest, msg, nil)
}

// Unauthorized 未认证（401）
func Unauthorized(c *gin.Context, msg string) {
	respond(c, http.StatusUnauthorized, CodeUnauthorized, msg, nil)
}

// Forbidden 无权限（403）
func Forbidden(c *gin.Context, msg string) {
	respond(c, http.StatusForbidden, CodeForbidden, msg, nil)
}

// NotFound 资源不存在（404）
func NotFound(c *gin.Context, msg string) {
	respond(c, http.StatusNotFound, CodeNotFound, msg, nil)
}

// Conflict 资源冲突（409）
func Conflict(c *gin.Context, msg string) {
	respond(c, http.StatusConflict, CodeConflict, msg, nil)
}

// UnprocessableEntity 语义上无法处理的请求（422）
func UnprocessableEntity(c *gin.Context, msg string) {
	respond(c, http.StatusUnprocessableEntity, CodeUnprocessableEntity, msg, nil)
}

// InternalError 服务器内部错误（500）
func InternalError(c *gin.Context, msg string) {
	respond(c, http.StatusInternalServerError, CodeInternalError, msg, nil)
}

// Error 按给定 HTTP 状态码返回错误
func Error(c *gin.Context, httpCode int, msg string) {
	respond(c, httpCode, httpCode, msg, nil)
}

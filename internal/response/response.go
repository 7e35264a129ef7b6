package response

import (
	"github.com/gofiber/fiber/v2"
)

// Response 统一响应结构
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// 响应码定义
const (
	CodeSuccess     = 0
	CodeError       = -1
	CodeBadRequest  = 400
	CodeNotFound    = 404
	CodeServerError = 500
	CodeBadGateway  = 502
)

// 响应消息定义
const (
	MsgSuccess     = "success"
	MsgBadRequest  = "bad request"
	MsgNotFound    = "not found"
	MsgServerError = "server error"
	MsgBadGateway  = "bad gateway"
)

// Success 成功响应
func Success(c *fiber.Ctx, data any) error {
	return c.JSON(Response{
		Code:    CodeSuccess,
		Message: MsgSuccess,
		Data:    data,
	})
}

// Accepted 已受理，结果在后台处理
func Accepted(c *fiber.Ctx, message string, data any) error {
	return c.Status(fiber.StatusAccepted).JSON(Response{
		Code:    CodeSuccess,
		Message: message,
		Data:    data,
	})
}

// ErrorWithStatus 以指定 HTTP 状态返回错误
func ErrorWithStatus(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(Response{
		Code:    status,
		Message: message,
	})
}

// BadRequest 参数错误响应
func BadRequest(c *fiber.Ctx, message string) error {
	if message == "" {
		message = MsgBadRequest
	}
	return ErrorWithStatus(c, fiber.StatusBadRequest, message)
}

// NotFound 未找到响应
func NotFound(c *fiber.Ctx, message string) error {
	if message == "" {
		message = MsgNotFound
	}
	return ErrorWithStatus(c, fiber.StatusNotFound, message)
}

// ServerError 服务器错误响应
func ServerError(c *fiber.Ctx, message string) error {
	if message == "" {
		message = MsgServerError
	}
	return ErrorWithStatus(c, fiber.StatusInternalServerError, message)
}

// BadGateway 上游 (Beam) 不可用响应
func BadGateway(c *fiber.Ctx, message string) error {
	if message == "" {
		message = MsgBadGateway
	}
	return ErrorWithStatus(c, fiber.StatusBadGateway, message)
}

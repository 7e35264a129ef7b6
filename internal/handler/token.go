package handler

import (
	"context"
	"errors"

	"yqhp/token-manager/internal/aggregator"
	"yqhp/token-manager/internal/beam"
	"yqhp/token-manager/internal/logger"
	"yqhp/token-manager/internal/logic"
	"yqhp/token-manager/internal/response"
	"yqhp/token-manager/internal/types"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// TokenLogic 处理器依赖的业务逻辑
type TokenLogic interface {
	CreateTokens(ctx context.Context, req *types.TokenParams) (*logic.Job, error)
	RefreshTokens(ctx context.Context, req *types.TokenParams) (*logic.Job, error)
	RemoveTokens(ctx context.Context, q *types.TokensQuery) error
	RemoveProject(ctx context.Context, q *types.ProjectQuery) error
	ProjectStatus(ctx context.Context, q *types.ProjectQuery) (*types.ProjectStatusResponse, error)
	TokenStatus(ctx context.Context, q *types.TokensQuery) (*types.TokenStatusResponse, error)
	Tables(ctx context.Context, req *types.TokenParams) (*types.TablesResponse, error)
	GenerateScript(ctx context.Context, req *types.TokenParams) (string, error)
	AuthenticationStatus(ctx context.Context, req *types.TokenParams) (bool, error)
}

// TokenHandler token 接口处理器
type TokenHandler struct {
	tokenLogic TokenLogic
}

// NewTokenHandler 创建 token 处理器
func NewTokenHandler(tokenLogic TokenLogic) *TokenHandler {
	return &TokenHandler{tokenLogic: tokenLogic}
}

// Create 为用户在各站点创建 token
func (h *TokenHandler) Create(c *fiber.Ctx) error {
	req, err := parseTokenParams(c)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	job, err := h.tokenLogic.CreateTokens(c.UserContext(), req)
	if err != nil {
		return fail(c, err)
	}
	return response.Accepted(c, "token 创建任务已提交", jobResponse(job))
}

// Refresh 刷新用户在各站点的 token
func (h *TokenHandler) Refresh(c *fiber.Ctx) error {
	req, err := parseTokenParams(c)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	job, err := h.tokenLogic.RefreshTokens(c.UserContext(), req)
	if err != nil {
		return fail(c, err)
	}
	return response.Accepted(c, "token 刷新任务已提交", jobResponse(job))
}

// Remove 撤销用户在某站点的 token
func (h *TokenHandler) Remove(c *fiber.Ctx) error {
	q, err := parseTokensQuery(c)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	if err := h.tokenLogic.RemoveTokens(c.UserContext(), q); err != nil {
		return fail(c, err)
	}
	return response.Success(c, nil)
}

// RemoveProject 删除站点上的项目
func (h *TokenHandler) RemoveProject(c *fiber.Ctx) error {
	q, err := parseProjectQuery(c)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	if err := h.tokenLogic.RemoveProject(c.UserContext(), q); err != nil {
		return fail(c, err)
	}
	return response.Success(c, nil)
}

// ProjectStatus 查询项目状态
func (h *TokenHandler) ProjectStatus(c *fiber.Ctx) error {
	q, err := parseProjectQuery(c)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	resp, err := h.tokenLogic.ProjectStatus(c.UserContext(), q)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, resp)
}

// TokenStatus 查询 token 状态
func (h *TokenHandler) TokenStatus(c *fiber.Ctx) error {
	q, err := parseTokensQuery(c)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	resp, err := h.tokenLogic.TokenStatus(c.UserContext(), q)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, resp)
}

// Tables 查询各站点可用的表
func (h *TokenHandler) Tables(c *fiber.Ctx) error {
	req, err := parseTokenParams(c)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	resp, err := h.tokenLogic.Tables(c.UserContext(), req)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, resp)
}

// Script 生成 DataSHIELD 登录脚本，返回纯文本
func (h *TokenHandler) Script(c *fiber.Ctx) error {
	req, err := parseTokenParams(c)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	script, err := h.tokenLogic.GenerateScript(c.UserContext(), req)
	if err != nil {
		return fail(c, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.SendString(script)
}

// AuthenticationStatus 用户是否已有 token
func (h *TokenHandler) AuthenticationStatus(c *fiber.Ctx) error {
	req, err := parseTokenParams(c)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	ok, err := h.tokenLogic.AuthenticationStatus(c.UserContext(), req)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, types.AuthenticationStatusResponse{Authenticated: ok})
}

func jobResponse(job *logic.Job) types.JobResponse {
	return types.JobResponse{
		TaskID:    job.TaskID.String(),
		TokenName: job.TokenName,
		Sites:     job.Sites,
	}
}

// fail 把业务错误转换为 HTTP 响应
func fail(c *fiber.Ctx, err error) error {
	var siteErr *beam.SiteError
	switch {
	case errors.Is(err, beam.ErrInvalidRequest), errors.Is(err, beam.ErrNoRecipients):
		return response.BadRequest(c, err.Error())
	case errors.Is(err, logic.ErrTokenNotFound):
		return response.NotFound(c, err.Error())
	case errors.As(err, &siteErr):
		return response.ErrorWithStatus(c, siteErr.HTTPStatus(), siteErr.Error())
	case errors.Is(err, beam.ErrBrokerUnreachable):
		logger.Error("Beam 不可用", zap.String("path", c.Path()), zap.Error(err))
		return response.BadGateway(c, err.Error())
	case errors.Is(err, aggregator.ErrNoReplies):
		logger.Warn("没有站点回复", zap.String("path", c.Path()), zap.Error(err))
		return response.ServerError(c, err.Error())
	default:
		logger.Error("请求处理失败", zap.String("path", c.Path()), zap.Error(err))
		return response.ServerError(c, err.Error())
	}
}

// Health 健康检查，Beam 不可达时返回 503
func Health(checker interface{ Health(context.Context) error }) fiber.Handler {
	return func(c *fiber.Ctx) error {
		status := fiber.Map{"status": "ok", "beam": "ok"}
		if checker != nil {
			if err := checker.Health(c.UserContext()); err != nil {
				status["status"] = "degraded"
				status["beam"] = err.Error()
				return c.Status(fiber.StatusServiceUnavailable).JSON(status)
			}
		}
		return c.JSON(status)
	}
}

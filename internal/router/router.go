package router

import (
	"yqhp/token-manager/internal/handler"
	"yqhp/token-manager/internal/middleware"
	"yqhp/token-manager/internal/svc"

	"github.com/gofiber/fiber/v2"
)

// Setup 设置路由
func Setup(app *fiber.App, ctx *svc.ServiceContext) {
	// 全局中间件
	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger())
	if ctx.Config.Server.EnableCORS {
		app.Use(middleware.CORS())
	}

	// 健康检查
	health := handler.Health(ctx.Beam)
	app.Get("/health", health)
	app.Get("/api/health", health)

	Register(app, handler.NewTokenHandler(ctx.TokenLogic))
}

// Register 注册 /api 下的 token 接口
func Register(app *fiber.App, tokenHandler *handler.TokenHandler) {
	api := app.Group("/api")

	api.Post("/token", tokenHandler.Create)
	api.Put("/refreshToken", tokenHandler.Refresh)
	api.Delete("/token", tokenHandler.Remove)
	api.Delete("/project", tokenHandler.RemoveProject)
	api.Get("/project-status", tokenHandler.ProjectStatus)
	api.Get("/token-status", tokenHandler.TokenStatus)
	api.Post("/tables", tokenHandler.Tables)
	api.Post("/script", tokenHandler.Script)
	api.Post("/authentication-status", tokenHandler.AuthenticationStatus)
}

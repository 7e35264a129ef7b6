package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"yqhp/token-manager/internal/config"
	"yqhp/token-manager/internal/logger"
	"yqhp/token-manager/internal/router"
	"yqhp/token-manager/internal/svc"
	"yqhp/token-manager/internal/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// shutdownTimeout 关闭时等待后台任务的最长时间
const shutdownTimeout = 90 * time.Second

func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// 加载配置
	cfg, err := config.NewLoader().
		WithConfigPath(cfgFile).
		WithCmdArgs(cmdArgs()).
		Load()
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	// 初始化日志
	logger.Init(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	})
	defer logger.Sync()

	// 初始化服务上下文
	sc, err := svc.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("初始化服务失败: %w", err)
	}

	// 创建 Fiber 应用
	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		JSONEncoder:           utils.Marshal,
		JSONDecoder:           utils.Unmarshal,
		DisableStartupMessage: true,
	})
	router.Setup(app, sc)

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	logger.Info("服务器启动", zap.String("addr", cfg.Server.Address), zap.String("beam", cfg.Beam.URL))
	return serve(app, cfg.Server.Address, sc.Close, quit)
}

// serve 监听直到收到信号或监听失败，然后关闭服务并释放资源。
// 监听失败时在清理后返回该错误。
func serve(app *fiber.App, addr string, release func(context.Context) error, quit <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(addr)
	}()

	var listenErr error
	select {
	case sig := <-quit:
		logger.Info("正在关闭服务器...", zap.String("signal", sig.String()))
	case listenErr = <-errCh:
		if listenErr != nil {
			logger.Error("服务器启动失败", zap.Error(listenErr))
		}
	}

	if err := app.Shutdown(); err != nil {
		logger.Error("服务器关闭失败", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := release(shutdownCtx); err != nil {
		logger.Error("释放资源失败", zap.Error(err))
	}
	logger.Info("服务器已关闭")

	if listenErr != nil {
		return fmt.Errorf("服务器启动失败: %w", listenErr)
	}
	return nil
}

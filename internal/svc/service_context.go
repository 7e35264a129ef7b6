package svc

import (
	"context"
	"errors"
	"fmt"

	"yqhp/token-manager/internal/beam"
	"yqhp/token-manager/internal/cache"
	"yqhp/token-manager/internal/config"
	"yqhp/token-manager/internal/database"
	"yqhp/token-manager/internal/logger"
	"yqhp/token-manager/internal/logic"
	"yqhp/token-manager/internal/service"
	"yqhp/token-manager/internal/utils"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ServiceContext 服务上下文，所有依赖在启动时创建一次并注入
type ServiceContext struct {
	Config     *config.Config
	DB         *gorm.DB
	Redis      *redis.Client
	Beam       *beam.Client
	Tokens     *service.TokenService
	TokenLogic *logic.TokenLogic
}

// New 按配置创建数据库、Redis、Beam 客户端和业务逻辑
func New(ctx context.Context, cfg *config.Config) (*ServiceContext, error) {
	db, err := database.Open(&cfg.Database, cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	tokens := service.NewTokenService(db)
	if err := tokens.AutoMigrate(); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}

	rdb, err := database.OpenRedis(ctx, &cfg.Redis)
	if err != nil {
		_ = database.Close(db)
		return nil, err
	}

	cipher, err := utils.NewTokenCipher(cfg.Token.EncryptKey)
	if err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("初始化 token 加密失败: %w", err)
	}

	client := beam.NewClient(cfg.Beam.URL, beam.AppID(cfg.Beam.AppID), cfg.Beam.Secret,
		beam.WithRequestTimeout(cfg.Beam.RequestTimeout),
		beam.WithStreamTimeout(cfg.Beam.StreamTimeout),
	)
	dispatcher := beam.NewDispatcher(client, client.AppID())

	var tables cache.TableCache = cache.Noop{}
	if rdb != nil && cfg.Cache.TablesTTL > 0 {
		tables = cache.NewRedisCache(rdb, cfg.Cache.TablesTTL)
		logger.Info("已启用表发现缓存", zap.Duration("ttl", cfg.Cache.TablesTTL))
	}

	return &ServiceContext{
		Config:     cfg,
		DB:         db,
		Redis:      rdb,
		Beam:       client,
		Tokens:     tokens,
		TokenLogic: logic.NewTokenLogic(dispatcher, tokens, cipher, tables, logic.NewJobGroup()),
	}, nil
}

// Close 等待后台任务结束后释放连接
func (s *ServiceContext) Close(ctx context.Context) error {
	var errs []error
	if err := s.TokenLogic.Jobs().Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("等待后台任务失败: %w", err))
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := database.Close(s.DB); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

package cache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"yqhp/token-manager/internal/aggregator"
	"yqhp/token-manager/internal/beam"
	"yqhp/token-manager/internal/logger"
	"yqhp/token-manager/internal/utils"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// TableCache 表发现结果缓存。站点可能按用户返回不同的表，所以按项目、用户和站点集合区分
type TableCache interface {
	Get(ctx context.Context, project, user string, sites []beam.AppID) (aggregator.TableSets, bool)
	Set(ctx context.Context, project, user string, sites []beam.AppID, sets aggregator.TableSets)
}

// Noop 不缓存
type Noop struct{}

func (Noop) Get(context.Context, string, string, []beam.AppID) (aggregator.TableSets, bool) {
	return nil, false
}

func (Noop) Set(context.Context, string, string, []beam.AppID, aggregator.TableSets) {}

// RedisCache 以 JSON 形式把表发现结果存入 Redis
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache 创建 Redis 缓存
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Key 缓存键，站点顺序不影响结果
func Key(project, user string, sites []beam.AppID) string {
	ids := make([]string, len(sites))
	for i, s := range sites {
		ids[i] = string(s)
	}
	sort.Strings(ids)
	return fmt.Sprintf("token-manager:tables:%s:%s:%s", project, user, strings.Join(ids, ","))
}

// Get 读取缓存，读取或解析失败按未命中处理
func (c *RedisCache) Get(ctx context.Context, project, user string, sites []beam.AppID) (aggregator.TableSets, bool) {
	data, err := c.client.Get(ctx, Key(project, user, sites)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Warn("读取表缓存失败", zap.String("project", project), zap.Error(err))
		}
		return nil, false
	}

	sets, err := Decode(data)
	if err != nil {
		logger.Warn("表缓存内容无效", zap.String("project", project), zap.Error(err))
		return nil, false
	}
	return sets, true
}

// Set 写入缓存，失败只记录日志
func (c *RedisCache) Set(ctx context.Context, project, user string, sites []beam.AppID, sets aggregator.TableSets) {
	data, err := Encode(sets)
	if err != nil {
		logger.Warn("序列化表缓存失败", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, Key(project, user, sites), data, c.ttl).Err(); err != nil {
		logger.Warn("写入表缓存失败", zap.String("project", project), zap.Error(err))
	}
}

// Encode 序列化为 {site: [tables...]}
func Encode(sets aggregator.TableSets) ([]byte, error) {
	out := make(map[string][]string, len(sets))
	for site, tables := range sets {
		out[string(site)] = tables.Sorted()
	}
	return utils.Marshal(out)
}

// Decode 反序列化 Encode 的输出
func Decode(data []byte) (aggregator.TableSets, error) {
	raw, err := utils.FromJSONBytes[map[string][]string](data)
	if err != nil {
		return nil, err
	}
	sets := make(aggregator.TableSets, len(raw))
	for site, tables := range raw {
		sets[beam.AppID(site)] = aggregator.NewStringSet(tables...)
	}
	return sets, nil
}

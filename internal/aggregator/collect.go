package aggregator

import (
	"context"

	"yqhp/token-manager/internal/beam"
	"yqhp/token-manager/internal/logger"

	"go.uber.org/zap"
)

// PersistFunc 持久化一条成功回复
type PersistFunc[T beam.Payload] func(ctx context.Context, reply beam.SiteReply[T]) error

// CollectSummary 全部收集策略的结果
type CollectSummary struct {
	// Persisted 按持久化顺序排列的站点
	Persisted []beam.AppID
	// Received 收到的可解析回复数量
	Received int
	// Failed 站点最后一次失败原因，包括站点错误和持久化失败
	Failed map[beam.AppID]error
	// LastError 最后一次失败
	LastError error
	// Err 操作级错误，目前只有 ErrNoReplies
	Err error
}

// CollectAll 消费整个流，每个站点的首条成功回复立即持久化。
// 站点错误和持久化失败只记录，不会提前结束。
func CollectAll[T beam.Payload](ctx context.Context, replies Replies[T], persist PersistFunc[T]) CollectSummary {
	defer replies.Close()

	summary := CollectSummary{Failed: make(map[beam.AppID]error)}
	persisted := make(map[beam.AppID]bool)

	for replies.Next() {
		summary.Received++
		reply := replies.Reply()

		if !reply.Result.IsOk() {
			logSiteError(reply.From, reply.Result.Err, "collect-all")
			summary.fail(reply.From, reply.Result.Err)
			continue
		}
		if persisted[reply.From] {
			logger.Warn("站点重复回复，已忽略", zap.String("site", string(reply.From)))
			continue
		}

		if err := persist(ctx, reply); err != nil {
			logger.Error("持久化站点回复失败",
				zap.String("site", string(reply.From)),
				zap.Error(err),
			)
			summary.fail(reply.From, err)
			continue
		}
		persisted[reply.From] = true
		delete(summary.Failed, reply.From)
		summary.Persisted = append(summary.Persisted, reply.From)
	}

	if summary.Received == 0 {
		summary.Err = ErrNoReplies
	}
	return summary
}

func (s *CollectSummary) fail(site beam.AppID, err error) {
	s.Failed[site] = err
	s.LastError = err
}

func logSiteError(site beam.AppID, err *beam.SiteError, policy string) {
	fields := []zap.Field{
		zap.String("site", string(site)),
		zap.String("policy", policy),
	}
	if err != nil {
		fields = append(fields, zap.Int("status_code", err.StatusCode), zap.String("error", err.Message))
	}
	logger.Warn("站点返回错误", fields...)
}

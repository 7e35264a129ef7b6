// Package aggregator 对站点回复序列应用聚合策略: 首个成功、集合并集、全部收集。
package aggregator

import (
	"context"
	"errors"

	"yqhp/token-manager/internal/beam"
)

// ErrNoReplies 结果流结束时一条可用回复都没有收到
var ErrNoReplies = errors.New("no site replies received")

// Replies 按到达顺序产出站点回复，beam.ReplyStream 实现了该接口
type Replies[T beam.Payload] interface {
	Next() bool
	Reply() beam.SiteReply[T]
	Close() error
}

// FirstSuccess 返回第一条成功回复并立即关闭流；
// 没有成功回复时返回最后一条错误回复，流为空时返回 ErrNoReplies。
func FirstSuccess[T beam.Payload](ctx context.Context, replies Replies[T]) (beam.SiteReply[T], error) {
	defer replies.Close()

	var (
		last     beam.SiteReply[T]
		received bool
	)
	for replies.Next() {
		reply := replies.Reply()
		if reply.Result.IsOk() {
			return reply, nil
		}
		logSiteError(reply.From, reply.Result.Err, "first-success")
		last = reply
		received = true

		if err := ctx.Err(); err != nil {
			break
		}
	}

	if !received {
		return beam.SiteReply[T]{}, ErrNoReplies
	}
	return last, nil
}

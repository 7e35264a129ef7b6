package beam

import (
	"context"
	"errors"
	"fmt"
	"io"

	"yqhp/token-manager/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReplyStream 按到达顺序逐条产出站点回复，惰性读取且只能消费一次
type ReplyStream[T Payload] struct {
	taskID  uuid.UUID
	body    io.ReadCloser
	scanner *Scanner
	current SiteReply[T]
	skipped int
	err     error
	closed  bool
}

// NewReplyStream 在已打开的 SSE 响应体上创建回复流
func NewReplyStream[T Payload](taskID uuid.UUID, body io.ReadCloser) *ReplyStream[T] {
	return &ReplyStream[T]{
		taskID:  taskID,
		body:    body,
		scanner: NewScanner(body),
	}
}

// Poll 打开任务的结果流，wait_count 为收件站点数量
func Poll[T Payload](ctx context.Context, d *Dispatcher, task *TaskRequest) (*ReplyStream[T], error) {
	body, err := d.Broker().OpenResults(ctx, task.ID, task.WaitCount())
	if err != nil {
		return nil, err
	}
	return NewReplyStream[T](task.ID, body), nil
}

// Next 前进到下一条可解析的回复，流结束时返回 false 并关闭连接
func (s *ReplyStream[T]) Next() bool {
	if s.closed {
		return false
	}

	// 不按事件名过滤，带 data 的事件都尝试解析
	for s.scanner.Next() {
		ev := s.scanner.Event()
		reply, err := DecodeReply[T]([]byte(ev.Data))
		if err != nil {
			s.skipped++
			logger.Warn("跳过无法解析的站点回复",
				zap.String("task_id", s.taskID.String()),
				zap.String("data", ev.Data),
				zap.Error(err),
			)
			continue
		}

		s.current = reply
		return true
	}

	if err := s.scanner.Err(); err != nil && !errors.Is(err, context.Canceled) {
		s.err = fmt.Errorf("读取任务 %s 结果流中断: %w", s.taskID, err)
	}
	_ = s.Close()
	return false
}

// Reply 当前回复，仅在 Next 返回 true 后有效
func (s *ReplyStream[T]) Reply() SiteReply[T] {
	return s.current
}

// Err 流提前中断的原因，仅用于诊断
func (s *ReplyStream[T]) Err() error {
	return s.err
}

// Skipped 被跳过的畸形消息数量
func (s *ReplyStream[T]) Skipped() int {
	return s.skipped
}

// TaskID 所属任务
func (s *ReplyStream[T]) TaskID() uuid.UUID {
	return s.taskID
}

// Close 放弃剩余回复并释放连接，可重复调用
func (s *ReplyStream[T]) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}

package logic

import (
	"context"
	"sync"

	"yqhp/token-manager/internal/aggregator"
	"yqhp/token-manager/internal/utils"

	"github.com/google/uuid"
)

// Job 在后台收集并持久化站点回复的任务，调用方可以选择等待
type Job struct {
	TaskID    uuid.UUID
	TokenName string
	Sites     int

	done    chan struct{}
	summary aggregator.CollectSummary
}

func newJob(taskID uuid.UUID, tokenName string, sites int) *Job {
	return &Job{
		TaskID:    taskID,
		TokenName: tokenName,
		Sites:     sites,
		done:      make(chan struct{}),
	}
}

// Done 任务结束时关闭
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait 等待任务结束并返回收集结果
func (j *Job) Wait(ctx context.Context) (aggregator.CollectSummary, error) {
	select {
	case <-j.done:
		return j.summary, nil
	case <-ctx.Done():
		return aggregator.CollectSummary{}, ctx.Err()
	}
}

// JobGroup 跟踪所有后台任务，关闭服务时等待它们结束
type JobGroup struct {
	wg sync.WaitGroup
}

// NewJobGroup 创建任务组
func NewJobGroup() *JobGroup {
	return &JobGroup{}
}

// Go 在后台运行任务，panic 会被恢复并记录
func (g *JobGroup) Go(name string, job *Job, fn func() aggregator.CollectSummary) {
	g.wg.Add(1)
	utils.SafeGoWithName(name, func() {
		defer g.wg.Done()
		defer close(job.done)
		job.summary = fn()
	})
}

// Wait 等待全部后台任务结束或 ctx 取消
func (g *JobGroup) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

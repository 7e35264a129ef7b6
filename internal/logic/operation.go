package logic

import (
	"time"

	"yqhp/token-manager/internal/beam"
	"yqhp/token-manager/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State 单次操作的生命周期状态
type State string

const (
	StateBuilt     State = "BUILT"
	StateSubmitted State = "SUBMITTED"
	StateStreaming State = "STREAMING"
	StateFolded    State = "FOLDED"
	StatePersisted State = "PERSISTED"
	StateReported  State = "REPORTED"
	StateFailed    State = "FAILED"
)

// Operation 跟踪一次扇出操作并在每次状态变化时记录日志，只由一个 goroutine 持有
type Operation struct {
	kind    beam.Kind
	taskID  uuid.UUID
	state   State
	started time.Time
	fields  []zap.Field
}

func newOperation(kind beam.Kind, fields ...zap.Field) *Operation {
	op := &Operation{
		kind:    kind,
		state:   StateBuilt,
		started: time.Now(),
		fields:  fields,
	}
	op.log(logger.Debug, nil)
	return op
}

// State 当前状态
func (o *Operation) State() State {
	return o.state
}

// TaskID 提交后的任务 ID
func (o *Operation) TaskID() uuid.UUID {
	return o.taskID
}

func (o *Operation) submitted(task *beam.TaskRequest) {
	o.taskID = task.ID
	o.to(StateSubmitted, zap.Int("sites", task.WaitCount()))
}

func (o *Operation) to(state State, fields ...zap.Field) {
	o.state = state
	o.log(logger.Info, fields)
}

func (o *Operation) fail(err error, fields ...zap.Field) {
	o.state = StateFailed
	o.log(logger.Warn, append(fields, zap.Error(err)))
}

func (o *Operation) log(fn func(string, ...zap.Field), extra []zap.Field) {
	fields := make([]zap.Field, 0, len(o.fields)+len(extra)+4)
	fields = append(fields,
		zap.String("kind", string(o.kind)),
		zap.String("state", string(o.state)),
		zap.Duration("elapsed", time.Since(o.started)),
	)
	if o.taskID != uuid.Nil {
		fields = append(fields, zap.String("task_id", o.taskID.String()))
	}
	fields = append(fields, o.fields...)
	fn("操作状态变更", append(fields, extra...)...)
}

package beam

import (
	"context"
	"fmt"

	"yqhp/token-manager/internal/logger"

	"github.com/duke-git/lancet/v2/slice"
	"github.com/duke-git/lancet/v2/strutil"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DispatchRequest 一次扇出请求，空字符串表示字段缺省
type DispatchRequest struct {
	Kind       Kind
	Name       string
	Project    string
	Token      string
	Recipients []string
}

// Dispatcher 构造并提交 Beam 任务
type Dispatcher struct {
	broker Broker
	from   AppID
}

// NewDispatcher 创建调度器
func NewDispatcher(broker Broker, from AppID) *Dispatcher {
	return &Dispatcher{broker: broker, from: from}
}

// Broker 返回底层代理，结果轮询复用同一连接配置
func (d *Dispatcher) Broker() Broker {
	return d.broker
}

// Dispatch 校验请求、生成任务并提交，失败时不会重试
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) (*TaskRequest, error) {
	to := NormalizeRecipients(req.Recipients)
	if len(to) == 0 {
		return nil, ErrNoRecipients
	}
	if err := validate(req); err != nil {
		return nil, err
	}

	task := &TaskRequest{
		ID:   uuid.New(),
		From: d.from,
		To:   to,
		Body: RequestBody{
			RequestType: req.Kind.RequestType(),
			Name:        optional(req.Name),
			Project:     optional(req.Project),
			Token:       optional(req.Token),
		},
		TTL:             DefaultTTL,
		FailureStrategy: FailureDiscard,
	}

	if err := d.broker.PostTask(ctx, task); err != nil {
		return nil, err
	}

	logger.Info("Beam 任务已提交",
		zap.String("task_id", task.ID.String()),
		zap.String("kind", string(req.Kind)),
		zap.Int("wait_count", task.WaitCount()),
	)
	return task, nil
}

// NormalizeRecipients 去除空白和重复站点，保持原有顺序
func NormalizeRecipients(ids []string) []AppID {
	trimmed := slice.Map(ids, func(_ int, id string) string {
		return strutil.Trim(id)
	})
	nonBlank := slice.Filter(trimmed, func(_ int, id string) bool {
		return id != ""
	})
	return slice.Map(slice.Unique(nonBlank), func(_ int, id string) AppID {
		return AppID(id)
	})
}

func validate(req DispatchRequest) error {
	missing := func(field string) error {
		return fmt.Errorf("%w: %s 需要 %s", ErrInvalidRequest, req.Kind, field)
	}

	switch req.Kind {
	case KindCreate:
		if req.Name == "" || req.Project == "" {
			return missing("name 和 project")
		}
	case KindUpdate:
		if req.Name == "" || req.Project == "" || req.Token == "" {
			return missing("name、project 和 token")
		}
	case KindDelete, KindStatus:
		if req.Name == "" && req.Project == "" {
			return missing("name 或 project")
		}
	case KindDiscoverTables:
		if req.Project == "" {
			return missing("project")
		}
	default:
		return fmt.Errorf("%w: 未知的操作类型 %q", ErrInvalidRequest, req.Kind)
	}
	return nil
}

package beam

import (
	"github.com/google/uuid"
)

// AppID Beam 应用标识，例如 token-manager.proxy1.broker
type AppID string

// RequestType 线上传输的请求类型
type RequestType string

const (
	RequestCreate RequestType = "CREATE"
	RequestUpdate RequestType = "UPDATE"
	RequestDelete RequestType = "DELETE"
	RequestStatus RequestType = "STATUS"
	RequestScript RequestType = "SCRIPT"
)

// Kind 调度器层面的操作类型
type Kind string

const (
	KindCreate         Kind = "CREATE"
	KindUpdate         Kind = "UPDATE"
	KindDelete         Kind = "DELETE"
	KindStatus         Kind = "STATUS"
	KindDiscoverTables Kind = "DISCOVER_TABLES"
)

// RequestType 返回该操作在线上使用的请求类型，表发现复用 SCRIPT
func (k Kind) RequestType() RequestType {
	if k == KindDiscoverTables {
		return RequestScript
	}
	return RequestType(k)
}

// FailureStrategy 任务失败策略
type FailureStrategy string

// FailureDiscard 任务过期后直接丢弃
const FailureDiscard FailureStrategy = "discard"

// DefaultTTL 任务在 Beam 中的有效期
const DefaultTTL = "60s"

// RequestBody 发往站点的请求体，缺省字段序列化为 null
type RequestBody struct {
	RequestType RequestType `json:"request_type"`
	Name        *string     `json:"name"`
	Project     *string     `json:"project"`
	Token       *string     `json:"token"`
}

// TaskRequest 提交给 Beam 的扇出任务
type TaskRequest struct {
	ID              uuid.UUID       `json:"id"`
	From            AppID           `json:"from"`
	To              []AppID         `json:"to"`
	Body            RequestBody     `json:"body"`
	TTL             string          `json:"ttl"`
	FailureStrategy FailureStrategy `json:"failure_strategy"`
	Metadata        any             `json:"metadata"`
}

// WaitCount 轮询结果时期望的回复数量
func (t *TaskRequest) WaitCount() int {
	return len(t.To)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

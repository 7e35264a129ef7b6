package beam

import "errors"

var (
	// ErrBrokerUnreachable 提交任务或打开结果流时 Beam 不可达或返回非 2xx
	ErrBrokerUnreachable = errors.New("beam broker unreachable")
	// ErrMalformedReply 结果流中的单条消息无法解析为站点回复
	ErrMalformedReply = errors.New("malformed site reply")
	// ErrInvalidRequest 请求缺少该操作类型所需的字段
	ErrInvalidRequest = errors.New("invalid task request")
	// ErrNoRecipients 规范化后收件站点为空
	ErrNoRecipients = errors.New("task has no recipients")
)

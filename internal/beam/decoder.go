package beam

import (
	"fmt"

	"yqhp/token-manager/internal/utils"
)

// taskResult Beam 结果消息中关心的字段，to/task/status 等忽略
type taskResult struct {
	From string `json:"from"`
	Body any    `json:"body"`
}

// DecodeReply 把一条结果事件的数据解析为站点回复。
// 解析顺序: 外部标签 Ok/Err，然后成功形状，然后错误形状。
func DecodeReply[T Payload](data []byte) (SiteReply[T], error) {
	var msg taskResult
	if err := utils.Unmarshal(data, &msg); err != nil {
		return SiteReply[T]{}, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	if msg.From == "" {
		return SiteReply[T]{}, fmt.Errorf("%w: 缺少 from", ErrMalformedReply)
	}

	result, err := decodeResult[T](msg.Body)
	if err != nil {
		return SiteReply[T]{}, fmt.Errorf("%w: 来自 %s: %v", ErrMalformedReply, msg.From, err)
	}
	return SiteReply[T]{From: AppID(msg.From), Result: result}, nil
}

func decodeResult[T Payload](body any) (Result[T], error) {
	if m, ok := body.(map[string]any); ok && len(m) == 1 {
		if inner, ok := m["Ok"]; ok {
			if v, ok := decodeOk[T](inner); ok {
				return Result[T]{Ok: v}, nil
			}
			return Result[T]{}, fmt.Errorf("Ok 内容不符合预期")
		}
		if inner, ok := m["Err"]; ok {
			if e, ok := decodeErr(inner); ok {
				return Result[T]{Err: e}, nil
			}
			return Result[T]{}, fmt.Errorf("Err 内容不符合预期")
		}
	}

	if v, ok := decodeOk[T](body); ok {
		return Result[T]{Ok: v}, nil
	}
	if e, ok := decodeErr(body); ok {
		return Result[T]{Err: e}, nil
	}
	return Result[T]{}, fmt.Errorf("无法识别的结果: %v", body)
}

func decodeOk[T Payload](body any) (*T, bool) {
	var out T
	switch p := any(&out).(type) {
	case *TokenPayload:
		s, ok := scalarOrField(body, "token")
		if !ok {
			return nil, false
		}
		p.Token = s
	case *StatusPayload:
		s, ok := scalarOrField(body, "status")
		if !ok {
			return nil, false
		}
		p.Status = s
	case *TablesPayload:
		tables, ok := tableList(body)
		if !ok {
			return nil, false
		}
		p.Tables = tables
	default:
		return nil, false
	}
	return &out, true
}

func scalarOrField(body any, field string) (string, bool) {
	switch v := body.(type) {
	case string:
		return v, true
	case map[string]any:
		s, ok := v[field].(string)
		return s, ok
	}
	return "", false
}

func tableList(body any) ([]string, bool) {
	var raw []any
	switch v := body.(type) {
	case []any:
		raw = v
	case map[string]any:
		list, ok := v["tables"].([]any)
		if !ok {
			return nil, false
		}
		raw = list
	default:
		return nil, false
	}

	tables := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		tables = append(tables, s)
	}
	return tables, true
}

func decodeErr(body any) (*SiteError, bool) {
	switch v := body.(type) {
	case string:
		return &SiteError{Message: v}, true
	case map[string]any:
		e := &SiteError{}
		found := false
		if code, ok := v["status_code"].(float64); ok {
			e.StatusCode = int(code)
			found = true
		}
		for _, key := range []string{"error_message", "error"} {
			if msg, ok := v[key].(string); ok {
				e.Message = msg
				found = true
				break
			}
		}
		return e, found
	}
	return nil, false
}

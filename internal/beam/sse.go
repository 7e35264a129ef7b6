package beam

import (
	"bufio"
	"io"
	"strings"
)

// Event 一个带 data 的 SSE 事件，没有 data 的块不会产出事件
type Event struct {
	// Type event 字段，Beam 的结果事件为 new_result
	Type string
	Data string
}

// Scanner 按 W3C SSE 规则从字节流中切分事件。
// 多行 data 以换行拼接，注释行和未知字段忽略。
type Scanner struct {
	r     *bufio.Reader
	event Event
	err   error
	done  bool
}

// NewScanner 创建扫描器
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next 读取下一个事件，流结束或出错时返回 false
func (s *Scanner) Next() bool {
	if s.done {
		return false
	}

	var (
		eventType string
		data      []string
		hasData   bool
	)
	emit := func() bool {
		s.event = Event{Type: eventType, Data: strings.Join(data, "\n")}
		return true
	}

	for {
		line, err := s.r.ReadString('\n')
		if err != nil {
			s.done = true
			if err != io.EOF {
				s.err = err
			}
			// 流末尾没有空行收尾的事件同样有效
			if line != "" && err == io.EOF {
				eventType, data, hasData = parseLine(strings.TrimRight(line, "\r\n"), eventType, data, hasData)
			}
			if hasData && s.err == nil {
				return emit()
			}
			return false
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if hasData {
				return emit()
			}
			eventType = ""
			continue
		}
		eventType, data, hasData = parseLine(line, eventType, data, hasData)
	}
}

func parseLine(line, eventType string, data []string, hasData bool) (string, []string, bool) {
	if line == "" || strings.HasPrefix(line, ":") {
		return eventType, data, hasData
	}

	field, value, found := strings.Cut(line, ":")
	if found {
		value = strings.TrimPrefix(value, " ")
	}

	switch field {
	case "data":
		return eventType, append(data, value), true
	case "event":
		return value, data, hasData
	default:
		// id、retry 以及未知字段
		return eventType, data, hasData
	}
}

// Event 当前事件，仅在 Next 返回 true 后有效
func (s *Scanner) Event() Event {
	return s.event
}

// Err 读取过程中的错误，正常 EOF 返回 nil
func (s *Scanner) Err() error {
	return s.err
}

package aggregator

import (
	"yqhp/token-manager/internal/beam"
)

// sliceReplies 基于切片的回复序列
type sliceReplies[T beam.Payload] struct {
	items  []beam.SiteReply[T]
	pos    int
	closed bool
	pulled int
}

func replay[T beam.Payload](items ...beam.SiteReply[T]) *sliceReplies[T] {
	return &sliceReplies[T]{items: items, pos: -1}
}

func (s *sliceReplies[T]) Next() bool {
	if s.closed || s.pos+1 >= len(s.items) {
		return false
	}
	s.pos++
	s.pulled++
	return true
}

func (s *sliceReplies[T]) Reply() beam.SiteReply[T] {
	return s.items[s.pos]
}

func (s *sliceReplies[T]) Close() error {
	s.closed = true
	return nil
}

func okStatus(site, status string) beam.SiteReply[beam.StatusPayload] {
	return beam.SiteReply[beam.StatusPayload]{
		From:   beam.AppID(site),
		Result: beam.Result[beam.StatusPayload]{Ok: &beam.StatusPayload{Status: status}},
	}
}

func errStatus(site string, code int, msg string) beam.SiteReply[beam.StatusPayload] {
	return beam.SiteReply[beam.StatusPayload]{
		From:   beam.AppID(site),
		Result: beam.Result[beam.StatusPayload]{Err: &beam.SiteError{StatusCode: code, Message: msg}},
	}
}

func okTables(site string, tables ...string) beam.SiteReply[beam.TablesPayload] {
	return beam.SiteReply[beam.TablesPayload]{
		From:   beam.AppID(site),
		Result: beam.Result[beam.TablesPayload]{Ok: &beam.TablesPayload{Tables: tables}},
	}
}

func errTables(site, msg string) beam.SiteReply[beam.TablesPayload] {
	return beam.SiteReply[beam.TablesPayload]{
		From:   beam.AppID(site),
		Result: beam.Result[beam.TablesPayload]{Err: &beam.SiteError{Message: msg}},
	}
}

func okToken(site, token string) beam.SiteReply[beam.TokenPayload] {
	return beam.SiteReply[beam.TokenPayload]{
		From:   beam.AppID(site),
		Result: beam.Result[beam.TokenPayload]{Ok: &beam.TokenPayload{Token: token}},
	}
}

func errToken(site string, code int) beam.SiteReply[beam.TokenPayload] {
	return beam.SiteReply[beam.TokenPayload]{
		From:   beam.AppID(site),
		Result: beam.Result[beam.TokenPayload]{Err: &beam.SiteError{StatusCode: code, Message: "failed"}},
	}
}

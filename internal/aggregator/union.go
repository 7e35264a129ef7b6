package aggregator

import (
	"context"
	"sort"

	"yqhp/token-manager/internal/beam"
	"yqhp/token-manager/internal/logger"

	"github.com/duke-git/lancet/v2/maputil"
	"go.uber.org/zap"
)

// StringSet 字符串集合
type StringSet map[string]struct{}

// NewStringSet 由切片构造集合
func NewStringSet(items ...string) StringSet {
	s := make(StringSet, len(items))
	s.Add(items...)
	return s
}

// Add 加入元素
func (s StringSet) Add(items ...string) {
	for _, item := range items {
		s[item] = struct{}{}
	}
}

// Has 是否包含
func (s StringSet) Has(item string) bool {
	_, ok := s[item]
	return ok
}

// Sorted 排序后的元素
func (s StringSet) Sorted() []string {
	out := maputil.Keys(s)
	if out == nil {
		out = []string{}
	}
	sort.Strings(out)
	return out
}

// TableSets 站点到其可用表名集合的映射
type TableSets map[beam.AppID]StringSet

// All 所有站点表名的并集
func (t TableSets) All() StringSet {
	all := make(StringSet)
	for _, tables := range t {
		for name := range tables {
			all.Add(name)
		}
	}
	return all
}

// Sites 排序后的站点列表
func (t TableSets) Sites() []beam.AppID {
	sites := maputil.Keys(t)
	sort.Slice(sites, func(i, j int) bool { return sites[i] < sites[j] })
	return sites
}

// Union 把每个站点的表名并入其集合，错误回复的站点被忽略。
// 结果与回复顺序无关，同一站点重复回复不改变结果。
func Union(ctx context.Context, replies Replies[beam.TablesPayload]) (TableSets, error) {
	defer replies.Close()

	sets := make(TableSets)
	received := 0
	for replies.Next() {
		received++
		reply := replies.Reply()
		if !reply.Result.IsOk() {
			logSiteError(reply.From, reply.Result.Err, "union")
			continue
		}

		set, ok := sets[reply.From]
		if !ok {
			set = make(StringSet)
			sets[reply.From] = set
		}
		set.Add(reply.Result.Ok.Tables...)
		logger.Debug("站点表名已合并",
			zap.String("site", string(reply.From)),
			zap.Int("tables", len(reply.Result.Ok.Tables)),
		)

		if err := ctx.Err(); err != nil {
			break
		}
	}

	if received == 0 {
		return nil, ErrNoReplies
	}
	return sets, nil
}

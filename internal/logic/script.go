package logic

import (
	"context"
	"fmt"
	"strings"

	"yqhp/token-manager/internal/aggregator"
	"yqhp/token-manager/internal/beam"
	"yqhp/token-manager/internal/logger"
	"yqhp/token-manager/internal/types"

	"github.com/duke-git/lancet/v2/slice"
	"go.uber.org/zap"
)

// NoRecordsMessage 用户在所有站点上都没有可用 token 时返回的脚本内容
const NoRecordsMessage = "No records found for the given project and user."

const (
	scriptHeader = "library(DSI)\n" +
		"library(DSOpal)\n" +
		"library(dsBaseClient)\n" +
		"set_config(use_proxy(url=\"http://beam-connect\", port=8062))\n" +
		"set_config( config( ssl_verifyhost = 0L, ssl_verifypeer = 0L ) )\n" +
		"\n" +
		"builder <- DSI::newDSLoginBuilder(.silent = FALSE)\n"

	scriptFooter = "logindata <- builder$build()\n" +
		"connections <- DSI::datashield.login(logins = logindata, assign = TRUE, symbol = 'D')\n"
)

// siteScript 单个站点的登录信息
type siteScript struct {
	bk      string
	token   string
	tables  []string
	missing []string
}

// GenerateScript 生成 DataSHIELD 登录脚本，每个站点每张表一行 builder$append，
// 站点缺少的表以注释列出。没有 token 或没有表的站点被跳过。
func (l *TokenLogic) GenerateScript(ctx context.Context, req *types.TokenParams) (string, error) {
	sets, err := l.DiscoverTables(ctx, req)
	if err != nil {
		return "", err
	}
	all := sets.All().Sorted()

	sites := make([]siteScript, 0, len(sets))
	for _, site := range beam.NormalizeRecipients(req.BridgeheadIDs) {
		tables, ok := sets[site]
		if !ok {
			logger.Debug("站点没有可用的表", zap.String("bk", string(site)))
			continue
		}

		record, err := l.store.Latest(ctx, req.UserID, req.ProjectID, string(site))
		if err != nil {
			return "", fmt.Errorf("查询 token 记录失败: %w", err)
		}
		if record == nil {
			continue
		}
		token, err := l.cipher.Decrypt(record.Token, record.TokenName)
		if err != nil {
			return "", fmt.Errorf("解密 token 失败: %w", err)
		}

		own := tables.Sorted()
		sites = append(sites, siteScript{
			bk:      string(site),
			token:   token,
			tables:  own,
			missing: slice.Difference(all, own),
		})
	}

	if len(sites) == 0 {
		return NoRecordsMessage, nil
	}
	return renderScript(sites), nil
}

func renderScript(sites []siteScript) string {
	var b strings.Builder
	b.WriteString(scriptHeader)
	for _, s := range sites {
		if len(s.missing) > 0 {
			fmt.Fprintf(&b, "\n # Tables not available for bridgehead '%s': %s\n", s.bk, quotedSet(s.missing))
		}
		server := serverName(s.bk)
		for _, table := range s.tables {
			fmt.Fprintf(&b,
				"builder$append(server='%s', url='https://%s/opal/', token='%s', table='%s', driver='OpalDriver')\n",
				server, s.bk, s.token, table)
		}
		b.WriteString("\n")
	}
	b.WriteString(scriptFooter)
	return b.String()
}

// serverName 站点 ID 的第二段，例如 app.site-a.broker 为 site-a
func serverName(bk string) string {
	parts := strings.Split(bk, ".")
	if len(parts) < 2 {
		return bk
	}
	return parts[1]
}

func quotedSet(items []string) string {
	quoted := slice.Map(items, func(_ int, item string) string {
		return fmt.Sprintf("%q", item)
	})
	return "{" + strings.Join(quoted, ", ") + "}"
}

// Tables 表发现结果转换为接口返回结构
func (l *TokenLogic) Tables(ctx context.Context, req *types.TokenParams) (*types.TablesResponse, error) {
	sets, err := l.DiscoverTables(ctx, req)
	if err != nil {
		return nil, err
	}
	return tablesResponse(req.ProjectID, sets), nil
}

func tablesResponse(project string, sets aggregator.TableSets) *types.TablesResponse {
	tables := make(map[string][]string, len(sets))
	for site, set := range sets {
		tables[string(site)] = set.Sorted()
	}
	return &types.TablesResponse{
		ProjectID: project,
		Tables:    tables,
		All:       sets.All().Sorted(),
	}
}

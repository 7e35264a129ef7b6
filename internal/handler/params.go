package handler

import (
	"errors"
	"fmt"
	"strings"

	"yqhp/token-manager/internal/types"

	"github.com/duke-git/lancet/v2/strutil"
	"github.com/gofiber/fiber/v2"
)

var errBadBody = errors.New("参数解析失败")

func required(fields map[string]string) error {
	var missing []string
	for _, name := range []string{"user_id", "project_id", "bk"} {
		if v, ok := fields[name]; ok && strutil.IsBlank(v) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("缺少参数: %s", strings.Join(missing, ", "))
	}
	return nil
}

func parseTokenParams(c *fiber.Ctx) (*types.TokenParams, error) {
	var req types.TokenParams
	if err := c.BodyParser(&req); err != nil {
		return nil, errBadBody
	}
	if err := required(map[string]string{"user_id": req.UserID, "project_id": req.ProjectID}); err != nil {
		return nil, err
	}
	if len(req.BridgeheadIDs) == 0 {
		return nil, errors.New("缺少参数: bridgehead_ids")
	}
	return &req, nil
}

func parseTokensQuery(c *fiber.Ctx) (*types.TokensQuery, error) {
	var q types.TokensQuery
	if err := c.QueryParser(&q); err != nil {
		return nil, errBadBody
	}
	if err := required(map[string]string{"user_id": q.UserID, "project_id": q.ProjectID, "bk": q.Bk}); err != nil {
		return nil, err
	}
	return &q, nil
}

func parseProjectQuery(c *fiber.Ctx) (*types.ProjectQuery, error) {
	var q types.ProjectQuery
	if err := c.QueryParser(&q); err != nil {
		return nil, errBadBody
	}
	if err := required(map[string]string{"project_id": q.ProjectID, "bk": q.Bk}); err != nil {
		return nil, err
	}
	return &q, nil
}

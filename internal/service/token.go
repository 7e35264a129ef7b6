package service

import (
	"context"
	"errors"

	"yqhp/token-manager/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TokenService token 记录存储
type TokenService struct {
	db *gorm.DB
}

// NewTokenService 创建 token 存储服务
func NewTokenService(db *gorm.DB) *TokenService {
	return &TokenService{db: db}
}

// AutoMigrate 建表
func (s *TokenService) AutoMigrate() error {
	return s.db.AutoMigrate(&model.Token{})
}

// Save 插入记录，(token_name, bk) 已存在时忽略
func (s *TokenService) Save(ctx context.Context, token *model.Token) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(token).Error
}

// UpdateLatest 用新 token 更新用户在该站点的最新记录，状态置为 UPDATED。
// 没有可更新的记录时返回 false。
func (s *TokenService) UpdateLatest(ctx context.Context, userID, projectID, bk, token, createdAt string) (bool, error) {
	latest, err := s.Latest(ctx, userID, projectID, bk)
	if err != nil || latest == nil {
		return false, err
	}

	err = s.db.WithContext(ctx).Model(&model.Token{}).
		Where("id = ?", latest.ID).
		Updates(map[string]any{
			"token":            token,
			"token_status":     model.TokenStatusUpdated,
			"token_created_at": createdAt,
		}).Error
	return err == nil, err
}

// UpdateStatus 更新用户在该站点全部记录的 token 状态
func (s *TokenService) UpdateStatus(ctx context.Context, userID, projectID, bk, status string) error {
	return s.db.WithContext(ctx).Model(&model.Token{}).
		Where("user_id = ? AND project_id = ? AND bk = ?", userID, projectID, bk).
		Update("token_status", status).Error
}

// DeleteByProject 删除项目在该站点的全部记录
func (s *TokenService) DeleteByProject(ctx context.Context, projectID, bk string) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("project_id = ? AND bk = ?", projectID, bk).
		Delete(&model.Token{})
	return result.RowsAffected, result.Error
}

// DeleteByTokenName 删除该站点上指定名称的记录
func (s *TokenService) DeleteByTokenName(ctx context.Context, tokenName, bk string) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("token_name = ? AND bk = ?", tokenName, bk).
		Delete(&model.Token{})
	return result.RowsAffected, result.Error
}

// LatestForProject 用户在项目下最新的一条记录，不存在时返回 nil
func (s *TokenService) LatestForProject(ctx context.Context, userID, projectID string) (*model.Token, error) {
	return s.first(s.db.WithContext(ctx).
		Where("user_id = ? AND project_id = ?", userID, projectID))
}

// Latest 用户在项目和站点下最新的一条记录，不存在时返回 nil
func (s *TokenService) Latest(ctx context.Context, userID, projectID, bk string) (*model.Token, error) {
	return s.first(s.db.WithContext(ctx).
		Where("user_id = ? AND project_id = ? AND bk = ?", userID, projectID, bk))
}

// AnyAvailable 用户在任一给定站点上是否有该项目的 token
func (s *TokenService) AnyAvailable(ctx context.Context, userID, projectID string, bks []string) (bool, error) {
	if len(bks) == 0 {
		return false, nil
	}
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Token{}).
		Where("user_id = ? AND project_id = ? AND bk IN ?", userID, projectID, bks).
		Count(&count).Error
	return count > 0, err
}

func (s *TokenService) first(q *gorm.DB) (*model.Token, error) {
	var token model.Token
	err := q.Order("id DESC").First(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

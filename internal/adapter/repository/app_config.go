package repository

import (
	"context"
	"encoding/json"

	"gorm.io/gorm/clause"

	"github-trending-digest/internal/common"
	"github-trending-digest/internal/domain"
)

const techStackKey = "tech_stack"

// GetTechStack 全局技术栈，未配置时返回默认方向
func (s *Store) GetTechStack(ctx context.Context) ([]domain.Direction, error) {
	var cfg domain.AppConfig
	err := s.db.WithContext(ctx).Where("key = ?", techStackKey).Limit(1).Find(&cfg).Error
	if err != nil {
		return nil, common.WrapError(common.ErrCodeDatabase, "读取技术栈失败", err)
	}
	if cfg.Value == "" {
		return domain.DefaultDirections(), nil
	}

	var directions []domain.Direction
	if err := json.Unmarshal([]byte(cfg.Value), &directions); err != nil {
		return nil, common.WrapError(common.ErrCodeDatabase, "技术栈 JSON 损坏", err)
	}
	return directions, nil
}

func (s *Store) SetTechStack(ctx context.Context, directions []domain.Direction) error {
	if directions == nil {
		directions = []domain.Direction{}
	}
	b, err := json.Marshal(directions)
	if err != nil {
		return common.WrapError(common.ErrCodeInvalidInput, "技术栈序列化失败", err)
	}

	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).
		Create(&domain.AppConfig{Key: techStackKey, Value: string(b)}).Error
	if err != nil {
		return common.WrapError(common.ErrCodeDatabase, "保存技术栈失败", err)
	}
	return nil
}

// seedTechStack 首次启动写入默认技术栈，已存在时不覆盖
func (s *Store) seedTechStack(ctx context.Context) error {
	b, err := json.Marshal(domain.DefaultDirections())
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&domain.AppConfig{Key: techStackKey, Value: string(b)}).Error
	if err != nil {
		return common.WrapError(common.ErrCodeDatabase, "写入默认技术栈失败", err)
	}
	return nil
}

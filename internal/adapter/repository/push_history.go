package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github-trending-digest/internal/common"
	"github-trending-digest/internal/domain"
)

// IsRecentlyPushed 窗口包含今天和之前的 windowDays-1 天
// 正好 windowDays 天前推送的项目重新可推；windowDays <= 0 关闭去重
func (s *Store) IsRecentlyPushed(ctx context.Context, slug string, windowDays int) (bool, error) {
	if windowDays <= 0 {
		return false, nil
	}
	cutoff := s.today().AddDate(0, 0, -(windowDays - 1)).Format(dateLayout)

	var count int64
	err := s.db.WithContext(ctx).
		Model(&domain.PushRecord{}).
		Where("repo_name = ? AND last_pushed >= ?", slug, cutoff).
		Count(&count).Error
	if err != nil {
		return false, common.WrapError(common.ErrCodeDatabase, "查询推送历史失败", err)
	}
	return count > 0, nil
}

// MarkPushed 首次推送插入 (count=1)，之后更新 last_pushed 并累加 push_count
// first_seen 只在插入时写入
func (s *Store) MarkPushed(ctx context.Context, slugs []string) error {
	today := s.today().Format(dateLayout)

	seen := make(map[string]struct{}, len(slugs))
	records := make([]domain.PushRecord, 0, len(slugs))
	for _, slug := range slugs {
		slug = strings.TrimSpace(slug)
		if slug == "" {
			continue
		}
		if _, ok := seen[slug]; ok {
			continue
		}
		seen[slug] = struct{}{}
		records = append(records, domain.PushRecord{
			RepoName:   slug,
			FirstSeen:  today,
			LastPushed: today,
			PushCount:  1,
		})
	}
	if len(records) == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "repo_name"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"last_pushed": today,
				"push_count":  gorm.Expr("push_count + 1"),
			}),
		}).
		CreateInBatches(&records, 100).Error
	if err != nil {
		return common.WrapError(common.ErrCodeDatabase, "写入推送历史失败", err)
	}
	return nil
}

func (s *Store) CountPushedOn(ctx context.Context, date string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&domain.PushRecord{}).
		Where("last_pushed = ?", date).
		Count(&count).Error
	if err != nil {
		return 0, common.WrapError(common.ErrCodeDatabase, "统计推送记录失败", err)
	}
	return count, nil
}

// GetPushRecord 单个项目的推送记录，不存在返回 nil
func (s *Store) GetPushRecord(ctx context.Context, slug string) (*domain.PushRecord, error) {
	var rec domain.PushRecord
	err := s.db.WithContext(ctx).Where("repo_name = ?", slug).Limit(1).Find(&rec).Error
	if err != nil {
		return nil, common.WrapError(common.ErrCodeDatabase, "查询推送记录失败", err)
	}
	if rec.RepoName == "" {
		return nil, nil
	}
	return &rec, nil
}

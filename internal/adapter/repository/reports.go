package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github-trending-digest/internal/common"
	"github-trending-digest/internal/domain"
)

// SaveReport 按日期 upsert，同一天多次运行覆盖当天的日报
func (s *Store) SaveReport(ctx context.Context, html, reportJSON string, projectCount int) error {
	report := domain.DailyReport{
		ReportDate:   s.today().Format(dateLayout),
		ReportHTML:   html,
		ReportJSON:   reportJSON,
		ProjectCount: projectCount,
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "report_date"}},
			DoUpdates: clause.AssignmentColumns([]string{"report_html", "report_json", "project_count", "updated_at"}),
		}).
		Create(&report).Error
	if err != nil {
		return common.WrapError(common.ErrCodeDatabase, "保存日报失败", err)
	}
	return nil
}

// ListReports 历史列表，不包含 HTML 和 JSON 正文
func (s *Store) ListReports(ctx context.Context, limit int) ([]domain.DailyReport, error) {
	if limit <= 0 || limit > 365 {
		limit = 50
	}
	var reports []domain.DailyReport
	err := s.db.WithContext(ctx).
		Select("id", "report_date", "project_count", "created_at", "updated_at").
		Order("report_date DESC").
		Limit(limit).
		Find(&reports).Error
	if err != nil {
		return nil, common.WrapError(common.ErrCodeDatabase, "查询日报列表失败", err)
	}
	return reports, nil
}

func (s *Store) GetReport(ctx context.Context, id uint) (*domain.DailyReport, error) {
	var report domain.DailyReport
	err := s.db.WithContext(ctx).First(&report, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NewError(common.ErrCodeNotFound, "日报不存在")
	}
	if err != nil {
		return nil, common.WrapError(common.ErrCodeDatabase, "查询日报失败", err)
	}
	return &report, nil
}

func (s *Store) LatestReport(ctx context.Context) (*domain.DailyReport, error) {
	var report domain.DailyReport
	err := s.db.WithContext(ctx).Order("report_date DESC").First(&report).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NewError(common.ErrCodeNotFound, "暂无报告")
	}
	if err != nil {
		return nil, common.WrapError(common.ErrCodeDatabase, "查询最新日报失败", err)
	}
	return &report, nil
}

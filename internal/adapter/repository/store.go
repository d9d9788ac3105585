package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github-trending-digest/internal/common"
	"github-trending-digest/internal/domain"
)

// Store 基于 gorm 的持久化，实现了 PushHistory / ReportStore / UserStore / DirectionStore
type Store struct {
	db       *gorm.DB
	nowFunc  func() time.Time
	location *time.Location
}

// Open 按驱动连接数据库并自动迁移表结构
func Open(driver, dsn string, loc *time.Location) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, common.NewError(common.ErrCodeConfig, fmt.Sprintf("不支持的数据库驱动: %s", driver))
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, common.WrapError(common.ErrCodeDatabase, "连接数据库失败", err)
	}

	store := NewStore(db, loc)
	if err := store.Migrate(context.Background()); err != nil {
		return nil, err
	}
	return store, nil
}

func NewStore(db *gorm.DB, loc *time.Location) *Store {
	if loc == nil {
		loc = time.Local
	}
	return &Store{db: db, nowFunc: time.Now, location: loc}
}

// Migrate 建表并写入默认技术栈
func (s *Store) Migrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(
		&domain.PushRecord{},
		&domain.DailyReport{},
		&domain.User{},
		&domain.UserEmail{},
		&domain.AppConfig{},
	)
	if err != nil {
		return common.WrapError(common.ErrCodeDatabase, "数据库迁移失败", err)
	}
	return s.seedTechStack(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// today 按业务时区计算的日期 YYYY-MM-DD
func (s *Store) today() time.Time {
	now := s.nowFunc().In(s.location)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.location)
}

const dateLayout = "2006-01-02"

package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github-trending-digest/internal/common"
	"github-trending-digest/internal/domain"
)

// GetUsersForEmail 开启了邮件且至少有一个已验证邮箱的用户
func (s *Store) GetUsersForEmail(ctx context.Context) ([]domain.EmailUser, error) {
	var users []domain.User
	err := s.db.WithContext(ctx).
		Preload("Emails", "verified = ?", true).
		Where("email_enabled = ?", true).
		Order("id").
		Find(&users).Error
	if err != nil {
		return nil, common.WrapError(common.ErrCodeDatabase, "查询邮件用户失败", err)
	}

	out := make([]domain.EmailUser, 0, len(users))
	for _, u := range users {
		if len(u.Emails) == 0 {
			continue
		}
		addrs := make([]string, 0, len(u.Emails))
		for _, e := range u.Emails {
			addrs = append(addrs, e.Address)
		}
		out = append(out, domain.EmailUser{ID: u.ID, Emails: addrs, Directions: u.Directions})
	}
	return out, nil
}

func (s *Store) GetUser(ctx context.Context, id uint) (*domain.User, error) {
	var user domain.User
	err := s.db.WithContext(ctx).Preload("Emails").First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NewError(common.ErrCodeNotFound, "用户不存在")
	}
	if err != nil {
		return nil, common.WrapError(common.ErrCodeDatabase, "查询用户失败", err)
	}
	return &user, nil
}

func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	if user.Role == "" {
		user.Role = domain.RoleUser
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return common.WrapError(common.ErrCodeDatabase, "创建用户失败", err)
	}
	return nil
}

// GetUserDirections 用户没有配置时返回空切片，由调用方决定是否回退到默认方向
func (s *Store) GetUserDirections(ctx context.Context, userID uint) ([]domain.Direction, error) {
	var user domain.User
	err := s.db.WithContext(ctx).Select("id", "directions").First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NewError(common.ErrCodeNotFound, "用户不存在")
	}
	if err != nil {
		return nil, common.WrapError(common.ErrCodeDatabase, "查询用户方向失败", err)
	}
	return user.Directions, nil
}

func (s *Store) SetUserDirections(ctx context.Context, userID uint, directions []domain.Direction) error {
	if directions == nil {
		directions = []domain.Direction{}
	}
	res := s.db.WithContext(ctx).
		Model(&domain.User{ID: userID}).
		Select("Directions").
		Updates(&domain.User{Directions: directions})
	if res.Error != nil {
		return common.WrapError(common.ErrCodeDatabase, "保存用户方向失败", res.Error)
	}
	if res.RowsAffected == 0 {
		return common.NewError(common.ErrCodeNotFound, "用户不存在")
	}
	return nil
}

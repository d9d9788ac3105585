package domain

import "time"

// Dimension 趋势榜的时间维度
type Dimension string

const (
	Daily   Dimension = "daily"
	Weekly  Dimension = "weekly"
	Monthly Dimension = "monthly"
)

// Dimensions 固定的抓取顺序
var Dimensions = []Dimension{Daily, Weekly, Monthly}

// 分类是一个封闭集合
const (
	CategoryAI       = "AI/LLM"
	CategoryFrontend = "前端框架"
	CategoryDevOps   = "DevOps/工具"
	CategoryLanguage = "编程语言/库"
	CategoryOther    = "其他"
)

// Categories 合法分类列表
var Categories = []string{CategoryAI, CategoryFrontend, CategoryDevOps, CategoryLanguage, CategoryOther}

// NormalizeCategory 不在封闭集合里的分类一律归为“其他”
func NormalizeCategory(c string) string {
	for _, known := range Categories {
		if c == known {
			return c
		}
	}
	return CategoryOther
}

// TrendingRepo 从趋势榜抓取到的项目，Name (owner/repo) 是全流程的唯一键
type TrendingRepo struct {
	Name          string   `json:"name"` // 例如 "gohugoio/hugo"
	URL           string   `json:"url"`
	Description   string   `json:"description"`
	Language      string   `json:"language"`
	Stars         int      `json:"stars"`
	StarsDelta    int      `json:"stars_today"` // 当前维度内的新增 star
	Forks         int      `json:"forks"`
	Topics        []string `json:"topics"`
	ReadmeSnippet string   `json:"readme_snippet,omitempty"`
}

// AnalyzedRepo LLM 分类结果，所有用户共享，只读
type AnalyzedRepo struct {
	Repo     *TrendingRepo `json:"repo"`
	Category string        `json:"category"`
	Summary  string        `json:"summary_zh"`
	Detail   string        `json:"detail_zh"`
	TechTags []string      `json:"tech_tags"`

	// Degraded 为 true 表示 LLM 失败后的降级记录
	Degraded bool `json:"degraded"`
}

// PersonalizedRepo 某个用户视角下的评分结果，每次个性化都会生成新的值
type PersonalizedRepo struct {
	*AnalyzedRepo

	RelevanceScore  int    `json:"relevance_score"` // 0-10
	RelevanceReason string `json:"relevance_reason"`
	Highlight       bool   `json:"highlight"`
	FinalScore      int    `json:"final_score"`
}

// Direction 用户关注的技术方向
type Direction struct {
	Name    string   `json:"name"`
	Enabled bool     `json:"enabled"`
	Tags    []string `json:"tags"`
}

// EmailUser 需要接收个性化日报的用户
type EmailUser struct {
	ID         uint
	Emails     []string
	Directions []Direction
}

// PushRecord 推送历史，用于去重
type PushRecord struct {
	RepoName   string `json:"repo_name" gorm:"primaryKey;size:255"`
	FirstSeen  string `json:"first_seen" gorm:"size:10"`
	LastPushed string `json:"last_pushed" gorm:"size:10;index"`
	PushCount  int    `json:"push_count" gorm:"default:1"`
}

// DailyReport 每天一份，按日期 upsert
type DailyReport struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	ReportDate   string    `json:"report_date" gorm:"size:10;uniqueIndex"`
	ReportHTML   string    `json:"report_html,omitempty" gorm:"type:text"`
	ReportJSON   string    `json:"report_json,omitempty" gorm:"type:text"`
	ProjectCount int       `json:"project_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// User 注册用户，Directions 为空时使用全局默认方向
type User struct {
	ID           uint        `json:"id" gorm:"primaryKey"`
	Username     string      `json:"username" gorm:"size:64;uniqueIndex"`
	Role         string      `json:"role" gorm:"size:16;default:user"`
	EmailEnabled bool        `json:"email_enabled"`
	Directions   []Direction `json:"directions" gorm:"serializer:json;type:text"`
	Emails       []UserEmail `json:"emails"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// UserEmail 用户绑定的邮箱，只有验证过的才会收到邮件
type UserEmail struct {
	ID       uint   `json:"id" gorm:"primaryKey"`
	UserID   uint   `json:"user_id" gorm:"index"`
	Address  string `json:"address" gorm:"size:255"`
	Verified bool   `json:"verified"`
}

// AppConfig 简单的 key/value 配置表 (tech_stack 等)
type AppConfig struct {
	Key   string `gorm:"primaryKey;size:64"`
	Value string `gorm:"type:text"`
}

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

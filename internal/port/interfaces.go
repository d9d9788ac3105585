package port

import (
	"context"

	"github-trending-digest/internal/domain"
)

// Scraper (侦察兵): 抓取 GitHub Trending 页面
// 三个维度 × 多个语言，按 slug 在维度内合并
type Scraper interface {
	FetchTrendingMulti(ctx context.Context, languages []string) (map[domain.Dimension][]*domain.TrendingRepo, error)
}

// Enricher 通过 GitHub API 补充 topics 和 README 摘要
// 单个项目失败不影响整体，返回值里缺失的项目视为被丢弃
type Enricher interface {
	EnrichRepos(ctx context.Context, repos []*domain.TrendingRepo) []*domain.TrendingRepo
}

// Classifier (鉴定师): 调用 LLM 分类并生成中文摘要
// 返回数量总是等于输入数量，LLM 失败时使用降级记录
type Classifier interface {
	Classify(ctx context.Context, repos []*domain.TrendingRepo, directions []domain.Direction) []*domain.AnalyzedRepo
}

// LLMProvider 一问一答的 LLM 调用
type LLMProvider interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Renderer 把个性化结果渲染成 HTML 日报
type Renderer interface {
	Generate(byDim map[domain.Dimension][]domain.PersonalizedRepo, totalScraped, skipped int) (string, error)
	// EncodeJSON 按维度分组的结构化结果，存入 daily_reports.report_json
	EncodeJSON(byDim map[domain.Dimension][]domain.PersonalizedRepo) (string, error)
}

// Mailer (信使): 邮件发送
type Mailer interface {
	// SendToUser 发送某个用户的个性化日报
	SendToUser(ctx context.Context, html string, addrs []string) (bool, error)
	// SendReport 发送默认日报给兜底收件人
	SendReport(ctx context.Context, html string, addrs []string) (bool, error)
}

// RunNotifier 运行结束后的摘要推送 (飞书)
type RunNotifier interface {
	NotifyRun(ctx context.Context, result domain.RunResult) error
}

// PushHistory 推送历史，去重窗口的唯一依据
type PushHistory interface {
	IsRecentlyPushed(ctx context.Context, slug string, windowDays int) (bool, error)
	MarkPushed(ctx context.Context, slugs []string) error
	// CountPushedOn 返回 last_pushed 等于 date (YYYY-MM-DD) 的记录数
	CountPushedOn(ctx context.Context, date string) (int64, error)
}

// ReportStore 日报存储，每天一份
type ReportStore interface {
	SaveReport(ctx context.Context, html, reportJSON string, projectCount int) error
	ListReports(ctx context.Context, limit int) ([]domain.DailyReport, error)
	GetReport(ctx context.Context, id uint) (*domain.DailyReport, error)
	LatestReport(ctx context.Context) (*domain.DailyReport, error)
}

// UserStore 用户及其关注方向
type UserStore interface {
	GetUsersForEmail(ctx context.Context) ([]domain.EmailUser, error)
	GetUserDirections(ctx context.Context, userID uint) ([]domain.Direction, error)
	SetUserDirections(ctx context.Context, userID uint, directions []domain.Direction) error
}

// DirectionStore 全局默认技术栈
type DirectionStore interface {
	GetTechStack(ctx context.Context) ([]domain.Direction, error)
	SetTechStack(ctx context.Context, directions []domain.Direction) error
}

// TriggerCounter 手动触发的每日计数，按 用户 + 日期 隔离
type TriggerCounter interface {
	Count(ctx context.Context, userID uint, date string) (int, error)
	Increment(ctx context.Context, userID uint, date string) error
}

// StateMirror 把流水线状态同步到外部存储 (Redis)，供多实例的前端读取
type StateMirror interface {
	SaveProgress(ctx context.Context, p domain.Progress) error
	SaveStatus(ctx context.Context, running bool, last *domain.RunResult) error
}

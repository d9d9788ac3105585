package service

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github-trending-digest/internal/domain"
	"github-trending-digest/internal/matcher"
	"github-trending-digest/internal/metrics"
	"github-trending-digest/internal/port"
	"github-trending-digest/internal/progress"
	"github-trending-digest/pkg/logger"
)

// Options 流水线参数
type Options struct {
	Languages      []string
	MaxProjects    int      // 每个维度最多保留的项目数
	DedupDays      int      // 去重窗口，<= 0 表示不去重
	FallbackEmails []string // 没有被任何用户覆盖的兜底收件人
}

// Deps 流水线依赖的协作者，Notifier / Metrics 可以为空
type Deps struct {
	Scraper    port.Scraper
	Enricher   port.Enricher
	Classifier port.Classifier
	Renderer   port.Renderer
	Mailer     port.Mailer
	History    port.PushHistory
	Reports    port.ReportStore
	Users      port.UserStore
	Directions port.DirectionStore
	Notifier   port.RunNotifier
	Tracker    *progress.Tracker
	Metrics    *metrics.Metrics
}

// PipelineService 抓取 → 去重 → 补充 → 分析 → 日报 → 邮件
type PipelineService struct {
	scraper    port.Scraper
	enricher   port.Enricher
	classifier port.Classifier
	renderer   port.Renderer
	mailer     port.Mailer
	history    port.PushHistory
	reports    port.ReportStore
	users      port.UserStore
	directions port.DirectionStore
	notifier   port.RunNotifier
	tracker    *progress.Tracker
	metrics    *metrics.Metrics
	scorer     matcher.Scorer

	opts     Options
	nowFunc  func() time.Time
	newRunID func() string
}

func NewPipelineService(deps Deps, opts Options) *PipelineService {
	if opts.MaxProjects <= 0 {
		opts.MaxProjects = 25
	}
	tracker := deps.Tracker
	if tracker == nil {
		tracker = progress.NewTracker()
	}
	return &PipelineService{
		scraper:    deps.Scraper,
		enricher:   deps.Enricher,
		classifier: deps.Classifier,
		renderer:   deps.Renderer,
		mailer:     deps.Mailer,
		history:    deps.History,
		reports:    deps.Reports,
		users:      deps.Users,
		directions: deps.Directions,
		notifier:   deps.Notifier,
		tracker:    tracker,
		metrics:    deps.Metrics,
		scorer:     matcher.TagMatchScorer{Match: matcher.FuzzyMatch},
		opts:       opts,
		nowFunc:    time.Now,
		newRunID:   uuid.NewString,
	}
}

// Tracker 当前进度，供状态接口读取
func (s *PipelineService) Tracker() *progress.Tracker {
	return s.tracker
}

// SetScorer 替换个性化评分策略
func (s *PipelineService) SetScorer(scorer matcher.Scorer) {
	if scorer != nil {
		s.scorer = scorer
	}
}

// Run 执行一次完整流水线。除抓取外任何阶段失败都不会中断运行，panic 会被转换成 error 结果
func (s *PipelineService) Run(ctx context.Context) (result domain.RunResult) {
	result = domain.RunResult{RunID: s.newRunID(), StartedAt: s.nowFunc()}
	s.tracker.Reset()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Str("run_id", result.RunID).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("💥 流水线异常")
			result.Status = domain.RunError
			result.Message = fmt.Sprintf("%v", r)
			s.tracker.Fail(fmt.Sprintf("运行出错: %v", r))
		}
		result.FinishedAt = s.nowFunc()
		s.metrics.RunFinished(string(result.Status))
		logger.Info().
			Str("run_id", result.RunID).
			Str("status", string(result.Status)).
			Dur("elapsed", result.FinishedAt.Sub(result.StartedAt)).
			Msg("🏁 流水线结束")
	}()

	logger.Info().Str("run_id", result.RunID).Msg("🚀 流水线开始")
	s.execute(ctx, &result)
	return result
}

func (s *PipelineService) execute(ctx context.Context, result *domain.RunResult) {
	defaultDirs := s.loadDefaultDirections(ctx)

	// 1. 抓取
	done := s.enter(domain.Progress{Step: progress.StepScraping})
	byDim, err := s.scraper.FetchTrendingMulti(ctx, s.opts.Languages)
	done()
	total := countAll(byDim)
	if err != nil || total == 0 {
		if err != nil {
			logger.Error().Err(err).Str("stage", progress.StepScraping).Msg("❌ 抓取失败")
		}
		result.Status = domain.RunNoData
		result.Message = "没有抓取到任何项目"
		s.tracker.SetStep(progress.StepDone, result.Message)
		return
	}
	s.metrics.AddRepos("scraped", total)
	logger.Info().Str("stage", progress.StepScraping).Int("count", total).Msg("✅ 抓取完成")

	// 2. 去重
	done = s.enter(domain.Progress{Step: progress.StepDedup, Message: fmt.Sprintf("正在去重，共抓取 %d 个项目", total)})
	fresh, skipped := s.dedup(ctx, byDim)
	done()
	result.Total = total
	result.Skipped = skipped
	distinct := distinctRepos(fresh)
	if len(distinct) == 0 {
		result.Status = domain.RunAllDeduped
		result.Message = "所有项目近期都已推送过"
		s.tracker.SetStep(progress.StepDone, result.Message)
		return
	}
	s.metrics.AddRepos("deduped", skipped)
	logger.Info().Str("stage", progress.StepDedup).Int("count", len(distinct)).Int("skipped", skipped).Msg("✅ 去重完成")

	// 3. 补充 GitHub 信息，每个 slug 只请求一次
	done = s.enter(domain.Progress{Step: progress.StepEnriching, Message: fmt.Sprintf("正在获取 %d 个项目详情", len(distinct))})
	enriched := s.enricher.EnrichRepos(ctx, distinct)
	done()
	enrichedBySlug := make(map[string]*domain.TrendingRepo, len(enriched))
	ordered := make([]*domain.TrendingRepo, 0, len(enriched))
	for _, r := range enriched {
		if r == nil {
			continue
		}
		if _, ok := enrichedBySlug[r.Name]; ok {
			continue
		}
		enrichedBySlug[r.Name] = r
		ordered = append(ordered, r)
	}
	if len(ordered) < len(distinct) {
		logger.Warn().Str("stage", progress.StepEnriching).Int("dropped", len(distinct)-len(ordered)).Msg("⚠️ 部分项目补充后丢失")
	}

	// 4. LLM 分析，整轮只调用一次
	done = s.enter(domain.Progress{Step: progress.StepAnalyzing, Message: fmt.Sprintf("AI 正在分析 %d 个项目", len(ordered))})
	analyzed := s.classifier.Classify(ctx, ordered, defaultDirs)
	done()
	analyzedBySlug := make(map[string]*domain.AnalyzedRepo, len(analyzed))
	degraded := 0
	for _, a := range analyzed {
		if a == nil || a.Repo == nil {
			continue
		}
		analyzedBySlug[a.Repo.Name] = a
		if a.Degraded {
			degraded++
		}
	}
	s.metrics.AddDegraded(degraded)
	byDimAnalyzed := project(fresh, enrichedBySlug, analyzedBySlug)

	// 5. 默认视角的日报
	done = s.enter(domain.Progress{Step: progress.StepReport})
	defaultView := s.personalize(byDimAnalyzed, defaultDirs)
	defaultHTML := s.saveDefaultReport(ctx, defaultView, total, skipped, len(analyzedBySlug))

	slugs := make([]string, 0, len(analyzedBySlug))
	for _, r := range ordered {
		if _, ok := analyzedBySlug[r.Name]; ok {
			slugs = append(slugs, r.Name)
		}
	}
	if err := s.history.MarkPushed(ctx, slugs); err != nil {
		logger.Error().Err(err).Str("stage", progress.StepReport).Msg("❌ 写入推送历史失败")
	}
	s.metrics.AddRepos("pushed", len(slugs))
	done()
	result.Pushed = len(slugs)

	// 6. 个性化邮件 + 兜底收件人
	done = s.enter(domain.Progress{Step: progress.StepEmail})
	s.deliver(ctx, result, byDimAnalyzed, defaultDirs, defaultHTML, total, skipped)
	done()

	// 7. 完成
	result.Status = domain.RunSuccess
	result.Message = fmt.Sprintf("推送 %d 个项目，通知 %d 位用户", result.Pushed, result.UsersNotified)
	s.tracker.SetStep(progress.StepDone, result.Message)

	if s.notifier != nil {
		snapshot := *result
		snapshot.FinishedAt = s.nowFunc()
		if err := s.notifier.NotifyRun(ctx, snapshot); err != nil {
			logger.Warn().Err(err).Msg("⚠️ 飞书通知失败")
		}
	}
}

// enter 推进进度并返回记录阶段耗时的函数
func (s *PipelineService) enter(p domain.Progress) func() {
	s.tracker.SetStep(p.Step, p.Message)
	logger.Info().Str("stage", p.Step).Msg("▶️ " + s.tracker.Snapshot().Message)
	start := time.Now()
	return func() { s.metrics.ObserveStage(p.Step, start) }
}

// loadDefaultDirections 读取失败时使用内置默认方向
func (s *PipelineService) loadDefaultDirections(ctx context.Context) []domain.Direction {
	if s.directions == nil {
		return domain.DefaultDirections()
	}
	dirs, err := s.directions.GetTechStack(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("⚠️ 读取技术栈失败，使用默认方向")
		return domain.DefaultDirections()
	}
	return dirs
}

// dedup 按维度过滤近期推送过的项目并截断；读推送历史出错时保留该项目
func (s *PipelineService) dedup(ctx context.Context, byDim map[domain.Dimension][]*domain.TrendingRepo) (map[domain.Dimension][]*domain.TrendingRepo, int) {
	recent := make(map[string]bool)
	skipped := 0
	fresh := make(map[domain.Dimension][]*domain.TrendingRepo, len(byDim))

	for _, dim := range domain.Dimensions {
		var kept []*domain.TrendingRepo
		for _, r := range byDim[dim] {
			if r == nil {
				continue
			}
			pushed, ok := recent[r.Name]
			if !ok {
				var err error
				pushed, err = s.history.IsRecentlyPushed(ctx, r.Name, s.opts.DedupDays)
				if err != nil {
					logger.Warn().Err(err).Str("repo", r.Name).Msg("⚠️ 查询推送历史失败，保留该项目")
					pushed = false
				}
				recent[r.Name] = pushed
			}
			if pushed {
				skipped++
				continue
			}
			kept = append(kept, r)
		}
		if len(kept) > s.opts.MaxProjects {
			kept = kept[:s.opts.MaxProjects]
		}
		if len(kept) > 0 {
			fresh[dim] = kept
		}
	}
	return fresh, skipped
}

func (s *PipelineService) personalize(byDim map[domain.Dimension][]*domain.AnalyzedRepo, dirs []domain.Direction) map[domain.Dimension][]domain.PersonalizedRepo {
	out := make(map[domain.Dimension][]domain.PersonalizedRepo, len(byDim))
	for dim, list := range byDim {
		out[dim] = matcher.Personalize(list, dirs, s.scorer)
	}
	return out
}

// saveDefaultReport 渲染并保存当天日报，返回 HTML 给兜底邮件使用
func (s *PipelineService) saveDefaultReport(ctx context.Context, view map[domain.Dimension][]domain.PersonalizedRepo, total, skipped, count int) string {
	html, err := s.renderer.Generate(view, total, skipped)
	if err != nil {
		logger.Error().Err(err).Str("stage", progress.StepReport).Msg("❌ 渲染日报失败")
		return ""
	}

	reportJSON, err := s.renderer.EncodeJSON(view)
	if err != nil {
		logger.Error().Err(err).Str("stage", progress.StepReport).Msg("❌ 序列化日报失败")
		reportJSON = "{}"
	}
	if err := s.reports.SaveReport(ctx, html, reportJSON, count); err != nil {
		logger.Error().Err(err).Str("stage", progress.StepReport).Msg("❌ 保存日报失败")
	} else {
		logger.Info().Str("stage", progress.StepReport).Int("count", count).Msg("💾 日报已保存")
	}
	return html
}

// deliver 逐个用户发送个性化日报，再给没覆盖到的兜底收件人发送默认日报
func (s *PipelineService) deliver(
	ctx context.Context,
	result *domain.RunResult,
	byDim map[domain.Dimension][]*domain.AnalyzedRepo,
	defaultDirs []domain.Direction,
	defaultHTML string,
	total, skipped int,
) {
	if s.mailer == nil {
		logger.Warn().Msg("⚠️ 未配置邮件通道，跳过发送")
		return
	}

	covered := make(map[string]struct{})

	var users []domain.EmailUser
	if s.users != nil {
		var err error
		users, err = s.users.GetUsersForEmail(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("❌ 查询邮件用户失败")
		}
	}

	for _, u := range users {
		if ctx.Err() != nil {
			logger.Warn().Msg("⏰ 上下文已取消，停止发送邮件")
			return
		}

		dirs := u.Directions
		if len(dirs) == 0 {
			dirs = defaultDirs
		}
		html, err := s.renderer.Generate(s.personalize(byDim, dirs), total, skipped)
		if err != nil {
			logger.Error().Err(err).Uint("user_id", u.ID).Msg("❌ 渲染个性化日报失败")
			continue
		}

		ok, err := s.mailer.SendToUser(ctx, html, u.Emails)
		s.metrics.EmailSent("user", ok)
		if err != nil || !ok {
			logger.Error().Err(err).Uint("user_id", u.ID).Msg("❌ 个性化邮件发送失败")
			continue
		}
		for _, addr := range u.Emails {
			covered[strings.ToLower(strings.TrimSpace(addr))] = struct{}{}
		}
		result.UsersNotified++
		result.EmailSent = true
		logger.Info().Uint("user_id", u.ID).Int("count", len(u.Emails)).Msg("📧 个性化日报已发送")
	}

	var remaining []string
	for _, addr := range s.opts.FallbackEmails {
		key := strings.ToLower(strings.TrimSpace(addr))
		if key == "" {
			continue
		}
		if _, ok := covered[key]; ok {
			continue
		}
		covered[key] = struct{}{}
		remaining = append(remaining, strings.TrimSpace(addr))
	}
	if len(remaining) == 0 {
		return
	}
	if defaultHTML == "" {
		logger.Warn().Msg("⚠️ 没有可用的默认日报，跳过兜底邮件")
		return
	}

	ok, err := s.mailer.SendReport(ctx, defaultHTML, remaining)
	s.metrics.EmailSent("fallback", ok)
	if err != nil || !ok {
		logger.Error().Err(err).Int("count", len(remaining)).Msg("❌ 兜底邮件发送失败")
		return
	}
	result.EmailSent = true
	logger.Info().Int("count", len(remaining)).Msg("📧 默认日报已发送给兜底收件人")
}

func countAll(byDim map[domain.Dimension][]*domain.TrendingRepo) int {
	n := 0
	for _, list := range byDim {
		n += len(list)
	}
	return n
}

// distinctRepos 按维度顺序首次出现的 slug
func distinctRepos(byDim map[domain.Dimension][]*domain.TrendingRepo) []*domain.TrendingRepo {
	seen := make(map[string]struct{})
	var out []*domain.TrendingRepo
	for _, dim := range domain.Dimensions {
		for _, r := range byDim[dim] {
			if _, ok := seen[r.Name]; ok {
				continue
			}
			seen[r.Name] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}

// project 把共享的分析结果投影回各个维度，保留每个维度自己的 star 增量
func project(
	fresh map[domain.Dimension][]*domain.TrendingRepo,
	enriched map[string]*domain.TrendingRepo,
	analyzed map[string]*domain.AnalyzedRepo,
) map[domain.Dimension][]*domain.AnalyzedRepo {
	out := make(map[domain.Dimension][]*domain.AnalyzedRepo, len(fresh))
	for _, dim := range domain.Dimensions {
		for _, r := range fresh[dim] {
			e, ok := enriched[r.Name]
			if !ok {
				continue
			}
			a, ok := analyzed[r.Name]
			if !ok {
				continue
			}
			if e.StarsDelta == r.StarsDelta {
				out[dim] = append(out[dim], a)
				continue
			}
			view := *e
			view.StarsDelta = r.StarsDelta
			dimAnalyzed := *a
			dimAnalyzed.Repo = &view
			out[dim] = append(out[dim], &dimAnalyzed)
		}
	}
	return out
}

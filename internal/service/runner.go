package service

import (
	"context"
	"sync"
	"time"

	"github-trending-digest/internal/domain"
	"github-trending-digest/internal/metrics"
	"github-trending-digest/internal/port"
	"github-trending-digest/internal/progress"
	"github-trending-digest/pkg/logger"
)

// Pipeline 一次完整运行，PipelineService 实现
type Pipeline interface {
	Run(ctx context.Context) domain.RunResult
}

// RunnerOptions 手动触发相关配置
type RunnerOptions struct {
	DailyLimit int // 普通用户每天可手动触发的次数，<= 0 表示不限制
	Location   *time.Location
	Metrics    *metrics.Metrics
}

// Runner 保证同一时间只有一次运行，并维护最近一次结果
type Runner struct {
	ctx      context.Context
	pipeline Pipeline
	tracker  *progress.Tracker
	history  port.PushHistory
	counter  port.TriggerCounter
	mirror   port.StateMirror
	metrics  *metrics.Metrics

	dailyLimit int
	location   *time.Location
	nowFunc    func() time.Time

	mu      sync.Mutex
	running bool
	last    *domain.RunResult
	wg      sync.WaitGroup
}

// NewRunner ctx 是后台运行使用的根上下文，进程退出时取消
func NewRunner(ctx context.Context, pipeline Pipeline, tracker *progress.Tracker, history port.PushHistory, counter port.TriggerCounter, opts RunnerOptions) *Runner {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	if tracker == nil {
		tracker = progress.NewTracker()
	}
	return &Runner{
		ctx:        ctx,
		pipeline:   pipeline,
		tracker:    tracker,
		history:    history,
		counter:    counter,
		metrics:    opts.Metrics,
		dailyLimit: opts.DailyLimit,
		location:   loc,
		nowFunc:    time.Now,
	}
}

// SetMirror 把进度和状态同步到外部存储，写失败只记日志
func (r *Runner) SetMirror(m port.StateMirror) {
	r.mu.Lock()
	r.mirror = m
	r.mu.Unlock()

	if m == nil {
		r.tracker.OnChange(nil)
		return
	}
	r.tracker.OnChange(func(p domain.Progress) {
		if err := m.SaveProgress(r.ctx, p); err != nil {
			logger.Warn().Err(err).Msg("⚠️ 同步进度到 Redis 失败")
		}
	})
}

func (r *Runner) today() string {
	return r.nowFunc().In(r.location).Format("2006-01-02")
}

// TryStart 手动触发：正在运行返回 already_running，超过每日次数返回 limit_reached
// userID 为 0 表示未开启鉴权，管理员不受次数限制
func (r *Runner) TryStart(ctx context.Context, userID uint, isAdmin bool) domain.TriggerStatus {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		r.metrics.Trigger(string(domain.TriggerAlreadyRunning))
		return domain.TriggerAlreadyRunning
	}

	limited := userID != 0 && !isAdmin && r.dailyLimit > 0 && r.counter != nil
	today := r.today()
	if limited {
		count, err := r.counter.Count(ctx, userID, today)
		if err != nil {
			logger.Warn().Err(err).Uint("user_id", userID).Msg("⚠️ 读取触发次数失败，按 0 处理")
		} else if count >= r.dailyLimit {
			r.mu.Unlock()
			r.metrics.Trigger(string(domain.TriggerLimitReached))
			return domain.TriggerLimitReached
		}
	}

	r.running = true
	r.wg.Add(1)
	r.mu.Unlock()

	if limited {
		if err := r.counter.Increment(ctx, userID, today); err != nil {
			logger.Warn().Err(err).Uint("user_id", userID).Msg("⚠️ 记录触发次数失败")
		}
	}
	r.syncStatus(true, nil)
	r.metrics.Trigger(string(domain.TriggerStarted))
	logger.Info().Uint("user_id", userID).Msg("👆 手动触发流水线")

	go func() {
		defer r.wg.Done()
		r.execute(r.ctx)
	}()
	return domain.TriggerStarted
}

// RunNow 同步运行一次 (定时任务 / 命令行)，已有运行时返回 false
func (r *Runner) RunNow(ctx context.Context) (domain.RunResult, bool) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		logger.Warn().Msg("⏭️ 已有流水线在运行，跳过本次")
		return domain.RunResult{}, false
	}
	r.running = true
	r.wg.Add(1)
	r.mu.Unlock()

	defer r.wg.Done()
	r.syncStatus(true, nil)
	return r.execute(ctx), true
}

func (r *Runner) execute(ctx context.Context) domain.RunResult {
	result := r.pipeline.Run(ctx)

	r.mu.Lock()
	r.running = false
	r.last = &result
	r.mu.Unlock()

	r.syncStatus(false, &result)
	return result
}

func (r *Runner) syncStatus(running bool, last *domain.RunResult) {
	r.mu.Lock()
	m := r.mirror
	r.mu.Unlock()
	if m == nil {
		return
	}
	if err := m.SaveStatus(r.ctx, running, last); err != nil {
		logger.Warn().Err(err).Msg("⚠️ 同步状态到 Redis 失败")
	}
}

// Running 当前是否有运行中的流水线
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Status /api/status 的快照，today_pushed 查询失败时为 false
func (r *Runner) Status(ctx context.Context) domain.PipelineStatus {
	r.mu.Lock()
	status := domain.PipelineStatus{Running: r.running}
	if r.last != nil {
		last := *r.last
		status.LastResult = &last
	}
	r.mu.Unlock()

	status.Progress = r.tracker.Snapshot()
	if r.history != nil {
		n, err := r.history.CountPushedOn(ctx, r.today())
		if err != nil {
			logger.Warn().Err(err).Msg("⚠️ 查询今日推送失败")
		}
		status.TodayPushed = n > 0
	}
	return status
}

// Wait 等待后台运行结束，优雅退出时使用
func (r *Runner) Wait() {
	r.wg.Wait()
}

package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github-trending-digest/internal/common"
	"github-trending-digest/internal/domain"
	"github-trending-digest/pkg/logger"
)

// Job 定时执行的流水线，Runner 实现
type Job interface {
	RunNow(ctx context.Context) (domain.RunResult, bool)
}

// Scheduler 每天固定时间触发一次流水线
type Scheduler struct {
	cron    *cron.Cron
	job     Job
	ctx     context.Context
	spec    string
	entryID cron.EntryID
}

// New spec 为标准 5 段 cron 表达式，按 loc 时区解释
func New(ctx context.Context, spec string, loc *time.Location, job Job) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	l := cronLogger{}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(l),
			cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
		),
		job:  job,
		ctx:  ctx,
		spec: spec,
	}

	id, err := s.cron.AddFunc(spec, s.fire)
	if err != nil {
		return nil, common.WrapError(common.ErrCodeConfig, fmt.Sprintf("无效的 cron 表达式: %s", spec), err)
	}
	s.entryID = id
	return s, nil
}

func (s *Scheduler) fire() {
	logger.Info().Str("cron", s.spec).Msg("⏰ 定时任务触发")
	result, ran := s.job.RunNow(s.ctx)
	if !ran {
		return
	}
	logger.Info().Str("status", string(result.Status)).Int("pushed", result.Pushed).Msg("⏰ 定时任务完成")
}

func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Info().Str("cron", s.spec).Time("next", s.Next()).Msg("📅 定时任务已启动")
}

// Stop 停止调度并等待正在执行的任务结束
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Next 下一次触发时间
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entryID).Next
}

// cronLogger 把 cron 内部日志转到 zerolog
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}

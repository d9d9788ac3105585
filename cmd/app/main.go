package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github-trending-digest/internal/adapter/analyzer"
	"github-trending-digest/internal/adapter/cache"
	"github-trending-digest/internal/adapter/feishu"
	"github-trending-digest/internal/adapter/gemini"
	"github-trending-digest/internal/adapter/github"
	"github-trending-digest/internal/adapter/mailer"
	"github-trending-digest/internal/adapter/openai"
	"github-trending-digest/internal/adapter/report"
	"github-trending-digest/internal/adapter/repository"
	"github-trending-digest/internal/adapter/trending"
	"github-trending-digest/internal/api"
	"github-trending-digest/internal/config"
	"github-trending-digest/internal/domain"
	"github-trending-digest/internal/metrics"
	"github-trending-digest/internal/port"
	"github-trending-digest/internal/progress"
	"github-trending-digest/internal/scheduler"
	"github-trending-digest/internal/service"
	"github-trending-digest/pkg/logger"
)

func main() {
	// 1. 命令行参数
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	mode := flag.String("mode", "serve", "运行模式: serve (HTTP + 定时任务) 或 run (执行一次后退出)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ 加载配置失败: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Log.Level)

	// 2. 信号处理，优雅关闭
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("❌ 初始化失败")
	}
	defer app.Close()

	// 3. 根据模式分流
	switch *mode {
	case "serve":
		err = app.serve(ctx)
	case "run":
		err = app.runOnce(ctx)
	default:
		err = fmt.Errorf("未知模式 %q，请使用 -mode=serve 或 -mode=run", *mode)
	}
	if err != nil {
		logger.Error().Err(err).Msg("❌ 退出")
		app.Close()
		os.Exit(1)
	}
}

// application 组装好的所有组件
type application struct {
	cfg     *config.Config
	store   *repository.Store
	runner  *service.Runner
	server  *api.Server
	metrics *metrics.Metrics
	closers []func() error
}

func buildApp(ctx context.Context, cfg *config.Config) (*application, error) {
	loc := cfg.Location()
	app := &application{cfg: cfg, metrics: metrics.New()}

	// 数据库
	store, err := repository.Open(cfg.Database.Driver, cfg.Database.DSN, loc)
	if err != nil {
		return nil, err
	}
	app.store = store
	app.closers = append(app.closers, store.Close)

	// LLM
	llm, closeLLM, err := newLLMProvider(ctx, cfg.LLM)
	if err != nil {
		app.Close()
		return nil, err
	}
	if closeLLM != nil {
		app.closers = append(app.closers, closeLLM)
	}

	tracker := progress.NewTracker()

	var notifier port.RunNotifier
	if cfg.Feishu.Webhook != "" {
		notifier = feishu.NewNotifier(cfg.Feishu.Webhook, cfg.Feishu.ReportURL)
	}

	pipeline := service.NewPipelineService(service.Deps{
		Scraper: trending.NewScraper(trending.Options{
			MinDelay:   cfg.Trending.MinDelay,
			MaxDelay:   cfg.Trending.MaxDelay,
			MaxRetries: cfg.Trending.MaxRetries,
		}),
		Enricher:   github.NewEnricher(cfg.GitHub.Token),
		Classifier: analyzer.NewClassifier(llm),
		Renderer:   report.NewRenderer(loc),
		Mailer: mailer.NewSMTPMailer(mailer.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			User:     cfg.SMTP.User,
			Password: cfg.SMTP.Password,
		}, loc),
		History:    store,
		Reports:    store,
		Users:      store,
		Directions: store,
		Notifier:   notifier,
		Tracker:    tracker,
		Metrics:    app.metrics,
	}, service.Options{
		Languages:      cfg.Trending.Languages,
		MaxProjects:    cfg.Trending.MaxProjects,
		DedupDays:      cfg.Trending.DedupDays,
		FallbackEmails: cfg.SMTP.EmailTo,
	})

	// Redis 未开启或连接失败时，触发计数退回内存
	var counter port.TriggerCounter = cache.NewMemoryCounter()
	var mirror port.StateMirror
	if cfg.Redis.Enabled {
		rs, err := cache.NewRedisStore(ctx, cache.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			logger.Warn().Err(err).Msg("⚠️ Redis 不可用，使用内存状态")
		} else {
			counter = rs
			mirror = rs
			app.closers = append(app.closers, rs.Close)
			logger.Info().Str("addr", cfg.Redis.Addr).Msg("✅ 已连接 Redis")
		}
	}

	app.runner = service.NewRunner(ctx, pipeline, tracker, store, counter, service.RunnerOptions{
		DailyLimit: cfg.Trigger.DailyLimit,
		Location:   loc,
		Metrics:    app.metrics,
	})
	if mirror != nil {
		app.runner.SetMirror(mirror)
	}

	app.server = api.NewServer(api.Deps{
		Runner:     app.runner,
		Reports:    store,
		Directions: store,
		Users:      store,
		Metrics:    app.metrics.Handler(),
	}, cfg.Auth.JWTSecret, cfg.Server.Mode)

	if cfg.Auth.JWTSecret == "" {
		logger.Warn().Msg("⚠️ 未配置 JWT_SECRET，接口鉴权已关闭")
	}
	return app, nil
}

// newLLMProvider 按配置选择 OpenAI 兼容接口或 Gemini
func newLLMProvider(ctx context.Context, cfg config.LLMConfig) (port.LLMProvider, func() error, error) {
	switch cfg.Provider {
	case "gemini":
		p, err := gemini.NewProvider(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	case "openai":
		p, err := openai.NewProvider(cfg.APIKey, cfg.BaseURL, cfg.Model)
		if err != nil {
			return nil, nil, err
		}
		return p, nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

// serve HTTP 服务 + 每日定时任务，直到收到退出信号
func (a *application) serve(ctx context.Context) error {
	if a.cfg.Schedule.Enabled {
		sched, err := scheduler.New(ctx, a.cfg.Schedule.Spec(), a.cfg.Location(), a.runner)
		if err != nil {
			return err
		}
		sched.Start()
		defer func() {
			<-sched.Stop().Done()
		}()
	}

	err := a.server.Run(ctx, a.cfg.Server.Addr())
	logger.Info().Msg("⏳ 等待正在运行的流水线结束...")
	a.runner.Wait()
	logger.Info().Msg("👋 已退出")
	return err
}

// runOnce 执行一次流水线并把结果打印到标准输出
func (a *application) runOnce(ctx context.Context) error {
	result, ran := a.runner.RunNow(ctx)
	if !ran {
		return fmt.Errorf("pipeline already running")
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))

	if result.Status == domain.RunError {
		return fmt.Errorf("pipeline failed: %s", result.Message)
	}
	return nil
}

// Close 可重复调用
func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn().Err(err).Msg("⚠️ 关闭资源失败")
		}
	}
	a.closers = nil
}

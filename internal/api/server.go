package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github-trending-digest/internal/domain"
	"github-trending-digest/internal/port"
	"github-trending-digest/pkg/logger"
)

// PipelineRunner 手动触发和状态查询，service.Runner 实现
type PipelineRunner interface {
	TryStart(ctx context.Context, userID uint, isAdmin bool) domain.TriggerStatus
	Status(ctx context.Context) domain.PipelineStatus
}

// Deps HTTP 层依赖
type Deps struct {
	Runner     PipelineRunner
	Reports    port.ReportStore
	Directions port.DirectionStore
	Users      port.UserStore
	Metrics    http.Handler
}

// Server gin 路由 + http.Server
type Server struct {
	engine     *gin.Engine
	runner     PipelineRunner
	reports    port.ReportStore
	directions port.DirectionStore
	users      port.UserStore
	metrics    http.Handler
	jwtSecret  string
}

// NewServer jwtSecret 为空时关闭鉴权
func NewServer(deps Deps, jwtSecret, mode string) *Server {
	if mode != "" {
		gin.SetMode(mode)
	}

	s := &Server{
		engine:     gin.New(),
		runner:     deps.Runner,
		reports:    deps.Reports,
		directions: deps.Directions,
		users:      deps.Users,
		metrics:    deps.Metrics,
		jwtSecret:  jwtSecret,
	}

	s.engine.Use(logger.GinLogger(), logger.GinRecovery(), cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.engine

	r.GET("/", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/latest", s.latestHTML)
	r.POST("/trigger", s.authenticate(true), s.trigger)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}

	api := r.Group("/api")
	api.GET("/health", s.health)
	api.GET("/status", s.status)
	api.POST("/trigger", s.authenticate(true), s.trigger)

	api.GET("/config/tech-stack", s.getTechStack)
	api.PUT("/config/tech-stack", s.authenticate(true), s.adminRequired(), s.putTechStack)

	me := api.Group("/me", s.authenticate(false))
	me.GET("/tech-stack", s.getMyTechStack)
	me.PUT("/tech-stack", s.putMyTechStack)

	api.GET("/reports", s.listReports)
	api.GET("/reports/:id", s.getReport)
	api.GET("/reports/:id/html", s.getReportHTML)
}

// Handler 测试里直接使用
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run 阻塞直到 ctx 取消，然后优雅关闭
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("🌐 HTTP 服务已启动")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info().Msg("🛑 正在关闭 HTTP 服务")
	return srv.Shutdown(shutdownCtx)
}

// Package server 提供爬取任务的HTTP接口
//
// 爬取进度通过服务端推送事件(SSE)实时返回,结果可通过ID查询或下载CSV。
// 浏览器会话是单一共享资源,同一时间只允许一个爬取任务运行。
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/RecoveryAshes/DiscoverCrawl/internal/core"
	"github.com/RecoveryAshes/DiscoverCrawl/internal/crawlers"
	"github.com/RecoveryAshes/DiscoverCrawl/internal/models"
	"github.com/RecoveryAshes/DiscoverCrawl/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 10 * time.Second

// CrawlFunc 执行一次爬取
type CrawlFunc func(ctx context.Context, config models.CrawlConfig, onProgress core.ProgressFunc, onDiscovery crawlers.DiscoveryProgressFunc) (*models.RunResult, error)

// Server HTTP服务
type Server struct {
	config    *core.Config
	store     *utils.ResultStore
	crawl     CrawlFunc
	engine    *gin.Engine
	busy      chan struct{}
	startTime time.Time
}

// Option 可选配置
type Option func(*Server)

// WithCrawlFunc 替换爬取实现
func WithCrawlFunc(fn CrawlFunc) Option {
	return func(s *Server) {
		s.crawl = fn
	}
}

// New 创建服务
func New(config *core.Config, store *utils.ResultStore, opts ...Option) *Server {
	if config.Server.Mode != "" {
		gin.SetMode(config.Server.Mode)
	}

	s := &Server{
		config:    config,
		store:     store,
		busy:      make(chan struct{}, 1),
		startTime: time.Now(),
	}
	s.crawl = s.runCrawl
	for _, opt := range opts {
		opt(s)
	}

	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), loggerMiddleware())
	s.registerRoutes()
	return s
}

// Handler 返回路由,用于测试或嵌入
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run 监听地址直到ctx结束,然后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Server.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		utils.Infof("🌐 HTTP服务已启动: %s", s.config.Server.Addr)
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

	utils.Info("正在关闭HTTP服务...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.health)

	api := s.engine.Group("/api")
	api.GET("/crawl/stream", s.streamCrawl)
	api.GET("/results", s.listResults)
	api.GET("/results/:id", s.getResult)
	api.GET("/results/:id/csv", s.downloadCSV)
}

// runCrawl 默认爬取实现: 启动浏览器并保存结果
func (s *Server) runCrawl(ctx context.Context, config models.CrawlConfig, onProgress core.ProgressFunc, onDiscovery crawlers.DiscoveryProgressFunc) (*models.RunResult, error) {
	runner := core.NewRunner(config, s.config.Output,
		core.WithResultStore(s.store),
		core.WithDiscoveryProgress(onDiscovery),
	)
	return runner.Run(ctx, onProgress)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"uptime": time.Since(s.startTime).Round(time.Second).String(),
		"busy":   len(s.busy) > 0,
	})
}

// loggerMiddleware 每个请求记录一条结构化日志
func loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		event := log.Info()
		if len(c.Errors) > 0 {
			event = log.Error().Strs("errors", c.Errors.Errors())
		}
		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", c.Request.URL.RawQuery).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP请求")
	}
}

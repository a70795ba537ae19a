package core

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/RecoveryAshes/DiscoverCrawl/internal/crawlers"
	"github.com/RecoveryAshes/DiscoverCrawl/internal/models"
	"github.com/RecoveryAshes/DiscoverCrawl/internal/utils"
	"golang.org/x/time/rate"
)

// SessionOpener 创建浏览器会话
type SessionOpener func(config models.BrowserConfig) (crawlers.Session, error)

// OpenRodSession 默认会话: 启动本地Chromium
func OpenRodSession(config models.BrowserConfig) (crawlers.Session, error) {
	session, err := crawlers.LaunchRodSession(config)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Runner 单个关键词的爬取协调器
// 执行流程:
//  1. 打开浏览器会话
//  2. 发现阶段: 搜索页增量滚动,收集商品URL
//  3. 详情阶段: 按发现顺序逐个抽取,每条记录后回调进度
//  4. 汇总统计、生成CSV,保存结果
type Runner struct {
	config  models.CrawlConfig
	output  OutputConfig
	monitor *crawlers.HostMonitor

	openSession  SessionOpener
	detailSource crawlers.DocumentSource
	store        *utils.ResultStore
	onDiscovery  crawlers.DiscoveryProgressFunc
}

// RunnerOption 可选配置
type RunnerOption func(*Runner)

// WithSessionOpener 替换会话创建方式
func WithSessionOpener(open SessionOpener) RunnerOption {
	return func(r *Runner) {
		r.openSession = open
	}
}

// WithDetailSource 指定详情页文档来源,覆盖 detail.mode
func WithDetailSource(source crawlers.DocumentSource) RunnerOption {
	return func(r *Runner) {
		r.detailSource = source
	}
}

// WithResultStore 运行结束后保存结果
func WithResultStore(store *utils.ResultStore) RunnerOption {
	return func(r *Runner) {
		r.store = store
	}
}

// WithDiscoveryProgress 发现阶段进度回调
func WithDiscoveryProgress(fn crawlers.DiscoveryProgressFunc) RunnerOption {
	return func(r *Runner) {
		r.onDiscovery = fn
	}
}

// NewRunner 创建协调器
func NewRunner(config models.CrawlConfig, output OutputConfig, opts ...RunnerOption) *Runner {
	r := &Runner{
		config:      config,
		output:      output,
		monitor:     crawlers.NewHostMonitor(),
		openSession: OpenRodSession,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run 执行爬取
// 只有浏览器不可用、搜索页不可达和调用方取消会返回错误;零结果和单条失败都不是错误
func (r *Runner) Run(ctx context.Context, onProgress ProgressFunc) (*models.RunResult, error) {
	if err := r.config.Validate(); err != nil {
		return nil, fmt.Errorf("配置无效: %w", err)
	}

	startTime := time.Now()
	runID := models.NewRunID()

	runLog := utils.RunLogger(runID, r.config.Query)
	runLog.Info().
		Int("max_products", r.config.MaxProducts).
		Str("detail_mode", string(r.config.Detail.Mode)).
		Msg("🚀 开始爬取任务")

	if ok, reason := r.monitor.CanLaunchBrowser(); !ok {
		utils.Warnf("⚠️  %s,浏览器可能不稳定", reason)
	}

	session, err := r.openSession(r.config.Browser)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := session.Close(); err != nil {
			utils.Warnf("关闭浏览器会话失败: %v", err)
		}
	}()

	// 发现阶段
	loop := crawlers.NewDiscoveryLoop(session, r.config)
	if r.onDiscovery != nil {
		loop.OnProgress(r.onDiscovery)
	}
	outcome, err := loop.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("发现阶段失败: %w", err)
	}

	if len(outcome.URLs) == 0 && r.config.Browser.Diagnostics {
		dir := filepath.Join(r.output.DiagnosticsPath(), runID)
		if err := crawlers.CaptureDiagnostics(ctx, session, r.monitor, dir); err != nil {
			utils.Warnf("保存诊断信息失败: %v", err)
		} else {
			utils.Infof("诊断信息已保存: %s", dir)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("爬取已取消: %w", err)
	}

	// 详情阶段
	records, err := r.extractDetails(ctx, session, outcome.URLs, onProgress)
	if err != nil {
		return nil, err
	}

	result := &models.RunResult{
		ID:        runID,
		Query:     r.config.Query,
		Records:   records,
		Stats:     models.FoldStats(records),
		CSV:       utils.BuildCSV(records),
		Filename:  utils.SuggestFilename(r.config.Query, startTime),
		Discovery: outcome,
		StartedAt: startTime,
		Duration:  time.Since(startTime).Seconds(),
	}

	if r.store != nil {
		if path, err := r.store.Save(result); err != nil {
			utils.Warnf("保存结果失败: %v", err)
		} else {
			utils.Infof("📄 CSV已保存: %s", path)
		}
	}

	runLog.Info().
		Int("products", result.Stats.Total).
		Int("with_social", result.Stats.WithAny).
		Str("state", string(outcome.State)).
		Float64("duration_s", result.Duration).
		Msg("✅ 爬取任务完成")

	return result, nil
}

// extractDetails 按发现顺序抽取详情,详情页之间按 pacing.detail_delay 限速
func (r *Runner) extractDetails(ctx context.Context, session crawlers.Session, urls []string, onProgress ProgressFunc) ([]models.ProductRecord, error) {
	source := r.detailSource
	if source == nil {
		source = r.newDetailSource(session)
	}
	extractor := crawlers.NewDetailExtractor(source, r.config.Site, r.config.Detail)
	limiter := newDetailLimiter(r.config.Pacing.DetailDelay)
	aggregator := NewAggregator(len(urls), onProgress)

	for i, productURL := range urls {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("爬取已取消: %w", err)
		}

		utils.Debugf("[%d/%d] 抽取详情: %s", i+1, len(urls), productURL)
		aggregator.Add(extractor.Extract(ctx, productURL))

		if err := extractor.Err(); err != nil {
			return nil, fmt.Errorf("详情阶段失败: %w", err)
		}
	}
	return aggregator.Records(), nil
}

func (r *Runner) newDetailSource(session crawlers.Session) crawlers.DocumentSource {
	if r.config.Detail.Mode == models.DetailModeStatic {
		return crawlers.NewStaticSource(r.config.Browser.UserAgent, r.config.Browser.Headers)
	}
	return crawlers.NewBrowserSource(session)
}

// newDetailLimiter 第一次请求立即放行,之后至少间隔interval
func newDetailLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

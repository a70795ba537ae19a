package core

import (
	"context"
	"fmt"
	"time"

	"github.com/RecoveryAshes/DiscoverCrawl/internal/models"
	"github.com/RecoveryAshes/DiscoverCrawl/internal/utils"
)

// BatchRunner 批量关键词爬取器
// 关键词之间严格顺序执行,每个关键词使用独立的浏览器会话
type BatchRunner struct {
	config        models.CrawlConfig
	output        OutputConfig
	batchDelay    time.Duration
	continueOnErr bool
	options       []RunnerOption

	// newProgress 为每个关键词创建进度回调,可为nil
	newProgress func(query string) ProgressFunc
}

// BatchResult 单个关键词的结果
type BatchResult struct {
	Query       string
	Success     bool
	Error       error
	Result      *models.RunResult
	ProcessedAt time.Time
	Duration    float64
}

// BatchSummary 批量爬取摘要
type BatchSummary struct {
	TotalQueries  int
	SuccessCount  int
	FailCount     int
	TotalProducts int
	WithSocial    int
	TotalDuration float64
	Results       []BatchResult
}

// NewBatchRunner 创建批量爬取器
func NewBatchRunner(config models.CrawlConfig, output OutputConfig, batchDelay time.Duration, continueOnErr bool, opts ...RunnerOption) *BatchRunner {
	return &BatchRunner{
		config:        config,
		output:        output,
		batchDelay:    batchDelay,
		continueOnErr: continueOnErr,
		options:       opts,
	}
}

// OnQueryProgress 设置每个关键词的进度回调工厂
func (b *BatchRunner) OnQueryProgress(factory func(query string) ProgressFunc) {
	b.newProgress = factory
}

// RunBatch 批量爬取关键词列表
func (b *BatchRunner) RunBatch(ctx context.Context, queries []string) (*BatchSummary, error) {
	utils.Infof("🚀 开始批量爬取: %d个关键词", len(queries))

	summary := &BatchSummary{
		TotalQueries: len(queries),
		Results:      make([]BatchResult, 0, len(queries)),
	}

	startTime := time.Now()

	for i, query := range queries {
		utils.Infof("==================== [%d/%d] ====================", i+1, len(queries))
		utils.Infof("关键词: %s", query)

		result := b.runSingleQuery(ctx, query)
		summary.Results = append(summary.Results, result)

		if result.Success {
			summary.SuccessCount++
			summary.TotalProducts += result.Result.Stats.Total
			summary.WithSocial += result.Result.Stats.WithAny
		} else {
			summary.FailCount++
			utils.Errorf("❌ 爬取失败: %v", result.Error)

			// 如果不继续处理错误,则停止
			if !b.continueOnErr {
				utils.Warn("批量爬取中止 (continue_on_error=false)")
				break
			}
		}

		if ctx.Err() != nil {
			utils.Warn("批量爬取已取消")
			break
		}

		// 批量延迟(最后一个关键词不需要延迟)
		if i < len(queries)-1 && b.batchDelay > 0 {
			utils.Debugf("等待 %.0f 秒后处理下一个关键词...", b.batchDelay.Seconds())
			select {
			case <-ctx.Done():
			case <-time.After(b.batchDelay):
			}
		}
	}

	summary.TotalDuration = time.Since(startTime).Seconds()

	// 显示批量爬取摘要
	b.printSummary(summary)

	return summary, nil
}

// runSingleQuery 爬取单个关键词
func (b *BatchRunner) runSingleQuery(ctx context.Context, query string) BatchResult {
	result := BatchResult{
		Query:       query,
		ProcessedAt: time.Now(),
	}

	startTime := time.Now()

	config := b.config
	config.Query = query

	var onProgress ProgressFunc
	if b.newProgress != nil {
		onProgress = b.newProgress(query)
	}

	runResult, err := NewRunner(config, b.output, b.options...).Run(ctx, onProgress)
	result.Duration = time.Since(startTime).Seconds()
	if err != nil {
		result.Success = false
		result.Error = fmt.Errorf("爬取失败: %w", err)
		return result
	}

	result.Success = true
	result.Result = runResult
	return result
}

// printSummary 打印批量爬取摘要
func (b *BatchRunner) printSummary(summary *BatchSummary) {
	utils.Info("==================================================")
	utils.Info("📊 批量爬取摘要")
	utils.Info("==================================================")
	utils.Infof("总关键词数: %d", summary.TotalQueries)
	utils.Infof("✅ 成功: %d", summary.SuccessCount)
	utils.Infof("❌ 失败: %d", summary.FailCount)
	utils.Infof("📦 商品总数: %d (有社交链接: %d)", summary.TotalProducts, summary.WithSocial)
	utils.Infof("⏱️  总耗时: %.2f秒", summary.TotalDuration)
	utils.Info("==================================================")

	// 显示失败的关键词
	if summary.FailCount > 0 {
		utils.Warn("失败的关键词:")
		for _, result := range summary.Results {
			if !result.Success {
				utils.Warnf("  - %s: %v", result.Query, result.Error)
			}
		}
	}
}

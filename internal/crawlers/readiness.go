package crawlers

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/RecoveryAshes/DiscoverCrawl/internal/models"
	"github.com/rs/zerolog/log"
)

// Readiness 一次交互后的就绪检测结果
// 没有新内容是合法结果,由发现循环的连续空迭代计数决定是否终止
type Readiness struct {
	NetworkMatched bool          // 观察到列表数据接口的响应
	NewContent     bool          // 商品链接数超过基线
	Idle           bool          // 最终网络空闲等待成功
	Count          int           // 检测结束时文档中的商品链接数
	Elapsed        time.Duration // 总耗时
}

// ReadinessDetector 多信号就绪检测器
// 三个信号(网络响应、链接计数谓词、网络空闲)分别等待、分别限时,任何一个失败都不致命
type ReadinessDetector struct {
	session   Session
	extractor *LinkExtractor
	config    models.ReadinessConfig
	pacing    models.PacingConfig
}

// NewReadinessDetector 创建就绪检测器
func NewReadinessDetector(session Session, extractor *LinkExtractor, config models.ReadinessConfig, pacing models.PacingConfig) *ReadinessDetector {
	return &ReadinessDetector{
		session:   session,
		extractor: extractor,
		config:    config,
		pacing:    pacing,
	}
}

// Budget 根据当前进度选择超时预算: 远离目标时更长,接近目标时更短
func (d *ReadinessDetector) Budget(near bool) time.Duration {
	if near {
		return d.config.TimeoutNear
	}
	return d.config.TimeoutFar
}

// Await 发起一次交互并等待新内容
// baseline 为交互前文档中的商品链接数,budget 为整体等待上限
func (d *ReadinessDetector) Await(ctx context.Context, baseline int, budget time.Duration) Readiness {
	start := time.Now()
	deadline := start.Add(budget)
	result := Readiness{Count: baseline}

	// 先订阅再交互,尽量不错过交互触发的请求
	observeCtx, stopObserving := context.WithCancel(ctx)
	defer stopObserving()
	exchanges := d.session.ObserveNetwork(observeCtx)

	d.interact(ctx)

	// 信号1: 列表数据接口响应(仅作参考)
	netWait := minDuration(d.config.NetworkTimeout, time.Until(deadline))
	result.NetworkMatched = d.waitForListingResponse(ctx, exchanges, netWait)
	stopObserving()

	// 没有网络信号时稍作等待再开始轮询
	if !result.NetworkMatched {
		sleepCtx(ctx, minDuration(d.config.NoSignalDelay, time.Until(deadline)))
	}

	// 信号2: 链接计数超过基线(权威信号)
	predicateWait := time.Until(deadline)
	if predicateWait < d.pacing.PollInterval {
		predicateWait = d.pacing.PollInterval
	}
	result.NewContent = WaitForPredicate(ctx, func(c context.Context) bool {
		result.Count = d.extractor.Count(c)
		return result.Count > baseline
	}, predicateWait, d.pacing.PollInterval)

	// 信号3: 网络空闲作为最后的稳定期
	if idleWait := minDuration(d.config.IdleTimeout, time.Until(deadline)); idleWait > 0 {
		result.Idle = d.session.WaitForNetworkIdle(ctx, d.config.IdleWindow, idleWait)
	}

	result.Elapsed = time.Since(start)
	log.Debug().
		Int("baseline", baseline).
		Int("count", result.Count).
		Bool("network", result.NetworkMatched).
		Bool("new_content", result.NewContent).
		Bool("idle", result.Idle).
		Dur("elapsed", result.Elapsed).
		Msg("就绪检测完成")

	return result
}

// interact 模拟用户输入: 指针移动 → 滚轮 → 文档滚动到底部
// 步骤间加入随机延迟,避免固定间隔被识别为机器人
func (d *ReadinessDetector) interact(ctx context.Context) {
	x := 200 + rand.Float64()*600
	y := 200 + rand.Float64()*400
	d.step(ctx, "模拟指针移动失败", func(c context.Context) error {
		return d.session.PointerMove(c, x, y)
	})
	sleepCtx(ctx, d.jitter())

	dy := 600 + rand.Float64()*800
	d.step(ctx, "模拟滚轮失败", func(c context.Context) error {
		return d.session.Wheel(c, 0, dy)
	})
	sleepCtx(ctx, d.jitter())

	d.step(ctx, "滚动到底部失败", d.session.ScrollToBottom)
}

// step 执行单个输入步骤,限时;会话级错误交给提取器记录,由发现循环终止
func (d *ReadinessDetector) step(ctx context.Context, msg string, fn func(context.Context) error) {
	stepCtx, cancel := boundedCtx(ctx, d.config.EvaluateTimeout)
	defer cancel()
	if err := fn(stepCtx); err != nil {
		d.extractor.note(err)
		log.Debug().Err(err).Msg(msg)
	}
}

// jitter 返回 [JitterMin, JitterMax] 内的随机延迟
func (d *ReadinessDetector) jitter() time.Duration {
	span := d.pacing.JitterMax - d.pacing.JitterMin
	if span <= 0 {
		return d.pacing.JitterMin
	}
	return d.pacing.JitterMin + time.Duration(rand.Int63n(int64(span)))
}

// waitForListingResponse 等待匹配列表接口的网络响应
func (d *ReadinessDetector) waitForListingResponse(ctx context.Context, exchanges <-chan Exchange, timeout time.Duration) bool {
	if timeout <= 0 || exchanges == nil {
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return false
		case ex, ok := <-exchanges:
			if !ok {
				return false
			}
			if ex.Status < 400 && MatchesListingEndpoint(ex.URL, d.config.ListingPatterns) {
				log.Debug().Str("url", ex.URL).Int("status", ex.Status).Msg("观察到列表数据响应")
				return true
			}
		}
	}
}

// MatchesListingEndpoint 判断URL是否匹配列表数据接口白名单(子串匹配)
func MatchesListingEndpoint(rawURL string, patterns []string) bool {
	lower := strings.ToLower(rawURL)
	for _, p := range patterns {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

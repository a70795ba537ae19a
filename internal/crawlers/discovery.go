package crawlers

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/RecoveryAshes/DiscoverCrawl/internal/models"
	"github.com/RecoveryAshes/DiscoverCrawl/internal/utils"
	"github.com/rs/zerolog/log"
)

// ErrSearchUnreachable 搜索页无法打开,发现阶段无法开始
var ErrSearchUnreachable = errors.New("搜索页不可达")

// DiscoveryProgress 发现循环的阶段性进度
type DiscoveryProgress struct {
	State      models.DiscoveryState `json:"state"`
	Iteration  int                   `json:"iteration"`
	Discovered int                   `json:"discovered"`
}

// DiscoveryProgressFunc 发现进度回调
type DiscoveryProgressFunc func(DiscoveryProgress)

// DiscoveryLoop 增量发现循环
// 状态: InitialScan → Interacting → Extracting → (继续 | Converged | TargetReached)
// 另有 IterationCap (迭代硬上限) 与 Cancelled (调用方取消) 两个终止状态
type DiscoveryLoop struct {
	session   Session
	config    models.CrawlConfig
	extractor *LinkExtractor
	detector  *ReadinessDetector
	observer  *mutationAccumulator
	set       *DiscoveredSet

	state      models.DiscoveryState
	iterations int
	onProgress DiscoveryProgressFunc
}

// NewDiscoveryLoop 创建发现循环
func NewDiscoveryLoop(session Session, config models.CrawlConfig) *DiscoveryLoop {
	extractor := NewLinkExtractor(session, config.Site.Origin, config.Discovery.PathPrefix, config.Discovery.CardSelectors)
	extractor.SetEvaluateTimeout(config.Readiness.EvaluateTimeout)
	return &DiscoveryLoop{
		session:   session,
		config:    config,
		extractor: extractor,
		detector:  NewReadinessDetector(session, extractor, config.Readiness, config.Pacing),
		observer:  newMutationAccumulator(extractor),
		set:       NewDiscoveredSet(),
		state:     models.StateInitialScan,
	}
}

// OnProgress 设置进度回调
func (l *DiscoveryLoop) OnProgress(fn DiscoveryProgressFunc) {
	l.onProgress = fn
}

// State 当前状态
func (l *DiscoveryLoop) State() models.DiscoveryState {
	return l.state
}

// Run 执行发现循环
// 零结果不是错误,通过Diagnosis说明原因;只有搜索页不可达和浏览器不可用会返回错误
// 页面操作各自限时,页面卡死只会让本次提取为空,浏览器崩溃则立即返回
func (l *DiscoveryLoop) Run(ctx context.Context) (models.DiscoveryOutcome, error) {
	maxProducts := l.config.MaxProducts

	if err := l.initialScan(ctx); err != nil {
		return l.outcome(maxProducts), err
	}
	defer l.observer.Dispose(context.WithoutCancel(ctx))

	emptyStreak := 0
	for {
		// 循环顶部检查目标
		if l.set.Len() >= maxProducts {
			l.transition(models.StateTargetReached)
			break
		}
		if ctx.Err() != nil {
			l.transition(models.StateCancelled)
			break
		}
		if l.iterations >= l.config.Discovery.MaxIterations {
			utils.Warnf("达到迭代上限 %d,停止交互 (已发现 %d)", l.config.Discovery.MaxIterations, l.set.Len())
			l.transition(models.StateIterationCap)
			break
		}

		l.iterations++
		l.transition(models.StateInteracting)
		baseline := l.extractor.Count(ctx)
		readiness := l.detector.Await(ctx, baseline, l.detector.Budget(l.nearTarget()))

		l.transition(models.StateExtracting)
		added := l.extract(ctx)
		if err := l.extractor.Err(); err != nil {
			return l.outcome(maxProducts), l.abort(err)
		}

		log.Debug().
			Int("iteration", l.iterations).
			Int("added", added).
			Int("total", l.set.Len()).
			Bool("new_content", readiness.NewContent).
			Msg("迭代完成")

		// 提取后再次检查目标,达到即停止,不再发起交互
		if l.set.Len() >= maxProducts {
			l.transition(models.StateTargetReached)
			break
		}

		if added == 0 {
			emptyStreak++
		} else {
			emptyStreak = 0
		}

		if patience := l.patience(); emptyStreak > patience {
			utils.Infof("连续 %d 次交互没有新商品,可能已到结果末尾 (已发现 %d)", emptyStreak, l.set.Len())
			l.transition(models.StateConverged)
			break
		}
	}

	// 最后一次等待与提取,收集最后一次就绪检测之后才到达的内容
	if l.state != models.StateCancelled {
		sleepCtx(ctx, l.config.Pacing.FinalSettle)
		if added := l.extract(ctx); added > 0 {
			utils.Debugf("最终提取新增 %d 个商品", added)
		}
		if err := l.extractor.Err(); err != nil {
			return l.outcome(maxProducts), l.abort(err)
		}
	}

	outcome := l.outcome(maxProducts)
	if len(outcome.URLs) == 0 && ctx.Err() == nil {
		outcome.Diagnosis = l.diagnose(ctx)
		utils.Warnf("未发现任何商品,诊断: %s", outcome.Diagnosis)
	}

	utils.Infof("发现阶段结束: 状态=%s 迭代=%d 商品=%d", outcome.State, outcome.Iterations, len(outcome.URLs))
	return outcome, nil
}

// initialScan 打开搜索页并执行分层提取
func (l *DiscoveryLoop) initialScan(ctx context.Context) error {
	l.transition(models.StateInitialScan)
	searchURL := l.config.Site.SearchURL(l.config.Query)
	utils.Infof("打开搜索页: %s", searchURL)

	if err := l.session.Navigate(ctx, searchURL, WaitNetworkIdle, l.config.Discovery.NavigateTimeout); err != nil {
		if IsSessionFatal(err) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrSearchUnreachable, err)
	}
	sleepCtx(ctx, l.config.Pacing.SettleDelay)

	// 有些页面初始为空,稍后异步填充
	found := WaitForPredicate(ctx, func(c context.Context) bool {
		return l.extractor.Count(c) > 0
	}, l.config.Discovery.InitialLinkTimeout, l.config.Pacing.PollInterval)
	if !found {
		utils.Warnf("初始页面未出现商品链接,继续尝试交互")
	}

	if l.config.Discovery.UseObserver {
		l.observer.Install(ctx)
	}

	urls, layer := l.extractor.Layered(ctx)
	if err := l.extractor.Err(); err != nil {
		return l.abort(err)
	}
	added := l.set.Merge(urls)
	utils.Infof("初始扫描发现 %d 个商品 (提取层: %s)", added, layer)
	return nil
}

// extract 第一层提取加观察器累积结果,合并到集合,返回新增数量
func (l *DiscoveryLoop) extract(ctx context.Context) int {
	added := l.set.Merge(l.extractor.Prefixed(ctx))
	added += l.set.Merge(l.observer.Drain(ctx))
	return added
}

// nearTarget 已发现数量是否达到目标的接近阈值
func (l *DiscoveryLoop) nearTarget() bool {
	threshold := int(math.Ceil(float64(l.config.MaxProducts) * l.config.Discovery.NearTargetRatio))
	return l.set.Len() >= threshold
}

// patience 当前允许的连续空迭代数
func (l *DiscoveryLoop) patience() int {
	if l.nearTarget() {
		return l.config.Discovery.PatienceNear
	}
	return l.config.Discovery.PatienceFar
}

// diagnose 零结果时根据文档内容判断原因
func (l *DiscoveryLoop) diagnose(ctx context.Context) models.Diagnosis {
	htmlCtx, cancel := boundedCtx(ctx, l.config.Readiness.EvaluateTimeout)
	defer cancel()

	html, err := l.session.HTML(htmlCtx)
	if err != nil {
		log.Debug().Err(err).Msg("读取文档失败,无法诊断")
		return models.DiagnosisStructureChanged
	}
	return DiagnoseHTML(html)
}

// abort 会话级错误终止循环
func (l *DiscoveryLoop) abort(err error) error {
	utils.Errorf("浏览器会话失效,发现阶段中断 (状态=%s 已发现 %d): %v", l.state, l.set.Len(), err)
	return fmt.Errorf("发现阶段中断: %w", err)
}

func (l *DiscoveryLoop) transition(state models.DiscoveryState) {
	l.state = state
	if l.onProgress != nil {
		l.onProgress(DiscoveryProgress{
			State:      state,
			Iteration:  l.iterations,
			Discovered: l.set.Len(),
		})
	}
}

func (l *DiscoveryLoop) outcome(maxProducts int) models.DiscoveryOutcome {
	return models.DiscoveryOutcome{
		URLs:       l.set.First(maxProducts),
		State:      l.state,
		Iterations: l.iterations,
	}
}

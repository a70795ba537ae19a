package crawlers

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/ysmood/gson"
)

// ExtractionLayer 链接提取层
type ExtractionLayer int

// 依次为: 未命中、按路径前缀过滤的锚点、卡片/条目容器内的锚点、文档中全部锚点
const (
	LayerNone ExtractionLayer = iota
	LayerPrefixed
	LayerCards
	LayerUnfiltered
)

func (l ExtractionLayer) String() string {
	switch l {
	case LayerPrefixed:
		return "prefixed"
	case LayerCards:
		return "cards"
	case LayerUnfiltered:
		return "unfiltered"
	}
	return "none"
}

// 页面脚本 (使用Evaluate,支持多语句JavaScript)
var (
	prefixedLinksScript = Script{
		Name: "prefixedLinks",
		JS: `(prefix) => {
			var out = [];
			var els = document.querySelectorAll('a[href]');
			for (var i = 0; i < els.length; i++) {
				var href = els[i].href;
				if (!href) continue;
				try {
					if (new URL(href, location.href).pathname.indexOf(prefix) === 0) {
						out.push(href);
					}
				} catch (e) {
					// ignore
				}
			}
			return out;
		}`,
	}

	cardLinksScript = Script{
		Name: "cardLinks",
		JS: `(selectors) => {
			var out = [];
			for (var s = 0; s < selectors.length; s++) {
				var cards;
				try {
					cards = document.querySelectorAll(selectors[s]);
				} catch (e) {
					continue;
				}
				for (var i = 0; i < cards.length; i++) {
					var card = cards[i];
					var a = card.tagName === 'A' ? card : card.querySelector('a[href]');
					if (a && a.href) out.push(a.href);
				}
			}
			return out;
		}`,
	}

	allLinksScript = Script{
		Name: "allLinks",
		JS: `() => {
			var out = [];
			var els = document.querySelectorAll('a[href]');
			for (var i = 0; i < els.length; i++) {
				if (els[i].href) out.push(els[i].href);
			}
			return out;
		}`,
	}

	installObserverScript = Script{
		Name: "installObserver",
		JS: `(prefix) => {
			if (window.__discoverObserver) return true;
			window.__discoverFound = [];
			var collect = function (node) {
				if (!node || node.nodeType !== 1) return;
				var anchors = node.tagName === 'A' ? [node] : node.querySelectorAll('a[href]');
				for (var i = 0; i < anchors.length; i++) {
					var href = anchors[i].href;
					if (href && href.indexOf(prefix) !== -1) window.__discoverFound.push(href);
				}
			};
			window.__discoverObserver = new MutationObserver(function (mutations) {
				for (var m = 0; m < mutations.length; m++) {
					mutations[m].addedNodes.forEach(collect);
				}
			});
			window.__discoverObserver.observe(document.body || document.documentElement, {childList: true, subtree: true});
			return true;
		}`,
	}

	drainObserverScript = Script{
		Name: "drainObserver",
		JS: `() => {
			var found = window.__discoverFound || [];
			window.__discoverFound = [];
			return found;
		}`,
	}

	disposeObserverScript = Script{
		Name: "disposeObserver",
		JS: `() => {
			if (window.__discoverObserver) window.__discoverObserver.disconnect();
			delete window.__discoverObserver;
			delete window.__discoverFound;
			return true;
		}`,
	}
)

// LinkExtractor 商品链接提取器
// 职责: 在当前文档中执行提取脚本并规范化结果
type LinkExtractor struct {
	session         Session
	origin          string
	pathPrefix      string
	cardSelectors   []string
	evaluateTimeout time.Duration

	mu    sync.Mutex
	fatal error
}

// NewLinkExtractor 创建链接提取器
func NewLinkExtractor(session Session, origin, pathPrefix string, cardSelectors []string) *LinkExtractor {
	if pathPrefix == "" {
		pathPrefix = discoverPrefix
	}
	return &LinkExtractor{
		session:       session,
		origin:        origin,
		pathPrefix:    pathPrefix,
		cardSelectors: cardSelectors,
	}
}

// Layered 按 (a)→(b)→(c) 顺序提取,返回第一个非空结果
// 后两层只是应对页面结构漂移的尽力而为策略: 规范化本身要求路径带有商品前缀,
// 所以在前缀不变的页面上 (b)(c) 不会找到 (a) 漏掉的商品,只在 (a) 的脚本
// 因选择器或前缀参数失效而返回空时才起作用
func (e *LinkExtractor) Layered(ctx context.Context) ([]string, ExtractionLayer) {
	if urls := e.Prefixed(ctx); len(urls) > 0 {
		return urls, LayerPrefixed
	}

	if len(e.cardSelectors) > 0 {
		hrefs := e.run(ctx, cardLinksScript, e.cardSelectors)
		if urls := CanonicalizeAll(hrefs, e.origin); len(urls) > 0 {
			return urls, LayerCards
		}
	}

	hrefs := e.run(ctx, allLinksScript)
	if urls := CanonicalizeAll(hrefs, e.origin); len(urls) > 0 {
		return urls, LayerUnfiltered
	}

	return nil, LayerNone
}

// Prefixed 仅执行第一层提取
func (e *LinkExtractor) Prefixed(ctx context.Context) []string {
	return CanonicalizeAll(e.run(ctx, prefixedLinksScript, e.pathPrefix), e.origin)
}

// Count 当前文档中可规范化的商品链接数
func (e *LinkExtractor) Count(ctx context.Context) int {
	return len(e.Prefixed(ctx))
}

// SetEvaluateTimeout 设置单次脚本执行上限,d<=0 时使用默认值
func (e *LinkExtractor) SetEvaluateTimeout(d time.Duration) {
	e.evaluateTimeout = d
}

// Err 提取过程中遇到的第一个会话级错误
func (e *LinkExtractor) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fatal
}

// note 记录会话级错误,普通失败忽略
func (e *LinkExtractor) note(err error) {
	if !IsSessionFatal(err) {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fatal == nil {
		e.fatal = err
	}
}

// evaluate 带截止时间执行脚本,页面卡死时按超时失败返回
func (e *LinkExtractor) evaluate(ctx context.Context, script Script, args ...interface{}) (gson.JSON, error) {
	evalCtx, cancel := boundedCtx(ctx, e.evaluateTimeout)
	defer cancel()

	value, err := e.session.Evaluate(evalCtx, script, args...)
	if err != nil {
		e.note(err)
	}
	return value, err
}

// run 执行脚本并转换为字符串数组,失败时返回空结果
func (e *LinkExtractor) run(ctx context.Context, script Script, args ...interface{}) []string {
	value, err := e.evaluate(ctx, script, args...)
	if err != nil {
		log.Debug().Err(err).Str("script", script.Name).Msg("提取脚本执行失败")
		return nil
	}
	return jsonStrings(value)
}

// jsonStrings 将脚本返回的数组转换为非空字符串切片
func jsonStrings(value gson.JSON) []string {
	if value.Nil() {
		return nil
	}
	arr := value.Arr()
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s := item.Str(); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// mutationAccumulator DOM变更观察器在Go侧的累积器
// 生命周期与一次发现循环相同,循环结束时必须Dispose
type mutationAccumulator struct {
	extractor *LinkExtractor
	installed bool
}

func newMutationAccumulator(extractor *LinkExtractor) *mutationAccumulator {
	return &mutationAccumulator{extractor: extractor}
}

// Install 在页面中安装观察器,失败时退化为纯轮询
func (m *mutationAccumulator) Install(ctx context.Context) {
	if _, err := m.extractor.evaluate(ctx, installObserverScript, m.extractor.pathPrefix); err != nil {
		log.Debug().Err(err).Msg("安装DOM观察器失败,仅使用轮询")
		return
	}
	m.installed = true
}

// Drain 取出观察器累积的链接并规范化
func (m *mutationAccumulator) Drain(ctx context.Context) []string {
	if !m.installed {
		return nil
	}
	return CanonicalizeAll(m.extractor.run(ctx, drainObserverScript), m.extractor.origin)
}

// Dispose 断开观察器并清除页面上的标记
func (m *mutationAccumulator) Dispose(ctx context.Context) {
	if !m.installed {
		return
	}
	if _, err := m.extractor.evaluate(ctx, disposeObserverScript); err != nil {
		log.Debug().Err(err).Msg("释放DOM观察器失败")
	}
	m.installed = false
}

// Package crawlertest 提供浏览器会话的脚本化替身,用于在没有浏览器的环境下测试发现循环和详情抽取
package crawlertest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/RecoveryAshes/DiscoverCrawl/internal/crawlers"
	"github.com/ysmood/gson"
)

// Session 脚本化会话
//
// 搜索页文档中的链接 = Initial + 前 n 批 Batches,n 为 ScrollToBottom 调用次数。
// 其他页面的HTML来自 Pages。
type Session struct {
	// Initial 导航后文档中已有的链接
	Initial []string
	// Batches 第n次滚动到底部时追加的链接
	Batches [][]string
	// CardLinks 第二层提取(卡片容器)返回的链接
	// 与文档链接独立,用于模拟第一层脚本失效;真实文档中这些链接也会被第一层找到
	CardLinks []string
	// ExtraAnchors 只出现在第三层(全部锚点)提取中的链接,同样只用于模拟第一层失效
	ExtraAnchors []string
	// ListingURL 每次追加批次时在网络通道上发出的响应地址,为空则不发
	ListingURL string
	// Pages URL → HTML
	Pages map[string]string
	// DefaultHTML 未在Pages中登记的页面
	DefaultHTML string
	// NavigateErrs URL → 导航错误
	NavigateErrs map[string]error
	// EvaluateErr 所有脚本执行都返回该错误
	EvaluateErr error
	// IdleFails 网络空闲等待总是失败
	IdleFails bool
	// HangEvaluateAfter 前n次脚本执行正常,之后的执行阻塞到ctx结束,0表示不阻塞
	HangEvaluateAfter int
	// HangHTML 读取HTML阻塞到ctx结束
	HangHTML bool
	// CrashOnScroll 第n次滚动到底部时浏览器崩溃,之后所有操作返回 ErrCrashed
	CrashOnScroll int
	// CrashOnNavigation 第n次导航时浏览器崩溃
	CrashOnNavigation int

	mu           sync.Mutex
	current      string
	revealed     int
	pending      []string
	observing    bool
	disposed     bool
	closed       bool
	navigations  []string
	scrolls      int
	pointerMoves int
	wheels       int
	evaluations  map[string]int
	evalTotal    int
	crashed      bool
	watchers     map[int]chan crawlers.Exchange
	nextWatcher  int
}

// ErrCrashed 崩溃后各操作返回的错误,与真实会话对连接断开的分类一致
var ErrCrashed = fmt.Errorf("%w: websocket: close 1006 (abnormal closure)", crawlers.ErrBrowserUnavailable)

// unusable 调用方需持有锁
func (s *Session) unusable() error {
	if s.closed {
		return crawlers.ErrSessionClosed
	}
	if s.crashed {
		return ErrCrashed
	}
	return nil
}

var _ crawlers.Session = (*Session)(nil)

// Navigate 记录导航,按NavigateErrs返回错误
func (s *Session) Navigate(ctx context.Context, url string, wait crawlers.WaitPolicy, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.unusable(); err != nil {
		return err
	}
	s.navigations = append(s.navigations, url)
	if s.CrashOnNavigation > 0 && len(s.navigations) == s.CrashOnNavigation {
		s.crashed = true
		return ErrCrashed
	}
	if err := s.NavigateErrs[url]; err != nil {
		return err
	}
	s.current = url
	return nil
}

// Evaluate 按脚本名称模拟页面脚本
func (s *Session) Evaluate(ctx context.Context, script crawlers.Script, args ...interface{}) (gson.JSON, error) {
	s.mu.Lock()
	if err := s.unusable(); err != nil {
		s.mu.Unlock()
		return gson.New(nil), err
	}
	if s.evaluations == nil {
		s.evaluations = make(map[string]int)
	}
	s.evaluations[script.Name]++
	s.evalTotal++

	if s.HangEvaluateAfter > 0 && s.evalTotal > s.HangEvaluateAfter {
		s.mu.Unlock()
		<-ctx.Done()
		return gson.New(nil), ctx.Err()
	}
	defer s.mu.Unlock()

	if s.EvaluateErr != nil {
		return gson.New(nil), s.EvaluateErr
	}

	switch script.Name {
	case "prefixedLinks":
		prefix := ""
		if len(args) > 0 {
			prefix, _ = args[0].(string)
		}
		out := make([]string, 0)
		for _, link := range s.documentLinks() {
			if strings.Contains(link, prefix) {
				out = append(out, link)
			}
		}
		return toJSON(out)
	case "cardLinks":
		return toJSON(s.CardLinks)
	case "allLinks":
		return toJSON(append(s.documentLinks(), s.ExtraAnchors...))
	case "installObserver":
		s.observing = true
		s.disposed = false
		return toJSON(true)
	case "drainObserver":
		out := s.pending
		s.pending = nil
		return toJSON(out)
	case "disposeObserver":
		s.observing = false
		s.disposed = true
		s.pending = nil
		return toJSON(true)
	}
	return gson.New(nil), nil
}

// ObserveNetwork 返回在ctx结束时关闭的响应通道
func (s *Session) ObserveNetwork(ctx context.Context) <-chan crawlers.Exchange {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan crawlers.Exchange, 16)
	if s.watchers == nil {
		s.watchers = make(map[int]chan crawlers.Exchange)
	}
	id := s.nextWatcher
	s.nextWatcher++
	s.watchers[id] = ch

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		if w, ok := s.watchers[id]; ok {
			delete(s.watchers, id)
			close(w)
		}
	}()

	return ch
}

// PointerMove 计数
func (s *Session) PointerMove(ctx context.Context, x, y float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.unusable(); err != nil {
		return err
	}
	s.pointerMoves++
	return nil
}

// Wheel 计数
func (s *Session) Wheel(ctx context.Context, dx, dy float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.unusable(); err != nil {
		return err
	}
	s.wheels++
	return nil
}

// ScrollToBottom 追加下一批链接
func (s *Session) ScrollToBottom(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.unusable(); err != nil {
		return err
	}

	s.scrolls++
	if s.CrashOnScroll > 0 && s.scrolls == s.CrashOnScroll {
		s.crashed = true
		return ErrCrashed
	}
	if s.revealed >= len(s.Batches) {
		return nil
	}

	batch := s.Batches[s.revealed]
	s.revealed++
	if s.observing {
		s.pending = append(s.pending, batch...)
	}
	if s.ListingURL != "" && len(batch) > 0 {
		for _, w := range s.watchers {
			select {
			case w <- crawlers.Exchange{URL: s.ListingURL, Status: 200}:
			default:
			}
		}
	}
	return nil
}

// WaitForNetworkIdle 立即返回
func (s *Session) WaitForNetworkIdle(ctx context.Context, idle, timeout time.Duration) bool {
	return !s.IdleFails
}

// HTML 当前页面的HTML
func (s *Session) HTML(ctx context.Context) (string, error) {
	s.mu.Lock()
	if err := s.unusable(); err != nil {
		s.mu.Unlock()
		return "", err
	}
	if s.HangHTML {
		s.mu.Unlock()
		<-ctx.Done()
		return "", ctx.Err()
	}
	defer s.mu.Unlock()

	if html, ok := s.Pages[s.current]; ok {
		return html, nil
	}
	return s.DefaultHTML, nil
}

// URL 当前地址
func (s *Session) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Screenshot 返回固定内容
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.unusable(); err != nil {
		return nil, err
	}
	return []byte("\x89PNG fake"), nil
}

// Close 关闭会话,可重复调用
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Scrolls 滚动到底部的调用次数
func (s *Session) Scrolls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scrolls
}

// PointerMoves 指针移动次数
func (s *Session) PointerMoves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pointerMoves
}

// Wheels 滚轮次数
func (s *Session) Wheels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wheels
}

// Navigations 导航过的URL
func (s *Session) Navigations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.navigations...)
}

// Evaluations 某脚本的执行次数
func (s *Session) Evaluations(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evaluations[name]
}

// ObserverDisposed 观察器是否已释放
func (s *Session) ObserverDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// Closed 是否已关闭
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// documentLinks 调用方需持有锁
func (s *Session) documentLinks() []string {
	links := append([]string(nil), s.Initial...)
	for i := 0; i < s.revealed && i < len(s.Batches); i++ {
		links = append(links, s.Batches[i]...)
	}
	return links
}

// ProductLinks 生成n个不同的商品链接,start为起始序号
func ProductLinks(origin string, start, n int) []string {
	links := make([]string, 0, n)
	for i := start; i < start+n; i++ {
		links = append(links, fmt.Sprintf("%s/discover/org-%d/product-%d", strings.TrimRight(origin, "/"), i, i))
	}
	return links
}

func toJSON(v interface{}) (gson.JSON, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return gson.New(nil), err
	}
	return gson.NewFrom(string(data)), nil
}

package crawlers_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/RecoveryAshes/DiscoverCrawl/internal/crawlers"
	"github.com/RecoveryAshes/DiscoverCrawl/internal/crawlers/crawlertest"
	"github.com/RecoveryAshes/DiscoverCrawl/internal/models"
)

const origin = "https://whop.com"

// testConfig 毫秒级的等待配置,测试不依赖真实时间
func testConfig(maxProducts int) models.CrawlConfig {
	return models.CrawlConfig{
		Query:       models.DefaultQuery,
		MaxProducts: maxProducts,
		Site: models.SiteConfig{
			Origin:        origin,
			SearchPath:    "/discover/search/?query=%s",
			TitleSuffixes: []string{" | Whop"},
			HouseAccounts: []string{"whop", "whophq"},
		},
		Pacing: models.PacingConfig{
			PollInterval: time.Millisecond,
		},
		Discovery: models.DiscoveryConfig{
			NavigateTimeout:    time.Second,
			InitialLinkTimeout: 5 * time.Millisecond,
			PatienceFar:        3,
			PatienceNear:       1,
			NearTargetRatio:    0.9,
			MaxIterations:      50,
			PathPrefix:         "/discover/",
			UseObserver:        true,
		},
		Readiness: models.ReadinessConfig{
			TimeoutFar:      20 * time.Millisecond,
			TimeoutNear:     10 * time.Millisecond,
			NetworkTimeout:  5 * time.Millisecond,
			NoSignalDelay:   time.Millisecond,
			IdleWindow:      time.Millisecond,
			IdleTimeout:     2 * time.Millisecond,
			EvaluateTimeout: 5 * time.Millisecond,
			ListingPatterns: []string{"/api/graphql"},
		},
		Detail: models.DetailConfig{
			Mode:           models.DetailModeBrowser,
			Timeout:        time.Second,
			ProfileTimeout: time.Second,
			ProfilePrefix:  "/@",
		},
	}
}

func searchURL(config models.CrawlConfig) string {
	return config.Site.SearchURL(config.Query)
}

func TestDiscoveryLoop_EndToEnd(t *testing.T) {
	// 5个商品分两次交互出现(3个、2个),之后是空迭代
	session := &crawlertest.Session{
		Batches: [][]string{
			crawlertest.ProductLinks(origin, 1, 3),
			crawlertest.ProductLinks(origin, 4, 2),
			{}, {}, {},
		},
		ListingURL: origin + "/api/graphql?op=discover",
	}

	loop := crawlers.NewDiscoveryLoop(session, testConfig(5))
	outcome, err := loop.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if outcome.State != models.StateTargetReached {
		t.Errorf("State = %s, want %s", outcome.State, models.StateTargetReached)
	}
	if len(outcome.URLs) != 5 {
		t.Fatalf("URLs = %d, want 5", len(outcome.URLs))
	}
	if outcome.Iterations != 2 {
		t.Errorf("Iterations = %d, want 2", outcome.Iterations)
	}
	if session.Scrolls() != 2 {
		t.Errorf("达到目标后不应再交互, Scrolls = %d", session.Scrolls())
	}

	want := crawlertest.ProductLinks(origin, 1, 5)
	for i := range want {
		if outcome.URLs[i] != want[i] {
			t.Errorf("URLs[%d] = %q, want %q (应保持发现顺序)", i, outcome.URLs[i], want[i])
		}
	}

	if !session.ObserverDisposed() {
		t.Error("循环结束后应释放DOM观察器")
	}
	if outcome.Diagnosis != models.DiagnosisNone {
		t.Errorf("有结果时不应诊断, got %s", outcome.Diagnosis)
	}
}

func TestDiscoveryLoop_TargetReachedWithoutInteraction(t *testing.T) {
	session := &crawlertest.Session{
		Initial: crawlertest.ProductLinks(origin, 1, 8),
		Batches: [][]string{crawlertest.ProductLinks(origin, 100, 5)},
	}

	outcome, err := crawlers.NewDiscoveryLoop(session, testConfig(5)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if outcome.State != models.StateTargetReached {
		t.Errorf("State = %s, want %s", outcome.State, models.StateTargetReached)
	}
	if session.Scrolls() != 0 || session.PointerMoves() != 0 {
		t.Errorf("初始扫描已达到目标,不应交互: scrolls=%d moves=%d", session.Scrolls(), session.PointerMoves())
	}
	if outcome.Iterations != 0 {
		t.Errorf("Iterations = %d, want 0", outcome.Iterations)
	}
	if len(outcome.URLs) != 5 {
		t.Errorf("结果应截断到最大商品数, got %d", len(outcome.URLs))
	}
	if outcome.URLs[4] != crawlertest.ProductLinks(origin, 5, 1)[0] {
		t.Errorf("截断应保留前5个, got %v", outcome.URLs)
	}
}

func TestDiscoveryLoop_Converged(t *testing.T) {
	session := &crawlertest.Session{
		Initial: crawlertest.ProductLinks(origin, 1, 3),
	}

	config := testConfig(100)
	config.Discovery.PatienceFar = 2

	outcome, err := crawlers.NewDiscoveryLoop(session, config).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if outcome.State != models.StateConverged {
		t.Errorf("State = %s, want %s", outcome.State, models.StateConverged)
	}
	// 连续空迭代数超过容忍度(2)才终止
	if outcome.Iterations != 3 {
		t.Errorf("Iterations = %d, want 3", outcome.Iterations)
	}
	if len(outcome.URLs) != 3 {
		t.Errorf("URLs = %d, want 3", len(outcome.URLs))
	}
}

func TestDiscoveryLoop_NearTargetUsesSmallerPatience(t *testing.T) {
	// 10个目标,已有9个(达到0.9比例),接近目标时容忍度为1
	session := &crawlertest.Session{
		Initial: crawlertest.ProductLinks(origin, 1, 9),
	}

	config := testConfig(10)
	config.Discovery.PatienceFar = 5
	config.Discovery.PatienceNear = 1

	outcome, err := crawlers.NewDiscoveryLoop(session, config).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if outcome.State != models.StateConverged {
		t.Errorf("State = %s, want %s", outcome.State, models.StateConverged)
	}
	if outcome.Iterations != 2 {
		t.Errorf("Iterations = %d, want 2", outcome.Iterations)
	}
}

func TestDiscoveryLoop_IterationCap(t *testing.T) {
	batches := make([][]string, 0, 10)
	for i := 0; i < 10; i++ {
		batches = append(batches, crawlertest.ProductLinks(origin, 10+i, 1))
	}
	session := &crawlertest.Session{
		Initial: crawlertest.ProductLinks(origin, 1, 1),
		Batches: batches,
	}

	config := testConfig(100)
	config.Discovery.MaxIterations = 2

	outcome, err := crawlers.NewDiscoveryLoop(session, config).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if outcome.State != models.StateIterationCap {
		t.Errorf("State = %s, want %s", outcome.State, models.StateIterationCap)
	}
	if outcome.Iterations != 2 || session.Scrolls() != 2 {
		t.Errorf("Iterations = %d, Scrolls = %d, want 2/2", outcome.Iterations, session.Scrolls())
	}
	if len(outcome.URLs) != 3 {
		t.Errorf("URLs = %d, want 3", len(outcome.URLs))
	}
}

func TestDiscoveryLoop_SetNeverShrinks(t *testing.T) {
	// 后续批次重复出现已发现的链接
	session := &crawlertest.Session{
		Initial: crawlertest.ProductLinks(origin, 1, 2),
		Batches: [][]string{
			crawlertest.ProductLinks(origin, 1, 3),
			crawlertest.ProductLinks(origin, 2, 3),
		},
	}

	var counts []int
	loop := crawlers.NewDiscoveryLoop(session, testConfig(50))
	loop.OnProgress(func(p crawlers.DiscoveryProgress) {
		counts = append(counts, p.Discovered)
	})

	outcome, err := loop.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for i := 1; i < len(counts); i++ {
		if counts[i] < counts[i-1] {
			t.Fatalf("已发现数量不应减少: %v", counts)
		}
	}
	if len(outcome.URLs) != 4 {
		t.Errorf("去重后应有4个商品, got %d", len(outcome.URLs))
	}
}

func TestDiscoveryLoop_ProgressStates(t *testing.T) {
	session := &crawlertest.Session{
		Batches: [][]string{crawlertest.ProductLinks(origin, 1, 2)},
	}

	var states []models.DiscoveryState
	loop := crawlers.NewDiscoveryLoop(session, testConfig(2))
	loop.OnProgress(func(p crawlers.DiscoveryProgress) {
		states = append(states, p.State)
	})

	if _, err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []models.DiscoveryState{
		models.StateInitialScan,
		models.StateInteracting,
		models.StateExtracting,
		models.StateTargetReached,
	}
	if len(states) != len(want) {
		t.Fatalf("状态序列 = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("states[%d] = %s, want %s", i, states[i], want[i])
		}
	}
	if loop.State() != models.StateTargetReached {
		t.Errorf("State() = %s", loop.State())
	}
}

// 替身把后两层的链接与文档链接分开提供,模拟第一层脚本失效时的情形。
// 真实页面上第一层正常工作时,后两层找到的可规范化链接不会多于第一层
func TestDiscoveryLoop_FallbackLayers(t *testing.T) {
	t.Run("卡片容器", func(t *testing.T) {
		session := &crawlertest.Session{
			CardLinks: []string{"/discover/acme/card-one", "/discover/acme/card-two"},
		}
		config := testConfig(2)
		config.Discovery.CardSelectors = []string{"article"}

		outcome, err := crawlers.NewDiscoveryLoop(session, config).Run(context.Background())
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if len(outcome.URLs) != 2 || outcome.URLs[0] != origin+"/discover/acme/card-one" {
			t.Errorf("URLs = %v", outcome.URLs)
		}
	})

	t.Run("全部锚点", func(t *testing.T) {
		session := &crawlertest.Session{
			ExtraAnchors: []string{"/about", origin + "/discover/acme/anchor-one", "/discover/search/?query=x"},
		}

		outcome, err := crawlers.NewDiscoveryLoop(session, testConfig(1)).Run(context.Background())
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if len(outcome.URLs) != 1 || outcome.URLs[0] != origin+"/discover/acme/anchor-one" {
			t.Errorf("URLs = %v", outcome.URLs)
		}
	})
}

func TestDiscoveryLoop_ZeroResultsDiagnosis(t *testing.T) {
	tests := []struct {
		name string
		html string
		want models.Diagnosis
	}{
		{"查询无结果", `<html><head><title>Search</title></head><body><p>No results found for "zzz"</p></body></html>`, models.DiagnosisNoResults},
		{"被拦截", `<html><head><title>Just a moment...</title></head><body>Checking your browser</body></html>`, models.DiagnosisBlocked},
		{"结构变化", `<html><head><title>Discover</title></head><body><div id="root"></div></body></html>`, models.DiagnosisStructureChanged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := &crawlertest.Session{DefaultHTML: tt.html}
			config := testConfig(10)
			config.Discovery.PatienceFar = 1
			config.Discovery.PatienceNear = 1

			outcome, err := crawlers.NewDiscoveryLoop(session, config).Run(context.Background())
			if err != nil {
				t.Fatalf("零结果不应返回错误: %v", err)
			}
			if len(outcome.URLs) != 0 {
				t.Fatalf("URLs = %v", outcome.URLs)
			}
			if outcome.State != models.StateConverged {
				t.Errorf("State = %s, want %s", outcome.State, models.StateConverged)
			}
			if outcome.Diagnosis != tt.want {
				t.Errorf("Diagnosis = %s, want %s", outcome.Diagnosis, tt.want)
			}
		})
	}
}

func TestDiscoveryLoop_SearchUnreachable(t *testing.T) {
	config := testConfig(5)
	session := &crawlertest.Session{
		NavigateErrs: map[string]error{searchURL(config): errors.New("net::ERR_NAME_NOT_RESOLVED")},
	}

	_, err := crawlers.NewDiscoveryLoop(session, config).Run(context.Background())
	if !errors.Is(err, crawlers.ErrSearchUnreachable) {
		t.Errorf("error = %v, want ErrSearchUnreachable", err)
	}
}

func TestDiscoveryLoop_BrowserUnavailable(t *testing.T) {
	config := testConfig(5)
	session := &crawlertest.Session{
		NavigateErrs: map[string]error{searchURL(config): crawlers.ErrBrowserUnavailable},
	}

	_, err := crawlers.NewDiscoveryLoop(session, config).Run(context.Background())
	if !errors.Is(err, crawlers.ErrBrowserUnavailable) {
		t.Errorf("error = %v, want ErrBrowserUnavailable", err)
	}
	if errors.Is(err, crawlers.ErrSearchUnreachable) {
		t.Error("浏览器不可用不应被归类为搜索页不可达")
	}
}

func TestDiscoveryLoop_Cancelled(t *testing.T) {
	session := &crawlertest.Session{
		Initial: crawlertest.ProductLinks(origin, 1, 2),
		Batches: [][]string{crawlertest.ProductLinks(origin, 3, 2)},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := crawlers.NewDiscoveryLoop(session, testConfig(10)).Run(ctx)
	if err != nil {
		t.Fatalf("取消不是错误: %v", err)
	}
	if outcome.State != models.StateCancelled {
		t.Errorf("State = %s, want %s", outcome.State, models.StateCancelled)
	}
	if session.Scrolls() != 0 {
		t.Errorf("取消后不应交互, Scrolls = %d", session.Scrolls())
	}
	if !session.ObserverDisposed() {
		t.Error("取消时也应释放DOM观察器")
	}
	if len(outcome.URLs) != 2 {
		t.Errorf("应保留初始扫描的结果, got %d", len(outcome.URLs))
	}
}

func TestDiscoveryLoop_WithoutObserver(t *testing.T) {
	session := &crawlertest.Session{
		Batches: [][]string{crawlertest.ProductLinks(origin, 1, 3)},
	}
	config := testConfig(3)
	config.Discovery.UseObserver = false

	outcome, err := crawlers.NewDiscoveryLoop(session, config).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(outcome.URLs) != 3 {
		t.Errorf("纯轮询也应发现全部商品, got %d", len(outcome.URLs))
	}
	if session.Evaluations("installObserver") != 0 || session.Evaluations("drainObserver") != 0 {
		t.Error("禁用观察器时不应执行观察器脚本")
	}
}

// runWithin 在限定时间内执行发现循环,超时视为卡死
func runWithin(t *testing.T, loop *crawlers.DiscoveryLoop, limit time.Duration) (models.DiscoveryOutcome, error) {
	t.Helper()
	type result struct {
		outcome models.DiscoveryOutcome
		err     error
	}
	done := make(chan result, 1)
	go func() {
		outcome, err := loop.Run(context.Background())
		done <- result{outcome, err}
	}()

	select {
	case r := <-done:
		return r.outcome, r.err
	case <-time.After(limit):
		t.Fatalf("Run() 在 %v 内没有返回", limit)
		return models.DiscoveryOutcome{}, nil
	}
}

func TestDiscoveryLoop_HungPageDoesNotBlock(t *testing.T) {
	// 前3次脚本正常(初始计数、安装观察器、初始提取),之后页面卡死
	session := &crawlertest.Session{
		Initial:           crawlertest.ProductLinks(origin, 1, 3),
		HangEvaluateAfter: 3,
	}

	outcome, err := runWithin(t, crawlers.NewDiscoveryLoop(session, testConfig(5)), 3*time.Second)
	if err != nil {
		t.Fatalf("页面卡死不是会话级错误: %v", err)
	}
	if outcome.State != models.StateConverged {
		t.Errorf("State = %s, want %s", outcome.State, models.StateConverged)
	}
	if len(outcome.URLs) != 3 {
		t.Errorf("应保留卡死前发现的商品, got %d", len(outcome.URLs))
	}
	// 远离目标时耐心为3,第4次空迭代后收敛
	if outcome.Iterations != 4 {
		t.Errorf("Iterations = %d, want 4", outcome.Iterations)
	}
	if session.Evaluations("disposeObserver") != 1 {
		t.Error("卡死时仍应尝试释放观察器")
	}
}

func TestDiscoveryLoop_BrowserCrash(t *testing.T) {
	session := &crawlertest.Session{
		Batches: [][]string{
			crawlertest.ProductLinks(origin, 1, 2),
			crawlertest.ProductLinks(origin, 3, 2),
		},
		CrashOnScroll: 2,
	}

	outcome, err := runWithin(t, crawlers.NewDiscoveryLoop(session, testConfig(10)), 3*time.Second)
	if !errors.Is(err, crawlers.ErrBrowserUnavailable) {
		t.Fatalf("error = %v, want ErrBrowserUnavailable", err)
	}
	if !errors.Is(err, crawlertest.ErrCrashed) {
		t.Errorf("应保留底层错误: %v", err)
	}
	if len(outcome.URLs) != 2 {
		t.Errorf("崩溃前的结果 = %d, want 2", len(outcome.URLs))
	}
	if session.Scrolls() != 2 {
		t.Errorf("崩溃后不应继续交互, Scrolls = %d", session.Scrolls())
	}
}

package models

import (
	"testing"
	"time"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"有效的HTTP URL", "http://example.com", false},
		{"有效的HTTPS URL", "https://example.com", false},
		{"带路径的URL", "https://example.com/path/to/resource", false},
		{"无效的协议", "ftp://example.com", true},
		{"无效的URL", "not a url", true},
		{"空URL", "", true},
		{"无协议", "example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func validConfig() CrawlConfig {
	return CrawlConfig{
		Query:       DefaultQuery,
		MaxProducts: DefaultMaxProducts,
		Site:        SiteConfig{Origin: "https://whop.com", SearchPath: "/discover/search/?query=%s"},
		Pacing: PacingConfig{
			JitterMin:    150 * time.Millisecond,
			JitterMax:    600 * time.Millisecond,
			PollInterval: 250 * time.Millisecond,
		},
		Discovery: DiscoveryConfig{
			PatienceFar:     5,
			PatienceNear:    2,
			NearTargetRatio: 0.9,
			MaxIterations:   200,
		},
		Readiness: ReadinessConfig{TimeoutFar: 12 * time.Second, TimeoutNear: 6 * time.Second},
		Detail:    DetailConfig{Mode: DetailModeBrowser},
	}
}

func TestCrawlConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *CrawlConfig)
		wantErr bool
	}{
		{"有效配置", func(c *CrawlConfig) {}, false},
		{"静态详情模式", func(c *CrawlConfig) { c.Detail.Mode = DetailModeStatic }, false},
		{"最大商品数为0", func(c *CrawlConfig) { c.MaxProducts = 0 }, true},
		{"最大商品数超过上限", func(c *CrawlConfig) { c.MaxProducts = MaxProductsLimit + 1 }, true},
		{"站点源无效", func(c *CrawlConfig) { c.Site.Origin = "whop.com" }, true},
		{"随机延迟范围颠倒", func(c *CrawlConfig) { c.Pacing.JitterMax = 100 * time.Millisecond }, true},
		{"轮询间隔为0", func(c *CrawlConfig) { c.Pacing.PollInterval = 0 }, true},
		{"远端耐心小于近端", func(c *CrawlConfig) { c.Discovery.PatienceFar = 1 }, true},
		{"迭代上限为0", func(c *CrawlConfig) { c.Discovery.MaxIterations = 0 }, true},
		{"接近比例超过1", func(c *CrawlConfig) { c.Discovery.NearTargetRatio = 1.5 }, true},
		{"远端超时小于近端", func(c *CrawlConfig) { c.Readiness.TimeoutFar = time.Second }, true},
		{"未知详情模式", func(c *CrawlConfig) { c.Detail.Mode = "headless" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(&config)
			err := config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSiteConfig_SearchURL(t *testing.T) {
	site := SiteConfig{Origin: "https://whop.com/", SearchPath: "/discover/search/?query=%s"}

	tests := []struct {
		query string
		want  string
	}{
		{"TRADING", "https://whop.com/discover/search/?query=TRADING"},
		{"AI tools", "https://whop.com/discover/search/?query=AI+tools"},
		{"a&b", "https://whop.com/discover/search/?query=a%26b"},
	}
	for _, tt := range tests {
		if got := site.SearchURL(tt.query); got != tt.want {
			t.Errorf("SearchURL(%q) = %q, want %q", tt.query, got, tt.want)
		}
	}
}

func TestDiscoveryState_Terminal(t *testing.T) {
	terminal := []DiscoveryState{StateConverged, StateTargetReached, StateIterationCap, StateCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s 应为终止状态", s)
		}
	}
	for _, s := range []DiscoveryState{StateInitialScan, StateInteracting, StateExtracting} {
		if s.Terminal() {
			t.Errorf("%s 不应为终止状态", s)
		}
	}
}

func TestProductRecord_Links(t *testing.T) {
	r := NewProductRecord("https://whop.com/discover/acme/signals")
	if r.HasSocial() {
		t.Error("新记录不应有社交链接")
	}

	for _, p := range Platforms {
		r.SetLink(p, "https://example.com/"+string(p))
	}
	for _, p := range Platforms {
		if got := r.Link(p); got != "https://example.com/"+string(p) {
			t.Errorf("Link(%s) = %q", p, got)
		}
	}
	if !r.HasSocial() {
		t.Error("设置链接后应有社交链接")
	}
}

func TestFoldStats(t *testing.T) {
	records := []ProductRecord{
		{URL: "a", Twitter: "https://x.com/a", Discord: "https://discord.gg/a"},
		{URL: "b"},
		{URL: "c", Twitter: "https://x.com/c"},
	}

	stats := FoldStats(records)
	if stats.Total != 3 {
		t.Errorf("Total = %d, want 3", stats.Total)
	}
	if stats.WithAny != 2 {
		t.Errorf("WithAny = %d, want 2", stats.WithAny)
	}
	if stats.Count(PlatformTwitter) != 2 || stats.Count(PlatformDiscord) != 1 {
		t.Errorf("ByPlatform = %v", stats.ByPlatform)
	}
	for _, p := range Platforms {
		if _, ok := stats.ByPlatform[p]; !ok {
			t.Errorf("平台 %s 应有计数项", p)
		}
	}

	// 前缀统计只看前k条
	prefix := FoldStats(records[:2])
	if prefix.Total != 2 || prefix.Count(PlatformTwitter) != 1 {
		t.Errorf("前2条统计 = %+v", prefix)
	}

	empty := FoldStats(nil)
	if empty.Total != 0 || empty.WithAny != 0 {
		t.Errorf("空列表统计 = %+v", empty)
	}
}

func TestRunResult_JSON(t *testing.T) {
	result := &RunResult{
		ID:        NewRunID(),
		Query:     DefaultQuery,
		Records:   []ProductRecord{{URL: "https://whop.com/discover/a/b", Name: "B", Twitter: "https://x.com/b"}},
		Discovery: DiscoveryOutcome{State: StateConverged, Iterations: 4},
		StartedAt: time.Now().UTC().Truncate(time.Second),
	}
	result.Stats = FoldStats(result.Records)

	data, err := result.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}

	var decoded RunResult
	if err := decoded.FromJSON(data); err != nil {
		t.Fatalf("FromJSON() error = %v", err)
	}
	if decoded.ID != result.ID || decoded.Discovery.State != StateConverged {
		t.Errorf("解码结果不匹配: %+v", decoded)
	}
	if decoded.Stats.Count(PlatformTwitter) != 1 {
		t.Errorf("统计解码不匹配: %+v", decoded.Stats)
	}
}

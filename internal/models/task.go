package models

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultQuery 默认搜索关键词
	DefaultQuery = "TRADING"
	// DefaultMaxProducts 默认最大商品数
	DefaultMaxProducts = 100
	// MaxProductsLimit 服务边界允许的最大商品数
	MaxProductsLimit = 500
)

// DetailMode 详情页抓取模式
type DetailMode string

const (
	DetailModeBrowser DetailMode = "browser" // 复用浏览器会话
	DetailModeStatic  DetailMode = "static"  // Colly静态请求
)

// SiteConfig 目标站点配置
type SiteConfig struct {
	Origin        string   `mapstructure:"origin" json:"origin"`                 // 站点源 (scheme://host)
	SearchPath    string   `mapstructure:"search_path" json:"search_path"`       // 搜索路径, %s 为转义后的关键词
	TitleSuffixes []string `mapstructure:"title_suffixes" json:"title_suffixes"` // 标题中需要去除的站点后缀
	HouseAccounts []string `mapstructure:"house_accounts" json:"house_accounts"` // 平台自有账号(归一化句柄)
}

// SearchURL 构造搜索页URL
func (s SiteConfig) SearchURL(query string) string {
	path := s.SearchPath
	if strings.Contains(path, "%s") {
		path = fmt.Sprintf(path, escapeQuery(query))
	}
	return strings.TrimRight(s.Origin, "/") + path
}

// PacingConfig 交互节奏配置
type PacingConfig struct {
	JitterMin    time.Duration `mapstructure:"jitter_min" json:"jitter_min"`       // 交互步骤间最小随机延迟
	JitterMax    time.Duration `mapstructure:"jitter_max" json:"jitter_max"`       // 交互步骤间最大随机延迟
	PollInterval time.Duration `mapstructure:"poll_interval" json:"poll_interval"` // 谓词轮询间隔
	SettleDelay  time.Duration `mapstructure:"settle_delay" json:"settle_delay"`   // 页面初次加载后的固定等待
	FinalSettle  time.Duration `mapstructure:"final_settle" json:"final_settle"`   // 循环结束后的最终等待
	DetailDelay  time.Duration `mapstructure:"detail_delay" json:"detail_delay"`   // 详情页之间的最小间隔
}

// DiscoveryConfig 发现循环配置
type DiscoveryConfig struct {
	NavigateTimeout    time.Duration `mapstructure:"navigate_timeout" json:"navigate_timeout"`
	InitialLinkTimeout time.Duration `mapstructure:"initial_link_timeout" json:"initial_link_timeout"`
	PatienceFar        int           `mapstructure:"patience_far" json:"patience_far"`           // 远离目标时允许的连续空迭代数
	PatienceNear       int           `mapstructure:"patience_near" json:"patience_near"`         // 接近目标时允许的连续空迭代数
	NearTargetRatio    float64       `mapstructure:"near_target_ratio" json:"near_target_ratio"` // 达到目标的该比例即视为"接近"
	MaxIterations      int           `mapstructure:"max_iterations" json:"max_iterations"`       // 交互迭代硬上限
	PathPrefix         string        `mapstructure:"path_prefix" json:"path_prefix"`             // 第一层锚点过滤前缀
	CardSelectors      []string      `mapstructure:"card_selectors" json:"card_selectors"`       // 第二层卡片容器选择器
	UseObserver        bool          `mapstructure:"use_observer" json:"use_observer"`           // 启用DOM变更观察器
}

// ReadinessConfig 就绪检测配置
type ReadinessConfig struct {
	TimeoutFar      time.Duration `mapstructure:"timeout_far" json:"timeout_far"`
	TimeoutNear     time.Duration `mapstructure:"timeout_near" json:"timeout_near"`
	NetworkTimeout  time.Duration `mapstructure:"network_timeout" json:"network_timeout"`
	NoSignalDelay   time.Duration `mapstructure:"no_signal_delay" json:"no_signal_delay"`
	IdleWindow      time.Duration `mapstructure:"idle_window" json:"idle_window"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" json:"idle_timeout"`
	EvaluateTimeout time.Duration `mapstructure:"evaluate_timeout" json:"evaluate_timeout"` // 单次页面脚本或文档读取的上限
	ListingPatterns []string      `mapstructure:"listing_patterns" json:"listing_patterns"`
}

// BrowserConfig 浏览器会话配置
type BrowserConfig struct {
	Headless    bool   `mapstructure:"headless" json:"headless"`
	BinPath     string `mapstructure:"bin_path" json:"bin_path"`
	Stealth     bool   `mapstructure:"stealth" json:"stealth"`
	UserAgent   string `mapstructure:"user_agent" json:"user_agent"`
	Diagnostics bool   `mapstructure:"diagnostics" json:"diagnostics"` // 零结果时保存截图与HTML
	Width       int    `mapstructure:"width" json:"width"`
	Height      int    `mapstructure:"height" json:"height"`

	// Headers 附加请求头,浏览器会话和静态详情请求共用
	Headers map[string]string `mapstructure:"headers" json:"headers,omitempty"`
}

// DetailConfig 详情页抽取配置
type DetailConfig struct {
	Mode           DetailMode    `mapstructure:"mode" json:"mode"`
	Timeout        time.Duration `mapstructure:"timeout" json:"timeout"`
	ProfileTimeout time.Duration `mapstructure:"profile_timeout" json:"profile_timeout"`
	ProfilePrefix  string        `mapstructure:"profile_prefix" json:"profile_prefix"`
}

// CrawlConfig 爬取配置
type CrawlConfig struct {
	Query       string          `mapstructure:"query" json:"query"`               // 搜索关键词 (默认:TRADING)
	MaxProducts int             `mapstructure:"max_products" json:"max_products"` // 最大商品数 (默认:100)
	Site        SiteConfig      `mapstructure:"site" json:"site"`
	Pacing      PacingConfig    `mapstructure:"pacing" json:"pacing"`
	Discovery   DiscoveryConfig `mapstructure:"discovery" json:"discovery"`
	Readiness   ReadinessConfig `mapstructure:"readiness" json:"readiness"`
	Browser     BrowserConfig   `mapstructure:"browser" json:"browser"`
	Detail      DetailConfig    `mapstructure:"detail" json:"detail"`
}

// Validate 验证配置
func (c *CrawlConfig) Validate() error {
	if c.MaxProducts < 1 || c.MaxProducts > MaxProductsLimit {
		return fmt.Errorf("最大商品数必须在1-%d之间", MaxProductsLimit)
	}
	if err := ValidateURL(c.Site.Origin); err != nil {
		return fmt.Errorf("站点源无效: %w", err)
	}
	if c.Pacing.JitterMin < 0 || c.Pacing.JitterMax < c.Pacing.JitterMin {
		return fmt.Errorf("随机延迟范围无效: %v-%v", c.Pacing.JitterMin, c.Pacing.JitterMax)
	}
	if c.Pacing.PollInterval <= 0 {
		return fmt.Errorf("轮询间隔必须大于0")
	}
	if c.Discovery.PatienceFar < c.Discovery.PatienceNear {
		return fmt.Errorf("远离目标时的耐心值(%d)不能小于接近目标时的耐心值(%d)",
			c.Discovery.PatienceFar, c.Discovery.PatienceNear)
	}
	if c.Discovery.MaxIterations < 1 {
		return fmt.Errorf("最大迭代次数必须大于0")
	}
	if c.Discovery.NearTargetRatio <= 0 || c.Discovery.NearTargetRatio > 1 {
		return fmt.Errorf("接近目标比例必须在(0,1]之间")
	}
	if c.Readiness.TimeoutFar < c.Readiness.TimeoutNear {
		return fmt.Errorf("远离目标时的就绪超时不能小于接近目标时的超时")
	}
	switch c.Detail.Mode {
	case DetailModeBrowser, DetailModeStatic:
	default:
		return fmt.Errorf("无效的详情页模式: %s (有效值: browser, static)", c.Detail.Mode)
	}
	return nil
}

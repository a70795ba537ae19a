package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/RecoveryAshes/DiscoverCrawl/internal/models"
	"github.com/RecoveryAshes/DiscoverCrawl/internal/utils"
	"github.com/spf13/viper"
)

// Config 应用程序配置
type Config struct {
	Site      models.SiteConfig      `mapstructure:"site"`
	Crawl     CrawlSection           `mapstructure:"crawl"`
	Pacing    models.PacingConfig    `mapstructure:"pacing"`
	Discovery models.DiscoveryConfig `mapstructure:"discovery"`
	Readiness models.ReadinessConfig `mapstructure:"readiness"`
	Browser   models.BrowserConfig   `mapstructure:"browser"`
	Detail    models.DetailConfig    `mapstructure:"detail"`
	Logging   LoggingConfig          `mapstructure:"logging"`
	Output    OutputConfig           `mapstructure:"output"`
	Server    ServerConfig           `mapstructure:"server"`
}

// CrawlSection 爬取任务配置
type CrawlSection struct {
	Query           string        `mapstructure:"query"`
	MaxProducts     int           `mapstructure:"max_products"`
	BatchDelay      time.Duration `mapstructure:"batch_delay"`       // 批量关键词之间的间隔
	ContinueOnError bool          `mapstructure:"continue_on_error"` // 单个关键词失败后是否继续
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Format   string         `mapstructure:"format"` // console | json
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	BaseDir        string `mapstructure:"base_dir"`
	ResultsDir     string `mapstructure:"results_dir"`     // 相对于base_dir
	DiagnosticsDir string `mapstructure:"diagnostics_dir"` // 相对于base_dir
}

// ResultsPath 结果目录
func (o OutputConfig) ResultsPath() string {
	return filepath.Join(o.BaseDir, o.ResultsDir)
}

// DiagnosticsPath 诊断目录
func (o OutputConfig) DiagnosticsPath() string {
	return filepath.Join(o.BaseDir, o.DiagnosticsDir)
}

// ServerConfig HTTP服务配置
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	Mode string `mapstructure:"mode"` // gin模式: debug / release / test
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// 设置配置文件
	if configPath != "" {
		// 使用指定的配置文件
		v.SetConfigFile(configPath)
	} else {
		// 搜索默认位置
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		// 添加配置搜索路径
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")

		// 用户主目录
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".discovercrawl"))
		}
	}

	// 环境变量覆盖,例如 DISCOVERCRAWL_CRAWL_MAX_PRODUCTS=50
	v.SetEnvPrefix("DISCOVERCRAWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 设置默认值
	setDefaults(v)

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		// 如果配置文件不存在,使用默认值
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	// 解析配置
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 站点
	v.SetDefault("site.origin", "https://whop.com")
	v.SetDefault("site.search_path", "/discover/search/?query=%s")
	v.SetDefault("site.title_suffixes", []string{" | Whop", " - Whop", " · Whop"})
	v.SetDefault("site.house_accounts", []string{"whop", "whophq", "whopio", "whopapp", "whop.com", "joinwhop"})

	// 爬取任务
	v.SetDefault("crawl.query", models.DefaultQuery)
	v.SetDefault("crawl.max_products", models.DefaultMaxProducts)
	v.SetDefault("crawl.batch_delay", 5*time.Second)
	v.SetDefault("crawl.continue_on_error", true)

	// 交互节奏
	v.SetDefault("pacing.jitter_min", 150*time.Millisecond)
	v.SetDefault("pacing.jitter_max", 600*time.Millisecond)
	v.SetDefault("pacing.poll_interval", 250*time.Millisecond)
	v.SetDefault("pacing.settle_delay", 2*time.Second)
	v.SetDefault("pacing.final_settle", 2*time.Second)
	v.SetDefault("pacing.detail_delay", 1*time.Second)

	// 发现循环
	v.SetDefault("discovery.navigate_timeout", 45*time.Second)
	v.SetDefault("discovery.initial_link_timeout", 15*time.Second)
	v.SetDefault("discovery.patience_far", 5)
	v.SetDefault("discovery.patience_near", 2)
	v.SetDefault("discovery.near_target_ratio", 0.9)
	v.SetDefault("discovery.max_iterations", 200)
	v.SetDefault("discovery.path_prefix", "/discover/")
	v.SetDefault("discovery.card_selectors", []string{
		`[data-testid*="product-card"]`,
		`[class*="ProductCard"]`,
		`[class*="product-card"]`,
		"article",
	})
	v.SetDefault("discovery.use_observer", true)

	// 就绪检测
	v.SetDefault("readiness.timeout_far", 12*time.Second)
	v.SetDefault("readiness.timeout_near", 6*time.Second)
	v.SetDefault("readiness.network_timeout", 5*time.Second)
	v.SetDefault("readiness.no_signal_delay", 500*time.Millisecond)
	v.SetDefault("readiness.idle_window", 500*time.Millisecond)
	v.SetDefault("readiness.idle_timeout", 3*time.Second)
	v.SetDefault("readiness.evaluate_timeout", 10*time.Second)
	v.SetDefault("readiness.listing_patterns", []string{"/api/graphql", "/discover/search", "/_next/data"})

	// 浏览器
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.bin_path", "")
	v.SetDefault("browser.stealth", true)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.diagnostics", false)
	v.SetDefault("browser.width", 1366)
	v.SetDefault("browser.height", 900)

	// 详情页
	v.SetDefault("detail.mode", string(models.DetailModeBrowser))
	v.SetDefault("detail.timeout", 30*time.Second)
	v.SetDefault("detail.profile_timeout", 20*time.Second)
	v.SetDefault("detail.profile_prefix", "/@")

	// 日志配置默认值
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	// 输出配置默认值
	v.SetDefault("output.base_dir", "output")
	v.SetDefault("output.results_dir", "results")
	v.SetDefault("output.diagnostics_dir", "diagnostics")

	// HTTP服务
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "release")
}

// GetCrawlConfig 从配置中组装爬取配置
func (c *Config) GetCrawlConfig() models.CrawlConfig {
	return models.CrawlConfig{
		Query:       c.Crawl.Query,
		MaxProducts: c.Crawl.MaxProducts,
		Site:        c.Site,
		Pacing:      c.Pacing,
		Discovery:   c.Discovery,
		Readiness:   c.Readiness,
		Browser:     c.Browser,
		Detail:      c.Detail,
	}
}

// GetLogConfig 转换为日志初始化参数
func (c *Config) GetLogConfig() utils.LogConfig {
	return utils.LogConfig{
		Level:      c.Logging.Level,
		LogDir:     c.Logging.LogDir,
		Format:     c.Logging.Format,
		MaxSize:    c.Logging.Rotation.MaxSize,
		MaxBackups: c.Logging.Rotation.MaxBackups,
		MaxAge:     c.Logging.Rotation.MaxAge,
		Compress:   c.Logging.Rotation.Compress,
	}
}

// CLIFlags 命令行参数
// 零值表示未指定,布尔参数用 *Set 字段区分"未指定"与"false"
type CLIFlags struct {
	Query          string
	MaxProducts    int
	Headless       bool
	HeadlessSet    bool
	Diagnostics    bool
	DiagnosticsSet bool
	DetailMode     string
	Origin         string
	OutputDir      string
	LogLevel       string
}

// MergeCLIFlags 合并命令行参数到配置
func (c *Config) MergeCLIFlags(flags CLIFlags) {
	// 命令行参数优先于配置文件
	if flags.Query != "" {
		c.Crawl.Query = flags.Query
	}
	if flags.MaxProducts > 0 {
		c.Crawl.MaxProducts = flags.MaxProducts
	}
	if flags.HeadlessSet {
		c.Browser.Headless = flags.Headless
	}
	if flags.DiagnosticsSet {
		c.Browser.Diagnostics = flags.Diagnostics
	}
	if flags.DetailMode != "" {
		c.Detail.Mode = models.DetailMode(flags.DetailMode)
	}
	if flags.Origin != "" {
		c.Site.Origin = flags.Origin
	}
	if flags.OutputDir != "" {
		c.Output.BaseDir = flags.OutputDir
	}
	if flags.LogLevel != "" {
		c.Logging.Level = flags.LogLevel
	}
}

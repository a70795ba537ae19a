package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/RecoveryAshes/DiscoverCrawl/internal/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
crawl:
  query: "AI tools"
  max_products: 50
  batch_delay: 2s
discovery:
  patience_far: 8
browser:
  headers:
    X-Team: growth
`)

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if config.Crawl.Query != "AI tools" || config.Crawl.MaxProducts != 50 {
		t.Errorf("Crawl = %+v", config.Crawl)
	}
	if config.Crawl.BatchDelay != 2*time.Second {
		t.Errorf("BatchDelay = %v", config.Crawl.BatchDelay)
	}
	if config.Discovery.PatienceFar != 8 {
		t.Errorf("PatienceFar = %d", config.Discovery.PatienceFar)
	}

	// 未设置的项使用默认值
	if config.Discovery.PatienceNear != 2 || config.Discovery.MaxIterations != 200 {
		t.Errorf("Discovery 默认值 = %+v", config.Discovery)
	}
	if config.Site.Origin != "https://whop.com" {
		t.Errorf("Site.Origin = %q", config.Site.Origin)
	}
	if config.Readiness.TimeoutFar != 12*time.Second || config.Readiness.TimeoutNear != 6*time.Second {
		t.Errorf("Readiness = %+v", config.Readiness)
	}
	if config.Detail.Mode != models.DetailModeBrowser {
		t.Errorf("Detail.Mode = %s", config.Detail.Mode)
	}
	if logCfg := config.GetLogConfig(); logCfg.Format != "console" || logCfg.MaxSize != 10 {
		t.Errorf("GetLogConfig() = %+v", logCfg)
	}
	if len(config.Browser.Headers) != 1 {
		t.Errorf("Browser.Headers = %v", config.Browser.Headers)
	}

	crawl := config.GetCrawlConfig()
	if err := crawl.Validate(); err != nil {
		t.Errorf("默认配置应通过校验: %v", err)
	}
	if crawl.Query != "AI tools" || crawl.MaxProducts != 50 {
		t.Errorf("GetCrawlConfig() = %+v", crawl)
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("DISCOVERCRAWL_CRAWL_MAX_PRODUCTS", "42")

	config, err := LoadConfig(writeConfig(t, "crawl:\n  query: TRADING\n"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if config.Crawl.MaxProducts != 42 {
		t.Errorf("环境变量应覆盖配置, MaxProducts = %d", config.Crawl.MaxProducts)
	}
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	if _, err := LoadConfig(writeConfig(t, "crawl: [unclosed")); err == nil {
		t.Error("格式错误的配置文件应返回错误")
	}
}

func TestConfig_MergeCLIFlags(t *testing.T) {
	config, err := LoadConfig(writeConfig(t, "browser:\n  headless: true\n"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	config.MergeCLIFlags(CLIFlags{})
	if !config.Browser.Headless || config.Crawl.Query != models.DefaultQuery {
		t.Error("空参数不应改变配置")
	}

	config.MergeCLIFlags(CLIFlags{
		Query:       "AI",
		MaxProducts: 10,
		Headless:    false,
		HeadlessSet: true,
		DetailMode:  "static",
		Origin:      "https://example.com",
		OutputDir:   "out",
		LogLevel:    "debug",
	})

	if config.Crawl.Query != "AI" || config.Crawl.MaxProducts != 10 {
		t.Errorf("Crawl = %+v", config.Crawl)
	}
	if config.Browser.Headless {
		t.Error("显式指定的 --headless=false 应生效")
	}
	if config.Detail.Mode != models.DetailModeStatic {
		t.Errorf("Detail.Mode = %s", config.Detail.Mode)
	}
	if config.Site.Origin != "https://example.com" || config.Output.BaseDir != "out" || config.Logging.Level != "debug" {
		t.Errorf("合并结果 = site=%q output=%q level=%q", config.Site.Origin, config.Output.BaseDir, config.Logging.Level)
	}
	if got := config.Output.ResultsPath(); got != filepath.Join("out", "results") {
		t.Errorf("ResultsPath() = %q", got)
	}
}

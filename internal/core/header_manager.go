package core

import (
	"fmt"
	"net/http"

	"github.com/RecoveryAshes/DiscoverCrawl/internal/utils"
)

// DefaultAcceptLanguage 默认语言,搜索页和详情页按英文渲染
const DefaultAcceptLanguage = "en-US,en;q=0.9"

// HeaderManager 合并附加请求头
// 优先级: 默认 < 配置文件 browser.headers < 命令行 -H
// 合并结果同时用于浏览器会话和静态详情请求
type HeaderManager struct {
	defaults http.Header
	config   http.Header
	cli      http.Header
}

// NewHeaderManager 创建头部管理器
func NewHeaderManager(configHeaders map[string]string, cliHeaders []string) (*HeaderManager, error) {
	hm := &HeaderManager{
		defaults: http.Header{"Accept-Language": []string{DefaultAcceptLanguage}},
		config:   make(http.Header),
		cli:      make(http.Header),
	}

	for name, value := range configHeaders {
		hm.config.Set(name, value)
	}

	for i, s := range cliHeaders {
		name, value, err := utils.ParseHeaderFlag(s)
		if err != nil {
			return nil, fmt.Errorf("参数 --header 第%d项格式错误: %w", i+1, err)
		}
		hm.cli.Set(name, value)
	}

	return hm, nil
}

// Validate 按 默认 → 配置 → 命令行 的顺序校验
func (hm *HeaderManager) Validate() error {
	if err := utils.ValidateHeaders(hm.config); err != nil {
		return fmt.Errorf("配置文件请求头无效: %w", err)
	}
	if err := utils.ValidateHeaders(hm.cli); err != nil {
		return fmt.Errorf("命令行请求头无效: %w", err)
	}
	return nil
}

// Merged 合并后的请求头
func (hm *HeaderManager) Merged() http.Header {
	result := make(http.Header)
	for _, layer := range []http.Header{hm.defaults, hm.config, hm.cli} {
		for name, values := range layer {
			result[name] = values
		}
	}
	return result
}

// ApplyHeaders 校验并把合并结果写回 browser.headers
func (c *Config) ApplyHeaders(cliHeaders []string) error {
	hm, err := NewHeaderManager(c.Browser.Headers, cliHeaders)
	if err != nil {
		return err
	}
	if err := hm.Validate(); err != nil {
		return err
	}

	merged := hm.Merged()
	c.Browser.Headers = make(map[string]string, len(merged))
	for name, values := range merged {
		if len(values) > 0 {
			c.Browser.Headers[name] = values[0]
		}
	}
	utils.Debugf("附加请求头: %v", utils.RedactHeaders(merged))
	return nil
}

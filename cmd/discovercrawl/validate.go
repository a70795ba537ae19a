package main

import (
	"fmt"
	"os"
	"time"

	"github.com/RecoveryAshes/DiscoverCrawl/internal/models"
)

// ValidateFlags 验证命令行标志
func ValidateFlags(maxProducts int, detailMode string, origin string) error {
	// 验证最大商品数
	if maxProducts < 1 || maxProducts > models.MaxProductsLimit {
		return fmt.Errorf("最大商品数必须在1-%d之间,当前值: %d", models.MaxProductsLimit, maxProducts)
	}

	// 验证详情页模式
	switch models.DetailMode(detailMode) {
	case models.DetailModeBrowser, models.DetailModeStatic:
	default:
		return fmt.Errorf("无效的详情页模式: %s (有效值: browser, static)", detailMode)
	}

	// 验证站点源
	if err := models.ValidateURL(origin); err != nil {
		return fmt.Errorf("无效的站点源: %w", err)
	}

	return nil
}

// ValidateQueryFile 验证关键词文件路径
func ValidateQueryFile(path string) error {
	if path == "" {
		return fmt.Errorf("关键词文件路径不能为空")
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("关键词文件不可用: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("关键词文件路径是目录: %s", path)
	}
	return nil
}

func secondsToDuration(seconds int) time.Duration {
	if seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

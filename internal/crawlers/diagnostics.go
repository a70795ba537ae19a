package crawlers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/RecoveryAshes/DiscoverCrawl/internal/utils"
)

// CaptureDiagnostics 保存当前文档的截图、HTML和主机资源快照
// 单项失败不影响其他项,只有目录无法创建时返回错误
func CaptureDiagnostics(ctx context.Context, session Session, monitor *HostMonitor, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建诊断目录失败: %w", err)
	}

	var failures []string

	// 各项操作单独限时,卡死的页面只会缺少对应文件
	shotCtx, cancelShot := boundedCtx(ctx, 0)
	defer cancelShot()
	if data, err := session.Screenshot(shotCtx); err != nil {
		failures = append(failures, fmt.Sprintf("截图: %v", err))
	} else if err := os.WriteFile(filepath.Join(dir, "screenshot.png"), data, 0644); err != nil {
		failures = append(failures, fmt.Sprintf("写入截图: %v", err))
	}

	htmlCtx, cancelHTML := boundedCtx(ctx, 0)
	defer cancelHTML()
	if html, err := session.HTML(htmlCtx); err != nil {
		failures = append(failures, fmt.Sprintf("HTML: %v", err))
	} else if err := os.WriteFile(filepath.Join(dir, "page.html"), []byte(html), 0644); err != nil {
		failures = append(failures, fmt.Sprintf("写入HTML: %v", err))
	}

	meta := map[string]interface{}{
		"url": session.URL(),
	}
	if monitor != nil {
		meta["host"] = monitor.Snapshot()
	}
	if data, err := json.MarshalIndent(meta, "", "  "); err == nil {
		if err := os.WriteFile(filepath.Join(dir, "host.json"), data, 0644); err != nil {
			failures = append(failures, fmt.Sprintf("写入快照: %v", err))
		}
	}

	for _, f := range failures {
		utils.Warnf("诊断信息保存不完整 [%s]: %s", dir, f)
	}
	return nil
}

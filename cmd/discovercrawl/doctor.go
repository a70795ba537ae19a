package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/RecoveryAshes/DiscoverCrawl/internal/crawlers"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "检查运行环境 (浏览器、主机资源、输出目录)",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("==============================================")
		fmt.Println("  DiscoverCrawl 环境检查")
		fmt.Println("==============================================")

		allOK := true

		fmt.Printf("✅ Go版本: %s\n", runtime.Version())
		fmt.Printf("✅ 操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)

		// 浏览器
		if bin := appConfig.Browser.BinPath; bin != "" {
			if _, err := os.Stat(bin); err != nil {
				fmt.Printf("❌ 配置的浏览器不存在: %s\n", bin)
				allOK = false
			} else {
				fmt.Printf("✅ 浏览器: %s\n", bin)
			}
		} else if path, found := launcher.LookPath(); found {
			fmt.Printf("✅ 浏览器: %s\n", path)
		} else {
			fmt.Println("⚠️  未找到本地Chromium,首次运行时将自动下载")
		}

		// 主机资源
		monitor := crawlers.NewHostMonitor()
		snap := monitor.Snapshot()
		fmt.Printf("✅ CPU: %d核, 使用率 %.1f%%\n", snap.NumCPU, snap.CPUPercent)
		fmt.Printf("✅ 内存: 可用 %.0fMB / 总计 %.0fMB (%s)\n",
			float64(snap.AvailableMemory)/(1024*1024), float64(snap.TotalMemory)/(1024*1024), snap.MemoryPressure)
		if ok, reason := monitor.CanLaunchBrowser(); !ok {
			fmt.Printf("❌ %s\n", reason)
			allOK = false
		}

		// 输出目录
		dir := appConfig.Output.ResultsPath()
		if err := checkWritable(dir); err != nil {
			fmt.Printf("❌ 结果目录不可写 [%s]: %v\n", dir, err)
			allOK = false
		} else {
			fmt.Printf("✅ 结果目录: %s\n", dir)
		}

		fmt.Println("==============================================")
		if !allOK {
			return fmt.Errorf("环境检查未通过")
		}
		fmt.Println("✨ 环境检查通过")
		return nil
	},
}

// checkWritable 创建目录并写入探测文件
func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

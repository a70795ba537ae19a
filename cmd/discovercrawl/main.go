package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/RecoveryAshes/DiscoverCrawl/internal/core"
	"github.com/RecoveryAshes/DiscoverCrawl/internal/crawlers"
	"github.com/RecoveryAshes/DiscoverCrawl/internal/models"
	"github.com/RecoveryAshes/DiscoverCrawl/internal/server"
	"github.com/RecoveryAshes/DiscoverCrawl/internal/utils"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile string
	verbose    bool
	logLevel   string
	headers    []string // 附加请求头

	// 爬取参数
	query       string
	queryFile   string
	maxProducts int
	headless    bool
	diagnostics bool
	detailMode  string
	origin      string
	outputDir   string

	// 批量处理参数
	batchDelay      int
	continueOnError bool

	// 服务参数
	listenAddr string
)

// appConfig 由PersistentPreRunE加载
var appConfig *core.Config

var rootCmd = &cobra.Command{
	Use:   "discovercrawl",
	Short: "商品发现与社交链接抽取工具",
	Long: `DiscoverCrawl - 无限滚动搜索页的商品发现与社交链接抽取工具

支持:
  • 增量滚动发现商品,自动判断收敛
  • 多信号页面就绪检测 (网络响应 / DOM增长 / 网络空闲)
  • 详情页抽取商品名、创作者与社交链接
  • 批量关键词处理
  • HTTP服务 + SSE实时进度

示例:
  # 默认关键词 TRADING,最多100个商品
  discovercrawl

  # 指定关键词和数量
  discovercrawl -q "AI tools" -n 50

  # 批量关键词
  discovercrawl -f queries.txt

  # 启动HTTP服务
  discovercrawl serve --addr :8080

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 加载配置
		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		// 命令行参数覆盖配置文件
		config.MergeCLIFlags(core.CLIFlags{
			Query:          query,
			MaxProducts:    maxProducts,
			Headless:       headless,
			HeadlessSet:    flagChanged(cmd, "headless"),
			Diagnostics:    diagnostics,
			DiagnosticsSet: flagChanged(cmd, "diagnostics"),
			DetailMode:     detailMode,
			Origin:         origin,
			OutputDir:      outputDir,
			LogLevel:       logLevel,
		})
		if flagChanged(cmd, "batch-delay") {
			config.Crawl.BatchDelay = secondsToDuration(batchDelay)
		}
		if flagChanged(cmd, "continue-on-error") {
			config.Crawl.ContinueOnError = continueOnError
		}
		if listenAddr != "" {
			config.Server.Addr = listenAddr
		}

		// 初始化日志系统
		if err := utils.InitLogger(config.GetLogConfig()); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}

		if err := config.ApplyHeaders(headers); err != nil {
			return err
		}

		if verbose {
			utils.Info("详细模式已启用")
		}

		appConfig = config
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		crawlConfig := appConfig.GetCrawlConfig()
		if err := ValidateFlags(crawlConfig.MaxProducts, string(crawlConfig.Detail.Mode), crawlConfig.Site.Origin); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store := utils.NewResultStore(appConfig.Output.ResultsPath())

		// 批量处理模式
		if queryFile != "" {
			if err := ValidateQueryFile(queryFile); err != nil {
				return err
			}
			queries, err := utils.ReadQueriesFromFile(queryFile)
			if err != nil {
				return fmt.Errorf("读取关键词文件失败: %w", err)
			}

			batch := core.NewBatchRunner(crawlConfig, appConfig.Output,
				appConfig.Crawl.BatchDelay, appConfig.Crawl.ContinueOnError,
				core.WithResultStore(store),
			)
			batch.OnQueryProgress(func(q string) core.ProgressFunc {
				return newProgressSink(q)
			})

			summary, err := batch.RunBatch(ctx, queries)
			if err != nil {
				return fmt.Errorf("批量爬取失败: %w", err)
			}
			if summary.SuccessCount == 0 {
				return fmt.Errorf("所有关键词均爬取失败")
			}
			utils.Info("✨ 批量爬取任务完成!")
			return nil
		}

		// 单关键词模式
		runner := core.NewRunner(crawlConfig, appConfig.Output,
			core.WithResultStore(store),
			core.WithDiscoveryProgress(func(p crawlers.DiscoveryProgress) {
				utils.Debugf("发现阶段: %s (迭代 %d, 已发现 %d)", p.State, p.Iteration, p.Discovered)
			}),
		)
		result, err := runner.Run(ctx, newProgressSink(crawlConfig.Query))
		if err != nil {
			return err
		}

		printStats(result)
		utils.Info("✨ 爬取任务完成!")
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动HTTP服务",
	Long: `启动HTTP服务,接口:
  GET /api/crawl/stream?query=&max=   SSE推送爬取进度与结果
  GET /api/results                    结果列表
  GET /api/results/:id                单个结果
  GET /api/results/:id/csv            下载CSV
  GET /healthz                        健康检查`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store := utils.NewResultStore(appConfig.Output.ResultsPath())
		return server.New(appConfig, store).Run(ctx)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	// 不需要加载配置
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("DiscoverCrawl %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

// newProgressSink 详情阶段进度条,总数在第一次回调时确定
func newProgressSink(query string) core.ProgressFunc {
	var bar *progressbar.ProgressBar
	return func(p core.Progress) {
		if bar == nil {
			bar = utils.NewProgressBar(p.Total, fmt.Sprintf("[%s] 抽取详情", query))
		}
		_ = bar.Set(p.Position)
		if p.Position == p.Total {
			_ = bar.Finish()
			fmt.Println()
		}
	}
}

// printStats 打印单次爬取统计
func printStats(result *models.RunResult) {
	stats := result.Stats
	fmt.Println("\n==================================================")
	fmt.Println("📊 爬取统计")
	fmt.Println("==================================================")
	fmt.Printf("🔎 关键词: %s\n", result.Query)
	fmt.Printf("🧭 发现阶段: %s (迭代 %d 次)\n", result.Discovery.State, result.Discovery.Iterations)
	if result.Discovery.Diagnosis != models.DiagnosisNone {
		fmt.Printf("⚠️  零结果诊断: %s\n", result.Discovery.Diagnosis)
	}
	fmt.Printf("✅ 商品数: %d\n", stats.Total)
	fmt.Printf("✅ 有社交链接: %d\n", stats.WithAny)
	for _, p := range models.Platforms {
		fmt.Printf("   %-10s %d\n", p, stats.Count(p))
	}
	fmt.Printf("📄 CSV: %s\n", result.Filename)
	fmt.Printf("⏱️  总耗时: %.2f秒\n", result.Duration)
	fmt.Println("==================================================")
}

func flagChanged(cmd *cobra.Command, name string) bool {
	f := cmd.Flags().Lookup(name)
	return f != nil && f.Changed
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().StringSliceVarP(&headers, "header", "H", []string{}, "附加请求头,格式: 'Name: Value',可多次指定")
	rootCmd.PersistentFlags().StringVar(&origin, "origin", "", "站点源 (默认 https://whop.com)")
	rootCmd.PersistentFlags().BoolVar(&headless, "headless", true, "无头浏览器模式")
	rootCmd.PersistentFlags().StringVar(&detailMode, "detail-mode", "", "详情页模式 (browser|static)")
	rootCmd.PersistentFlags().BoolVar(&diagnostics, "diagnostics", false, "零结果时保存截图与HTML")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "", "输出目录")

	// 爬取参数
	rootCmd.Flags().StringVarP(&query, "query", "q", "", "搜索关键词 (默认 TRADING)")
	rootCmd.Flags().IntVarP(&maxProducts, "max", "n", 0, fmt.Sprintf("最大商品数 (1-%d,默认 %d)", models.MaxProductsLimit, models.DefaultMaxProducts))
	rootCmd.Flags().StringVarP(&queryFile, "query-file", "f", "", "包含关键词列表的文件 (.txt 每行一个, .csv 需要 query 列)")

	// 批量处理参数
	rootCmd.Flags().IntVar(&batchDelay, "batch-delay", 5, "批量处理关键词间延迟(秒)")
	rootCmd.Flags().BoolVar(&continueOnError, "continue-on-error", true, "遇到错误继续处理")

	// 服务参数
	serveCmd.Flags().StringVar(&listenAddr, "addr", "", "监听地址 (默认 :8080)")

	// 添加子命令
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

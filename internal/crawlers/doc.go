// Package crawlers 实现无限滚动搜索页的增量发现与详情页抽取
//
// # 概述
//
// 搜索页由客户端脚本渲染,新商品在滚动后异步追加。crawlers包通过一个浏览器会话
// 顺序驱动整个过程: 打开搜索页、模拟用户输入、判断新内容是否到达、去重合并商品链接,
// 直到达到目标数量或结果耗尽,然后逐个抽取详情页中的创作者与社交链接。
//
// # 核心组件
//
// ## Session (浏览器会话)
//
// 对浏览器能力的最小抽象: 导航、执行脚本、观察网络响应、模拟指针/滚轮输入、
// 等待网络空闲。RodSession 是基于go-rod的实现,crawlertest.Session 是测试替身。
//
//	session, err := LaunchRodSession(config.Browser)
//	if err != nil { /* errors.Is(err, ErrBrowserUnavailable) */ }
//	defer session.Close()
//
// ## Canonicalize (URL规范化)
//
// 纯函数,把锚点href转换为 {origin}/discover/{org}/{product} 形式的规范地址,
// 去掉查询串、片段和尾部斜杠;搜索页地址和保留段 search 一律拒绝。
//
// ## ReadinessDetector (就绪检测器)
//
// 一次交互后分别等待三个信号,每个都有独立超时,任何一个失败都不致命:
//   - 列表数据接口的网络响应(参考信号)
//   - 文档中商品链接数超过交互前基线(权威信号,固定间隔轮询)
//   - 网络空闲(最后的稳定期)
//
// ## DiscoveryLoop (发现循环)
//
// 状态机: InitialScan → Interacting → Extracting → (继续 | Converged | TargetReached),
// 另有迭代硬上限 IterationCap 与调用方取消 Cancelled。
//
//	loop := NewDiscoveryLoop(session, config)
//	outcome, err := loop.Run(ctx)
//	// outcome.URLs 按发现顺序,长度不超过 config.MaxProducts
//
// 初始扫描使用分层提取: 路径前缀过滤的锚点 → 卡片容器内的锚点 → 全部锚点,
// 取第一个非空结果;后两层只是应对页面结构漂移的尽力而为策略。
// 页面内的DOM变更观察器只是优化,轮询才是必需的路径,观察器在循环结束时释放。
//
// ## DetailExtractor (详情页抽取器)
//
// 从详情页抽取显示名称、结构化数据中的品牌名、创作者句柄和社交链接。
// 详情页上没有社交链接时,访问一次创作者主页补充空缺的平台,不覆盖已有值。
// 文档来源可以是浏览器会话(BrowserSource)或Colly静态请求(StaticSource)。
//
// # 错误处理
//
//   - 单个详情页失败: 记录日志,返回只含URL的记录,批次继续
//   - 信号超时: 视为没有新内容,由连续空迭代计数决定是否收敛
//   - 零结果: 不是错误,DiscoveryOutcome.Diagnosis 给出 blocked / no_results / structure_changed
//   - 浏览器无法启动或崩溃: 返回包装了 ErrBrowserUnavailable 的错误
//   - 搜索页无法打开: 返回包装了 ErrSearchUnreachable 的错误
//
// # 并发
//
// 一个会话同一时间只能由一个goroutine驱动,整个爬取严格顺序执行。
// DiscoveredSet 自带读写锁,可以在回调中安全读取。
package crawlers

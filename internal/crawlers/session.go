package crawlers

import (
	"context"
	"errors"
	"time"

	"github.com/ysmood/gson"
)

var (
	// ErrBrowserUnavailable 浏览器无法启动或已崩溃,无法继续
	ErrBrowserUnavailable = errors.New("浏览器会话不可用")
	// ErrSessionClosed 会话已关闭
	ErrSessionClosed = errors.New("浏览器会话已关闭")
)

// defaultOpTimeout 未配置超时时单次页面操作的上限
const defaultOpTimeout = 10 * time.Second

// IsSessionFatal 会话级错误,出现后该会话不能继续使用
func IsSessionFatal(err error) bool {
	return errors.Is(err, ErrBrowserUnavailable) || errors.Is(err, ErrSessionClosed)
}

// opTimeout d<=0 时回退到 defaultOpTimeout,任何页面操作都不会无限等待
func opTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultOpTimeout
	}
	return d
}

// boundedCtx 为单次页面操作加上截止时间
func boundedCtx(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, opTimeout(d))
}

// WaitPolicy 导航等待策略
type WaitPolicy int

const (
	WaitLoad        WaitPolicy = iota // 等待load事件
	WaitNetworkIdle                   // load后再等待网络空闲
)

// Script 在页面中执行的脚本
// Name 用于日志和测试替身识别,JS 必须是函数定义形式
type Script struct {
	Name string
	JS   string
}

// Exchange 一次观察到的网络响应
type Exchange struct {
	URL    string
	Status int
}

// Session 浏览器会话能力
// 同一会话只能由单个goroutine顺序驱动,文档是共享的有状态资源。
// 浏览器进程退出或连接断开时,各操作返回包装了 ErrBrowserUnavailable 的错误
type Session interface {
	// Navigate 导航到URL并按策略等待
	Navigate(ctx context.Context, url string, wait WaitPolicy, timeout time.Duration) error

	// Evaluate 在当前文档中执行脚本并返回结构化结果
	Evaluate(ctx context.Context, script Script, args ...interface{}) (gson.JSON, error)

	// ObserveNetwork 订阅网络响应,ctx结束时通道关闭
	ObserveNetwork(ctx context.Context) <-chan Exchange

	// PointerMove 模拟指针移动
	PointerMove(ctx context.Context, x, y float64) error

	// Wheel 模拟滚轮输入
	Wheel(ctx context.Context, dx, dy float64) error

	// ScrollToBottom 文档级滚动到底部
	ScrollToBottom(ctx context.Context) error

	// WaitForNetworkIdle 等待网络空闲,超时返回false
	WaitForNetworkIdle(ctx context.Context, idle, timeout time.Duration) bool

	// HTML 返回当前文档HTML
	HTML(ctx context.Context) (string, error)

	// URL 返回当前文档地址
	URL() string

	// Screenshot 截取当前视口
	Screenshot(ctx context.Context) ([]byte, error)

	// Close 释放会话
	Close() error
}

// WaitForPredicate 以固定间隔轮询谓词,直到为真或超时
// 超时和ctx结束都返回false,从不视为错误
func WaitForPredicate(ctx context.Context, pred func(context.Context) bool, timeout, poll time.Duration) bool {
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if pred(waitCtx) {
		return true
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-waitCtx.Done():
			return false
		case <-ticker.C:
			if pred(waitCtx) {
				return true
			}
		}
	}
}

// sleepCtx 可被ctx打断的等待
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

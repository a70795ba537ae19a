package crawlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/RecoveryAshes/DiscoverCrawl/internal/models"
	"github.com/RecoveryAshes/DiscoverCrawl/internal/utils"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"
)

const (
	// navigateIdleWindow 导航时网络空闲判定窗口
	navigateIdleWindow = 500 * time.Millisecond
	// healthCheckTimeout 操作失败后确认浏览器是否存活的上限
	healthCheckTimeout = 3 * time.Second
)

// 浏览器进程退出或标签页崩溃时CDP返回的错误消息片段
var crashMarkers = []string{"target closed", "target crashed", "session closed", "websocket: close"}

var scrollToBottomScript = Script{
	Name: "scrollToBottom",
	JS: `() => {
		var el = document.scrollingElement || document.documentElement || document.body;
		var height = el ? el.scrollHeight : 0;
		window.scrollTo(0, height);
		return height;
	}`,
}

// RodSession 基于go-rod的浏览器会话,一个浏览器对应一个标签页
type RodSession struct {
	browser *rod.Browser
	page    *rod.Page
	config  models.BrowserConfig

	mu     sync.Mutex
	closed bool
	broken error // 连接级失败后置位,之后的操作直接返回
}

// LaunchRodSession 启动浏览器并打开唯一的工作标签页
// 启动或连接失败时返回包装了ErrBrowserUnavailable的错误
func LaunchRodSession(config models.BrowserConfig) (*RodSession, error) {
	l := launcher.New().
		Headless(config.Headless).
		NoSandbox(true)

	if config.BinPath != "" {
		l = l.Bin(config.BinPath)
	}

	// 允许访问自签名证书的站点
	l = l.Set("ignore-certificate-errors")
	if config.Width > 0 && config.Height > 0 {
		l = l.Set("window-size", fmt.Sprintf("%d,%d", config.Width, config.Height))
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("%w: 启动浏览器失败: %v", ErrBrowserUnavailable, err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("%w: 连接浏览器失败: %v", ErrBrowserUnavailable, err)
	}
	utils.Debugf("浏览器已启动: %s", controlURL)

	var page *rod.Page
	if config.Stealth {
		page, err = stealth.Page(browser)
	} else {
		page, err = browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("%w: 创建标签页失败: %v", ErrBrowserUnavailable, err)
	}

	if config.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: config.UserAgent}); err != nil {
			utils.Warnf("设置User-Agent失败: %v", err)
		}
	}
	if config.Width > 0 && config.Height > 0 {
		if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             config.Width,
			Height:            config.Height,
			DeviceScaleFactor: 1,
		}); err != nil {
			utils.Warnf("设置视口失败: %v", err)
		}
	}

	if len(config.Headers) > 0 {
		dict := make([]string, 0, len(config.Headers)*2)
		for name, value := range config.Headers {
			dict = append(dict, name, value)
		}
		if _, err := page.SetExtraHeaders(dict); err != nil {
			utils.Warnf("设置附加请求头失败: %v", err)
		}
	}

	// 启用网络域,ObserveNetwork依赖响应事件
	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		utils.Warnf("启用网络事件失败: %v", err)
	}

	return &RodSession{
		browser: browser,
		page:    page,
		config:  config,
	}, nil
}

// guard 将rod内部panic转换为ErrBrowserUnavailable
func (s *RodSession) guard(err *error) {
	if r := recover(); r != nil {
		utils.Errorf("浏览器操作panic: %v", r)
		*err = fmt.Errorf("%w: %v", ErrBrowserUnavailable, r)
		s.mu.Lock()
		if s.broken == nil {
			s.broken = *err
		}
		s.mu.Unlock()
	}
}

func (s *RodSession) alive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return s.broken
}

// check 对失败的操作做分类,连接级失败记为 ErrBrowserUnavailable 并使会话失效
func (s *RodSession) check(err error) error {
	if err == nil {
		return nil
	}
	err = classifyFailure(err, s.healthCheck)
	if errors.Is(err, ErrBrowserUnavailable) {
		s.mu.Lock()
		if s.broken == nil {
			s.broken = err
		}
		s.mu.Unlock()
		utils.Errorf("浏览器连接已失效: %v", err)
	}
	return err
}

// healthCheck 向浏览器查询工作标签页信息,失败说明进程或标签页已不可用
func (s *RodSession) healthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()
	_, err := proto.TargetGetTargetInfo{TargetID: s.page.TargetID}.Call(s.browser.Context(ctx))
	return err
}

// classifyFailure 调用方取消和页面内脚本错误保持原样;
// 连接断开、标签页崩溃以及健康检查失败都归为 ErrBrowserUnavailable
func classifyFailure(err error, healthCheck func() error) error {
	if err == nil || IsSessionFatal(err) || errors.Is(err, context.Canceled) {
		return err
	}
	if isConnectionFailure(err) {
		return fmt.Errorf("%w: %v", ErrBrowserUnavailable, err)
	}
	if checkErr := healthCheck(); checkErr != nil {
		return fmt.Errorf("%w: %v (健康检查失败: %v)", ErrBrowserUnavailable, err, checkErr)
	}
	return err
}

func isConnectionFailure(err error) bool {
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range crashMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Navigate 导航到URL并等待
func (s *RodSession) Navigate(ctx context.Context, url string, wait WaitPolicy, timeout time.Duration) (err error) {
	defer s.guard(&err)
	if err := s.alive(); err != nil {
		return err
	}

	timeout = opTimeout(timeout)
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page := s.page.Context(navCtx)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("导航失败 [%s]: %w", url, s.check(err))
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("等待页面加载失败 [%s]: %w", url, s.check(err))
	}

	if wait == WaitNetworkIdle {
		remaining := timeout
		if deadline, ok := navCtx.Deadline(); ok {
			remaining = time.Until(deadline)
		}
		if !s.WaitForNetworkIdle(ctx, navigateIdleWindow, remaining) {
			utils.Debugf("网络空闲等待超时,继续: %s", url)
		}
	}
	return nil
}

// Evaluate 执行脚本
func (s *RodSession) Evaluate(ctx context.Context, script Script, args ...interface{}) (value gson.JSON, err error) {
	defer s.guard(&err)
	if err := s.alive(); err != nil {
		return gson.New(nil), err
	}

	res, err := s.page.Context(ctx).Evaluate(rod.Eval(script.JS, args...))
	if err != nil {
		return gson.New(nil), fmt.Errorf("执行脚本失败 [%s]: %w", script.Name, s.check(err))
	}
	return res.Value, nil
}

// ObserveNetwork 订阅网络响应事件
func (s *RodSession) ObserveNetwork(ctx context.Context) <-chan Exchange {
	ch := make(chan Exchange, 64)

	wait := s.page.Context(ctx).EachEvent(func(e *proto.NetworkResponseReceived) {
		if e.Response == nil {
			return
		}
		select {
		case ch <- Exchange{URL: e.Response.URL, Status: e.Response.Status}:
		default:
			// 消费方已不再读取,丢弃
		}
	})

	go func() {
		defer close(ch)
		defer func() {
			if r := recover(); r != nil {
				utils.Debugf("网络事件监听结束: %v", r)
			}
		}()
		wait()
	}()

	return ch
}

// PointerMove 模拟指针移动
func (s *RodSession) PointerMove(ctx context.Context, x, y float64) (err error) {
	defer s.guard(&err)
	if err := s.alive(); err != nil {
		return err
	}
	return s.check(s.page.Context(ctx).Mouse.MoveTo(proto.Point{X: x, Y: y}))
}

// Wheel 模拟滚轮
func (s *RodSession) Wheel(ctx context.Context, dx, dy float64) (err error) {
	defer s.guard(&err)
	if err := s.alive(); err != nil {
		return err
	}
	return s.check(s.page.Context(ctx).Mouse.Scroll(dx, dy, 4))
}

// ScrollToBottom 文档滚动到底部
func (s *RodSession) ScrollToBottom(ctx context.Context) error {
	_, err := s.Evaluate(ctx, scrollToBottomScript)
	return err
}

// WaitForNetworkIdle 等待网络空闲
func (s *RodSession) WaitForNetworkIdle(ctx context.Context, idle, timeout time.Duration) bool {
	if s.alive() != nil {
		return false
	}

	idleCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	wait := s.page.Context(idleCtx).WaitRequestIdle(idle, nil, nil, nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() { _ = recover() }()
		wait()
	}()

	select {
	case <-done:
		return idleCtx.Err() == nil
	case <-idleCtx.Done():
		return false
	}
}

// HTML 返回当前文档HTML
func (s *RodSession) HTML(ctx context.Context) (html string, err error) {
	defer s.guard(&err)
	if err := s.alive(); err != nil {
		return "", err
	}
	html, err = s.page.Context(ctx).HTML()
	return html, s.check(err)
}

// URL 返回当前地址
func (s *RodSession) URL() string {
	info, err := s.page.Timeout(defaultOpTimeout).Info()
	if err != nil || info == nil {
		return ""
	}
	return info.URL
}

// Screenshot 截取当前视口
func (s *RodSession) Screenshot(ctx context.Context) (data []byte, err error) {
	defer s.guard(&err)
	if err := s.alive(); err != nil {
		return nil, err
	}
	data, err = s.page.Context(ctx).Screenshot(false, nil)
	return data, s.check(err)
}

// Close 关闭标签页和浏览器
func (s *RodSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if err := s.page.Timeout(defaultOpTimeout).Close(); err != nil {
		utils.Warnf("关闭标签页失败: %v", err)
	}
	if err := s.browser.Timeout(defaultOpTimeout).Close(); err != nil {
		return fmt.Errorf("关闭浏览器失败: %w", err)
	}
	utils.Debugf("浏览器已关闭")
	return nil
}

package crawlers

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/RecoveryAshes/DiscoverCrawl/internal/utils"
	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly/v2"
	"golang.org/x/net/html/charset"
)

// DocumentSource 详情页文档来源
type DocumentSource interface {
	// Fetch 获取URL对应的HTML文档
	Fetch(ctx context.Context, url string, timeout time.Duration) (string, error)
}

// BrowserSource 复用浏览器会话获取渲染后的文档
type BrowserSource struct {
	session Session
}

// NewBrowserSource 创建浏览器文档来源
func NewBrowserSource(session Session) *BrowserSource {
	return &BrowserSource{session: session}
}

// Fetch 导航并读取文档,导航和读取各自受 timeout 限制
func (s *BrowserSource) Fetch(ctx context.Context, url string, timeout time.Duration) (string, error) {
	timeout = opTimeout(timeout)
	if err := s.session.Navigate(ctx, url, WaitNetworkIdle, timeout); err != nil {
		return "", err
	}

	htmlCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	html, err := s.session.HTML(htmlCtx)
	if err != nil {
		return "", fmt.Errorf("读取文档失败 [%s]: %w", url, err)
	}
	return html, nil
}

// StaticSource 使用Colly直接请求文档,不执行页面脚本
type StaticSource struct {
	collector *colly.Collector
	headers   map[string]string
}

// NewStaticSource 创建静态文档来源,headers 为附加请求头
func NewStaticSource(userAgent string, headers map[string]string) *StaticSource {
	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true,
			},
		},
	}

	c := colly.NewCollector(
		colly.AllowURLRevisit(),
	)
	c.SetClient(httpClient)
	if userAgent != "" {
		c.UserAgent = userAgent
	}

	return &StaticSource{collector: c, headers: headers}
}

// Fetch 同步请求URL,解压并按声明的字符集解码
func (s *StaticSource) Fetch(ctx context.Context, url string, timeout time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// 每次请求使用独立的克隆,回调互不干扰
	c := s.collector.Clone()
	c.SetRequestTimeout(opTimeout(timeout))

	var (
		body     []byte
		fetchErr error
	)

	c.OnRequest(func(r *colly.Request) {
		// 自行声明编码后,传输层不再自动解压
		r.Headers.Set("Accept-Encoding", "gzip, deflate, br")
		r.Headers.Set("Accept", "text/html,application/xhtml+xml")
		for name, value := range s.headers {
			r.Headers.Set(name, value)
		}
	})

	c.OnResponse(func(r *colly.Response) {
		raw := r.Body
		if encoding := r.Headers.Get("Content-Encoding"); encoding != "" {
			decompressed, err := decompressResponse(encoding, r.Body)
			if err != nil {
				utils.Warnf("解压响应失败 [%s] (编码=%s): %v", url, encoding, err)
			} else {
				raw = decompressed
			}
		}

		// 响应头声明的字符集已由Colly转换,这里只处理meta声明
		body = raw
		if !strings.Contains(strings.ToLower(r.Headers.Get("Content-Type")), "charset") {
			decoded, err := decodeCharset(raw, "text/html")
			if err != nil {
				utils.Debugf("字符集解码失败 [%s]: %v", url, err)
			} else {
				body = decoded
			}
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			fetchErr = fmt.Errorf("HTTP %d: %w", r.StatusCode, err)
			return
		}
		fetchErr = err
	})

	if err := c.Visit(url); err != nil {
		return "", fmt.Errorf("请求失败 [%s]: %w", url, err)
	}
	c.Wait()

	if fetchErr != nil {
		return "", fmt.Errorf("请求失败 [%s]: %w", url, fetchErr)
	}
	return string(body), nil
}

// decodeCharset 按文档meta声明转换为UTF-8
func decodeCharset(body []byte, contentType string) ([]byte, error) {
	reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(reader)
}

// decompressResponse 解压响应体
// 支持 gzip、deflate 和 br (brotli)
func decompressResponse(contentEncoding string, body []byte) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(contentEncoding))

	switch encoding {
	case "gzip":
		// Colly会自行解压gzip,此时内容已是明文
		if len(body) < 2 || body[0] != 0x1f || body[1] != 0x8b {
			return body, nil
		}
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip解压失败: %w", err)
		}
		defer reader.Close()

		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("gzip读取失败: %w", err)
		}
		return decompressed, nil

	case "deflate":
		reader := flate.NewReader(bytes.NewReader(body))
		defer reader.Close()

		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("deflate读取失败: %w", err)
		}
		return decompressed, nil

	case "br":
		reader := brotli.NewReader(bytes.NewReader(body))
		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("brotli读取失败: %w", err)
		}
		return decompressed, nil

	case "", "identity":
		return body, nil

	default:
		return nil, fmt.Errorf("不支持的压缩编码: %s", encoding)
	}
}

package crawlers

import (
	"net/url"
	"strings"
)

const (
	// discoverPrefix 商品页路径前缀
	discoverPrefix = "/discover/"
	// reservedSegment 保留路径段,不能作为组织或商品标识
	reservedSegment = "search"
)

// searchMarkers 原始href中出现即拒绝(防止长路径中的部分匹配)
var searchMarkers = []string{"/discover/search", "/search?"}

// Canonicalize 将原始href规范化为商品URL
// 规则:
//   - 相对路径按pageOrigin解析,结果必须是带主机名的http/https绝对URL
//   - 去掉查询串、片段和末尾斜杠
//   - 路径必须恰好是 /discover/{org}/{product}
//   - 任一路径段为search,或原始href包含 /discover/search、/search? 时拒绝
//
// 纯函数,相同输入总是得到相同输出
func Canonicalize(rawHref, pageOrigin string) (string, bool) {
	raw := strings.TrimSpace(rawHref)
	if raw == "" {
		return "", false
	}

	lower := strings.ToLower(raw)
	for _, marker := range searchMarkers {
		if strings.Contains(lower, marker) {
			return "", false
		}
	}

	base, err := url.Parse(strings.TrimSpace(pageOrigin))
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}

	abs := ref
	if !ref.IsAbs() {
		if base.Scheme == "" || base.Host == "" {
			return "", false
		}
		abs = base.ResolveReference(ref)
	}

	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	if abs.Host == "" {
		return "", false
	}

	path := strings.TrimSuffix(abs.EscapedPath(), "/")
	if !strings.HasPrefix(path, discoverPrefix) {
		return "", false
	}

	segments := strings.Split(strings.TrimPrefix(path, discoverPrefix), "/")
	if len(segments) != 2 {
		return "", false
	}
	for _, seg := range segments {
		if seg == "" || strings.EqualFold(seg, reservedSegment) {
			return "", false
		}
	}

	return abs.Scheme + "://" + strings.ToLower(abs.Host) + path, true
}

// CanonicalizeAll 规范化一批href,按首次出现顺序去重
func CanonicalizeAll(hrefs []string, pageOrigin string) []string {
	seen := make(map[string]bool, len(hrefs))
	result := make([]string, 0, len(hrefs))
	for _, href := range hrefs {
		canonical, ok := Canonicalize(href, pageOrigin)
		if !ok || seen[canonical] {
			continue
		}
		seen[canonical] = true
		result = append(result, canonical)
	}
	return result
}

// CountCanonical 统计可规范化的不同商品链接数
func CountCanonical(hrefs []string, pageOrigin string) int {
	return len(CanonicalizeAll(hrefs, pageOrigin))
}

// OriginOf 返回URL的源(scheme://host)
func OriginOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}

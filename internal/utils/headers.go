package utils

import (
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
)

// MaxHeaderValueLength 请求头值最大长度 (8KB)
const MaxHeaderValueLength = 8192

var (
	// forbiddenHeaders 由HTTP客户端或浏览器自行管理的头部
	forbiddenHeaders = map[string]bool{
		"host":              true,
		"content-length":    true,
		"transfer-encoding": true,
		"connection":        true,
		"accept-encoding":   true,
	}

	// sensitiveKeywords 名称包含这些关键字的头部在日志中脱敏
	sensitiveKeywords = []string{"authorization", "cookie", "token", "key", "secret", "password"}

	headerNamePattern  = regexp.MustCompile(`^[A-Za-z0-9-]+$`)
	headerValuePattern = regexp.MustCompile(`^[\x20-\x7E\t]*$`)
)

// ValidateHeader 校验单个附加请求头
func ValidateHeader(name, value string) error {
	if name == "" {
		return fmt.Errorf("请求头名称不能为空")
	}
	if forbiddenHeaders[strings.ToLower(name)] {
		return fmt.Errorf("请求头 %s 由客户端自动管理,不允许自定义", name)
	}
	if !headerNamePattern.MatchString(name) {
		return fmt.Errorf("请求头名称 %q 包含非法字符 (仅允许字母、数字和连字符)", name)
	}
	if len(value) > MaxHeaderValueLength {
		return fmt.Errorf("请求头 %s 的值过长: %d 字节 (最大 %d)", name, len(value), MaxHeaderValueLength)
	}
	if !headerValuePattern.MatchString(value) {
		return fmt.Errorf("请求头 %s 的值包含非法字符 (仅允许可打印ASCII字符)", name)
	}
	return nil
}

// ValidateHeaders 校验全部请求头,返回第一个错误
func ValidateHeaders(headers http.Header) error {
	for name, values := range headers {
		for _, value := range values {
			if err := ValidateHeader(name, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// ParseHeaderFlag 解析 "Name: Value" 形式的命令行参数
func ParseHeaderFlag(s string) (name, value string, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("格式错误: 缺少冒号分隔符,应为 'Name: Value'")
	}
	name = strings.TrimSpace(parts[0])
	value = strings.TrimSpace(parts[1])
	if name == "" {
		return "", "", fmt.Errorf("请求头名称不能为空")
	}
	return name, value, nil
}

// IsSensitiveHeader 名称是否包含敏感关键字
func IsSensitiveHeader(name string) bool {
	lower := strings.ToLower(name)
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// RedactHeaderValue 脱敏单个值
func RedactHeaderValue(name, value string) string {
	if !IsSensitiveHeader(name) {
		return value
	}
	if strings.HasPrefix(value, "Bearer ") {
		return "Bearer ***"
	}
	if len(value) > 8 {
		return value[:4] + "***" + value[len(value)-4:]
	}
	return "***"
}

// RedactHeaders 返回可写入日志的 "Name: Value" 列表,按名称排序
func RedactHeaders(headers http.Header) []string {
	out := make([]string, 0, len(headers))
	for name, values := range headers {
		if len(values) == 0 {
			continue
		}
		out = append(out, name+": "+RedactHeaderValue(name, values[0]))
	}
	sort.Strings(out)
	return out
}

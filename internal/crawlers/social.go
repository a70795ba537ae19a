package crawlers

import (
	"net/url"
	"strings"

	"github.com/RecoveryAshes/DiscoverCrawl/internal/models"
)

// platformRule 平台域名规则
type platformRule struct {
	platform   models.Platform
	host       string // 匹配该域名及其子域名
	pathPrefix string // 可选路径前缀
}

// 平台规则表,同一平台可以有多条
var platformRules = []platformRule{
	{platform: models.PlatformTwitter, host: "twitter.com"},
	{platform: models.PlatformTwitter, host: "x.com"},
	{platform: models.PlatformInstagram, host: "instagram.com"},
	{platform: models.PlatformYouTube, host: "youtube.com"},
	{platform: models.PlatformYouTube, host: "youtu.be"},
	{platform: models.PlatformTikTok, host: "tiktok.com"},
	{platform: models.PlatformDiscord, host: "discord.gg"},
	{platform: models.PlatformDiscord, host: "discord.com", pathPrefix: "/invite/"},
	{platform: models.PlatformDiscord, host: "discordapp.com", pathPrefix: "/invite/"},
	{platform: models.PlatformLinkedIn, host: "linkedin.com"},
	{platform: models.PlatformTelegram, host: "t.me"},
	{platform: models.PlatformTelegram, host: "telegram.me"},
}

// 不指向具体账号的路径(分享按钮等)
var nonProfileSegments = map[string]bool{
	"intent":  true,
	"share":   true,
	"sharer":  true,
	"hashtag": true,
	"search":  true,
	"home":    true,
	"explore": true,
}

// 账号前的容器路径段,取句柄时跳过
var containerSegments = map[string]bool{
	"c":       true,
	"channel": true,
	"user":    true,
	"company": true,
	"in":      true,
	"invite":  true,
	"s":       true,
}

// SocialClassifier 社交链接分类器
type SocialClassifier struct {
	houseAccounts map[string]bool
}

// NewSocialClassifier 创建分类器,houseAccounts 为平台自有账号列表
func NewSocialClassifier(houseAccounts []string) *SocialClassifier {
	set := make(map[string]bool, len(houseAccounts))
	for _, h := range houseAccounts {
		if n := NormalizeHandle(h); n != "" {
			set[n] = true
		}
	}
	return &SocialClassifier{houseAccounts: set}
}

// NormalizeHandle 归一化句柄: 去空白、@前缀和尾部斜杠,转小写
func NormalizeHandle(handle string) string {
	h := strings.TrimSpace(handle)
	h = strings.Trim(h, "/")
	h = strings.TrimPrefix(h, "@")
	return strings.ToLower(h)
}

// IsHouseAccount 是否为平台自有账号
func (c *SocialClassifier) IsHouseAccount(handle string) bool {
	n := NormalizeHandle(handle)
	return n != "" && c.houseAccounts[n]
}

// Classify 对单个链接分类
// 平台自有账号的链接在分类前就被跳过
func (c *SocialClassifier) Classify(href string) (models.Platform, bool) {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", false
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	path := strings.ToLower(u.Path)

	for _, rule := range platformRules {
		if host != rule.host && !strings.HasSuffix(host, "."+rule.host) {
			continue
		}
		if rule.pathPrefix != "" && !strings.HasPrefix(path, rule.pathPrefix) {
			continue
		}

		handle, ok := accountFromPath(u.Path)
		if !ok {
			return "", false
		}
		if c.IsHouseAccount(handle) {
			return "", false
		}
		return rule.platform, true
	}
	return "", false
}

// ClassifyAll 按文档顺序分类,每个平台取第一个匹配
func (c *SocialClassifier) ClassifyAll(hrefs []string) map[models.Platform]string {
	found := make(map[models.Platform]string)
	for _, href := range hrefs {
		platform, ok := c.Classify(href)
		if !ok {
			continue
		}
		if _, exists := found[platform]; !exists {
			found[platform] = strings.TrimSpace(href)
		}
	}
	return found
}

// accountFromPath 从路径中取出账号段
// 分享类路径与空路径不算账号
func accountFromPath(path string) (string, bool) {
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			continue
		}
		lower := strings.ToLower(seg)
		if nonProfileSegments[lower] {
			return "", false
		}
		if containerSegments[lower] {
			continue
		}
		return seg, true
	}
	return "", false
}

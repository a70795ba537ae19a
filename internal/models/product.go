package models

// Platform 社交平台类别
type Platform string

const (
	PlatformTwitter   Platform = "twitter"   // 微博客 (Twitter/X)
	PlatformInstagram Platform = "instagram" // 图片分享
	PlatformYouTube   Platform = "youtube"   // 视频
	PlatformTikTok    Platform = "tiktok"    // 短视频
	PlatformDiscord   Platform = "discord"   // 聊天邀请
	PlatformLinkedIn  Platform = "linkedin"  // 职业社交
	PlatformTelegram  Platform = "telegram"  // 广播消息
)

// Platforms 所有平台,顺序即CSV列顺序
var Platforms = []Platform{
	PlatformTwitter,
	PlatformInstagram,
	PlatformYouTube,
	PlatformTikTok,
	PlatformDiscord,
	PlatformLinkedIn,
	PlatformTelegram,
}

// ProductRecord 单个商品的抽取结果
// 平台字段为空字符串表示未找到,这是正常的终态而非错误
type ProductRecord struct {
	URL           string `json:"url"`
	Name          string `json:"name"`
	CreatorName   string `json:"creator_name"`
	CreatorHandle string `json:"creator_handle"`
	Twitter       string `json:"twitter"`
	Instagram     string `json:"instagram"`
	YouTube       string `json:"youtube"`
	TikTok        string `json:"tiktok"`
	Discord       string `json:"discord"`
	LinkedIn      string `json:"linkedin"`
	Telegram      string `json:"telegram"`

	// Error 降级原因,仅用于诊断,不进入CSV
	Error string `json:"error,omitempty"`
}

// NewProductRecord 创建只包含标识的空记录
func NewProductRecord(productURL string) ProductRecord {
	return ProductRecord{URL: productURL}
}

// Link 返回指定平台的链接
func (r ProductRecord) Link(p Platform) string {
	switch p {
	case PlatformTwitter:
		return r.Twitter
	case PlatformInstagram:
		return r.Instagram
	case PlatformYouTube:
		return r.YouTube
	case PlatformTikTok:
		return r.TikTok
	case PlatformDiscord:
		return r.Discord
	case PlatformLinkedIn:
		return r.LinkedIn
	case PlatformTelegram:
		return r.Telegram
	}
	return ""
}

// SetLink 设置指定平台的链接
func (r *ProductRecord) SetLink(p Platform, link string) {
	switch p {
	case PlatformTwitter:
		r.Twitter = link
	case PlatformInstagram:
		r.Instagram = link
	case PlatformYouTube:
		r.YouTube = link
	case PlatformTikTok:
		r.TikTok = link
	case PlatformDiscord:
		r.Discord = link
	case PlatformLinkedIn:
		r.LinkedIn = link
	case PlatformTelegram:
		r.Telegram = link
	}
}

// HasSocial 是否至少找到一个社交链接
func (r ProductRecord) HasSocial() bool {
	for _, p := range Platforms {
		if r.Link(p) != "" {
			return true
		}
	}
	return false
}

// CrawlStats 爬取统计
// 总是由FoldStats从记录列表重新计算,不维护独立计数器
type CrawlStats struct {
	Total      int              `json:"total"`
	ByPlatform map[Platform]int `json:"by_platform"`
	WithAny    int              `json:"with_any"` // 至少有一个社交链接的记录数
}

// Count 返回某平台的计数
func (s CrawlStats) Count(p Platform) int {
	return s.ByPlatform[p]
}

// FoldStats 从记录列表计算统计
func FoldStats(records []ProductRecord) CrawlStats {
	stats := CrawlStats{
		Total:      len(records),
		ByPlatform: make(map[Platform]int, len(Platforms)),
	}
	for _, p := range Platforms {
		stats.ByPlatform[p] = 0
	}
	for _, r := range records {
		hasAny := false
		for _, p := range Platforms {
			if r.Link(p) != "" {
				stats.ByPlatform[p]++
				hasAny = true
			}
		}
		if hasAny {
			stats.WithAny++
		}
	}
	return stats
}

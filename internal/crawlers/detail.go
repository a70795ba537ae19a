package crawlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/DiscoverCrawl/internal/models"
	"github.com/RecoveryAshes/DiscoverCrawl/internal/utils"
	"github.com/rs/zerolog/log"
)

// DetailExtractor 详情页抽取器
// Extract 从不返回错误: 任何失败都降级为只含标识的记录
type DetailExtractor struct {
	source        DocumentSource
	classifier    *SocialClassifier
	origin        string
	titleSuffixes []string
	config        models.DetailConfig

	// fatal 会话不可用时记录,调用方据此中止批次
	fatal error
}

// NewDetailExtractor 创建详情页抽取器
func NewDetailExtractor(source DocumentSource, site models.SiteConfig, config models.DetailConfig) *DetailExtractor {
	if config.ProfilePrefix == "" {
		config.ProfilePrefix = "/@"
	}
	return &DetailExtractor{
		source:        source,
		classifier:    NewSocialClassifier(site.HouseAccounts),
		origin:        strings.TrimRight(site.Origin, "/"),
		titleSuffixes: site.TitleSuffixes,
		config:        config,
	}
}

// Extract 抽取单个商品详情
func (e *DetailExtractor) Extract(ctx context.Context, productURL string) (record models.ProductRecord) {
	record = models.NewProductRecord(productURL)

	defer func() {
		if r := recover(); r != nil {
			utils.Errorf("抽取详情页panic [%s]: %v", productURL, r)
			record = models.NewProductRecord(productURL)
			record.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	html, err := e.source.Fetch(ctx, productURL, e.config.Timeout)
	if err != nil {
		if IsSessionFatal(err) {
			e.fatal = err
		}
		utils.Warnf("获取详情页失败 [%s]: %v", productURL, err)
		record.Error = err.Error()
		return record
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		utils.Warnf("解析详情页失败 [%s]: %v", productURL, err)
		record.Error = err.Error()
		return record
	}

	hrefs := anchorHrefs(doc, productURL)

	record.Name = extractDisplayName(doc, e.titleSuffixes)
	record.CreatorName = extractCreatorName(doc)
	record.CreatorHandle = e.extractHandle(hrefs)

	for platform, link := range e.classifier.ClassifyAll(hrefs) {
		record.SetLink(platform, link)
	}

	if !record.HasSocial() && record.CreatorHandle != "" {
		e.profileFallback(ctx, &record)
	}

	log.Debug().
		Str("url", productURL).
		Str("name", record.Name).
		Str("handle", record.CreatorHandle).
		Bool("social", record.HasSocial()).
		Msg("详情页抽取完成")

	return record
}

// Err 会话不可用导致的错误,其他失败都已降级为空记录
func (e *DetailExtractor) Err() error {
	return e.fatal
}

// profileFallback 在创作者主页上补充社交链接,只填充空缺的平台
// 自身的失败不影响记录,会话级错误仍记入 fatal
func (e *DetailExtractor) profileFallback(ctx context.Context, record *models.ProductRecord) {
	profileURL := e.ProfileURL(record.CreatorHandle)

	html, err := e.source.Fetch(ctx, profileURL, e.config.ProfileTimeout)
	if err != nil {
		if IsSessionFatal(err) {
			e.fatal = err
		}
		utils.Debugf("获取创作者主页失败 [%s]: %v", profileURL, err)
		return
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		utils.Debugf("解析创作者主页失败 [%s]: %v", profileURL, err)
		return
	}

	merged := 0
	for platform, link := range e.classifier.ClassifyAll(anchorHrefs(doc, profileURL)) {
		if record.Link(platform) == "" {
			record.SetLink(platform, link)
			merged++
		}
	}
	if merged > 0 {
		utils.Debugf("从创作者主页补充 %d 个社交链接: %s", merged, profileURL)
	}
}

// ProfileURL 创作者主页地址
func (e *DetailExtractor) ProfileURL(handle string) string {
	return e.origin + e.config.ProfilePrefix + url.PathEscape(handle)
}

// extractHandle 从指向主页路径的锚点中取第一个非平台自有账号的句柄
func (e *DetailExtractor) extractHandle(hrefs []string) string {
	originHost := ""
	if u, err := url.Parse(e.origin); err == nil {
		originHost = strings.ToLower(u.Hostname())
	}

	for _, href := range hrefs {
		u, err := url.Parse(href)
		if err != nil {
			continue
		}
		if originHost != "" && strings.ToLower(u.Hostname()) != originHost {
			continue
		}
		if !strings.HasPrefix(u.Path, e.config.ProfilePrefix) {
			continue
		}

		handle := strings.TrimPrefix(u.Path, e.config.ProfilePrefix)
		if i := strings.Index(handle, "/"); i >= 0 {
			handle = handle[:i]
		}
		if handle == "" || e.classifier.IsHouseAccount(handle) {
			continue
		}
		return handle
	}
	return ""
}

// extractDisplayName 优先取一级标题,否则取去掉站点后缀的文档标题
func extractDisplayName(doc *goquery.Document, suffixes []string) string {
	if h1 := collapseSpace(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}

	title := collapseSpace(doc.Find("title").First().Text())
	for _, suffix := range suffixes {
		if suffix != "" && strings.HasSuffix(title, suffix) {
			title = strings.TrimSpace(strings.TrimSuffix(title, suffix))
			break
		}
	}
	return title
}

// extractCreatorName 在结构化数据中查找Product类型的品牌名,第一个命中为准
// 格式错误的块直接忽略
func extractCreatorName(doc *goquery.Document) string {
	name := ""
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var data interface{}
		if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &data); err != nil {
			log.Debug().Err(err).Msg("忽略格式错误的结构化数据")
			return true
		}
		name = findProductBrand(data)
		return name == ""
	})
	return name
}

// findProductBrand 递归查找Product节点的brand,支持顶层数组和@graph
func findProductBrand(node interface{}) string {
	switch v := node.(type) {
	case []interface{}:
		for _, item := range v {
			if brand := findProductBrand(item); brand != "" {
				return brand
			}
		}
	case map[string]interface{}:
		if isProductType(v["@type"]) {
			if brand := brandName(v["brand"]); brand != "" {
				return brand
			}
		}
		if graph, ok := v["@graph"]; ok {
			return findProductBrand(graph)
		}
	}
	return ""
}

func isProductType(t interface{}) bool {
	switch v := t.(type) {
	case string:
		return strings.EqualFold(v, "Product")
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.EqualFold(s, "Product") {
				return true
			}
		}
	}
	return false
}

func brandName(b interface{}) string {
	switch v := b.(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]interface{}:
		if name, ok := v["name"].(string); ok {
			return strings.TrimSpace(name)
		}
	case []interface{}:
		for _, item := range v {
			if name := brandName(item); name != "" {
				return name
			}
		}
	}
	return ""
}

// anchorHrefs 按文档顺序返回所有锚点的绝对地址
func anchorHrefs(doc *goquery.Document, base string) []string {
	baseURL, _ := url.Parse(base)

	hrefs := make([]string, 0)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return
		}
		if baseURL != nil {
			if ref, err := url.Parse(href); err == nil {
				href = baseURL.ResolveReference(ref).String()
			}
		}
		hrefs = append(hrefs, href)
	})
	return hrefs
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

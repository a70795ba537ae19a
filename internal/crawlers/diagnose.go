package crawlers

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/DiscoverCrawl/internal/models"
)

// 拦截/挑战页面特征
var blockingMarkers = []string{
	"captcha",
	"verify you are human",
	"are you a robot",
	"access denied",
	"attention required",
	"just a moment",
	"checking your browser",
	"too many requests",
	"rate limited",
	"request blocked",
	"unusual traffic",
}

// 查询无结果特征
var noResultMarkers = []string{
	"no results",
	"no products found",
	"nothing found",
	"0 results",
	"no matches",
	"couldn't find",
	"could not find",
	"try a different search",
}

// Diagnose 根据标题和正文判断零结果原因
// 拦截特征优先于无结果特征,两者都没有时视为页面结构变化
func Diagnose(title, text string) models.Diagnosis {
	haystack := strings.ToLower(title + "\n" + text)

	for _, marker := range blockingMarkers {
		if strings.Contains(haystack, marker) {
			return models.DiagnosisBlocked
		}
	}
	for _, marker := range noResultMarkers {
		if strings.Contains(haystack, marker) {
			return models.DiagnosisNoResults
		}
	}
	return models.DiagnosisStructureChanged
}

// DiagnoseHTML 解析文档后诊断
func DiagnoseHTML(html string) models.Diagnosis {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Diagnose("", html)
	}
	doc.Find("script, style, noscript").Remove()

	title := strings.TrimSpace(doc.Find("title").First().Text())
	text := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	return Diagnose(title, text)
}

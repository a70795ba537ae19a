package utils

import (
	"encoding/csv"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/RecoveryAshes/DiscoverCrawl/internal/models"
)

// CSVHeader 结果表头,列顺序固定
var CSVHeader = []string{
	"Product Name",
	"Product URL",
	"Creator Name",
	"Creator Handle",
	"Twitter/X",
	"Instagram",
	"YouTube",
	"TikTok",
	"Discord",
	"LinkedIn",
	"Telegram",
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// EscapeField 转义单个字段
// 含逗号、双引号或换行(\n 或 \r,CSV读取方都把 \r 当作行结束)的字段用双引号包裹,
// 内部双引号加倍;空字段输出为空
func EscapeField(field string) string {
	if !strings.ContainsAny(field, ",\"\n\r") {
		return field
	}
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}

// recordRow 按表头顺序展开记录
func recordRow(r models.ProductRecord) []string {
	row := []string{r.Name, r.URL, r.CreatorName, r.CreatorHandle}
	for _, p := range models.Platforms {
		row = append(row, r.Link(p))
	}
	return row
}

// BuildCSV 把记录序列化为CSV文本,保持记录顺序
func BuildCSV(records []models.ProductRecord) string {
	var b strings.Builder
	writeRow(&b, CSVHeader)
	for _, r := range records {
		writeRow(&b, recordRow(r))
	}
	return b.String()
}

func writeRow(b *strings.Builder, fields []string) {
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(EscapeField(f))
	}
	b.WriteByte('\n')
}

// ParseCSV 解析BuildCSV的输出,返回不含表头的记录
func ParseCSV(data string) ([]models.ProductRecord, error) {
	r := csv.NewReader(strings.NewReader(data))
	r.FieldsPerRecord = len(CSVHeader)

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("解析CSV失败: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("CSV为空")
	}
	if !strings.EqualFold(rows[0][0], CSVHeader[0]) {
		return nil, fmt.Errorf("CSV缺少表头")
	}

	records := make([]models.ProductRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		record := models.ProductRecord{
			Name:          row[0],
			URL:           row[1],
			CreatorName:   row[2],
			CreatorHandle: row[3],
		}
		for i, p := range models.Platforms {
			record.SetLink(p, row[4+i])
		}
		records = append(records, record)
	}
	return records, nil
}

// SuggestFilename 结果文件名: discover_{query}_{YYYYMMDD_HHMMSS}.csv
func SuggestFilename(query string, at time.Time) string {
	name := strings.Trim(unsafeFilenameChars.ReplaceAllString(strings.TrimSpace(query), "_"), "_")
	if name == "" {
		name = "query"
	}
	return fmt.Sprintf("discover_%s_%s.csv", name, at.Format("20060102_150405"))
}

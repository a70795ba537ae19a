package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/RecoveryAshes/DiscoverCrawl/internal/models"
)

func TestEscapeField(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"", ""},
		{"a,b", `"a,b"`},
		{`say "hi"`, `"say ""hi"""`},
		{"line1\nline2", "\"line1\nline2\""},
		{"line1\r\nline2", "\"line1\r\nline2\""},
		{"bare\rcr", "\"bare\rcr\""},
		{" leading space", " leading space"},
		{"O'Brien", "O'Brien"},
	}
	for _, tt := range tests {
		if got := EscapeField(tt.in); got != tt.want {
			t.Errorf("EscapeField(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildCSV(t *testing.T) {
	records := []models.ProductRecord{
		{
			Name:          `O'Brien, "Pro"`,
			URL:           "https://whop.com/discover/obrien/pro",
			CreatorName:   "O'Brien",
			CreatorHandle: "obrien",
			Twitter:       "https://x.com/obrien",
			Discord:       "https://discord.gg/obrien",
		},
		{URL: "https://whop.com/discover/empty/one"},
	}

	out := BuildCSV(records)
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("行数 = %d, want 3:\n%s", len(lines), out)
	}
	if lines[0] != strings.Join(CSVHeader, ",") {
		t.Errorf("表头 = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], `"O'Brien, ""Pro""",https://whop.com/discover/obrien/pro,O'Brien,obrien,https://x.com/obrien,,,,https://discord.gg/obrien`) {
		t.Errorf("第一行 = %q", lines[1])
	}
	if lines[2] != ",https://whop.com/discover/empty/one,,,,,,,,," {
		t.Errorf("空字段应输出为空, got %q", lines[2])
	}

	parsed, err := ParseCSV(out)
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	if len(parsed) != 2 || parsed[0] != records[0] || parsed[1] != records[1] {
		t.Errorf("ParseCSV() = %+v", parsed)
	}
}

func TestBuildCSV_Empty(t *testing.T) {
	if got := BuildCSV(nil); got != strings.Join(CSVHeader, ",")+"\n" {
		t.Errorf("BuildCSV(nil) = %q", got)
	}
}

func TestParseCSV_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"空内容", ""},
		{"缺少表头", "a,b,c,d,e,f,g,h,i,j,k\n"},
		{"列数不符", strings.Join(CSVHeader, ",") + "\na,b\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseCSV(tt.data); err == nil {
				t.Error("应返回错误")
			}
		})
	}
}

func TestSuggestFilename(t *testing.T) {
	at := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

	tests := []struct {
		query string
		want  string
	}{
		{"TRADING", "discover_TRADING_20240309_140507.csv"},
		{"AI tools", "discover_AI_tools_20240309_140507.csv"},
		{"../etc/passwd", "discover_etc_passwd_20240309_140507.csv"},
		{"   ", "discover_query_20240309_140507.csv"},
	}
	for _, tt := range tests {
		if got := SuggestFilename(tt.query, at); got != tt.want {
			t.Errorf("SuggestFilename(%q) = %q, want %q", tt.query, got, tt.want)
		}
	}
}

package crawlers_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/RecoveryAshes/DiscoverCrawl/internal/crawlers"
	"github.com/RecoveryAshes/DiscoverCrawl/internal/crawlers/crawlertest"
)

func TestBrowserSource_Fetch(t *testing.T) {
	productURL := origin + "/discover/acme/signals"

	tests := []struct {
		name    string
		session *crawlertest.Session
		wantErr error
	}{
		{
			name:    "正常读取",
			session: &crawlertest.Session{Pages: map[string]string{productURL: "<html>ok</html>"}},
		},
		{
			name:    "文档读取卡死按超时返回",
			session: &crawlertest.Session{HangHTML: true},
			wantErr: context.DeadlineExceeded,
		},
		{
			name:    "导航时浏览器崩溃",
			session: &crawlertest.Session{CrashOnNavigation: 1},
			wantErr: crawlers.ErrBrowserUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := crawlers.NewBrowserSource(tt.session)

			start := time.Now()
			html, err := source.Fetch(context.Background(), productURL, 20*time.Millisecond)
			if elapsed := time.Since(start); elapsed > 2*time.Second {
				t.Fatalf("Fetch() 耗时 %v,超时未生效", elapsed)
			}

			if tt.wantErr == nil {
				if err != nil || html != "<html>ok</html>" {
					t.Errorf("Fetch() = %q, %v", html, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Fetch() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

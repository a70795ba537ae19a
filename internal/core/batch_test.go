package core

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/RecoveryAshes/DiscoverCrawl/internal/crawlers"
	"github.com/RecoveryAshes/DiscoverCrawl/internal/crawlers/crawlertest"
	"github.com/RecoveryAshes/DiscoverCrawl/internal/models"
)

// batchOpener 每次打开新会话;关键词 bad 的搜索页不可达
func batchOpener(config models.CrawlConfig, opened *int) SessionOpener {
	var mu sync.Mutex
	return func(models.BrowserConfig) (crawlers.Session, error) {
		mu.Lock()
		*opened++
		mu.Unlock()
		return &crawlertest.Session{
			Initial:      crawlertest.ProductLinks(testOrigin, 1, 2),
			NavigateErrs: map[string]error{config.Site.SearchURL("bad"): errors.New("connection reset")},
		}, nil
	}
}

func TestBatchRunner_ContinueOnError(t *testing.T) {
	config := testCrawlConfig(2)
	opened := 0

	runner := NewBatchRunner(config, OutputConfig{}, 0, true, WithSessionOpener(batchOpener(config, &opened)))

	var progressQueries []string
	runner.OnQueryProgress(func(query string) ProgressFunc {
		progressQueries = append(progressQueries, query)
		return nil
	})

	summary, err := runner.RunBatch(context.Background(), []string{"AI", "bad", "TRADING"})
	if err != nil {
		t.Fatalf("RunBatch() error = %v", err)
	}

	if summary.TotalQueries != 3 || summary.SuccessCount != 2 || summary.FailCount != 1 {
		t.Errorf("summary = total %d, success %d, fail %d", summary.TotalQueries, summary.SuccessCount, summary.FailCount)
	}
	if summary.TotalProducts != 4 {
		t.Errorf("TotalProducts = %d, want 4", summary.TotalProducts)
	}
	if opened != 3 {
		t.Errorf("每个关键词应使用独立会话, opened = %d", opened)
	}
	if len(progressQueries) != 3 {
		t.Errorf("进度回调工厂调用 = %v", progressQueries)
	}

	bad := summary.Results[1]
	if bad.Query != "bad" || bad.Success || !errors.Is(bad.Error, crawlers.ErrSearchUnreachable) {
		t.Errorf("失败结果 = %+v", bad)
	}
	if got := summary.Results[2].Result.Query; got != "TRADING" {
		t.Errorf("第三个结果的关键词 = %q", got)
	}
}

func TestBatchRunner_StopOnError(t *testing.T) {
	config := testCrawlConfig(2)
	opened := 0

	runner := NewBatchRunner(config, OutputConfig{}, 0, false, WithSessionOpener(batchOpener(config, &opened)))
	summary, err := runner.RunBatch(context.Background(), []string{"AI", "bad", "TRADING"})
	if err != nil {
		t.Fatalf("RunBatch() error = %v", err)
	}

	if len(summary.Results) != 2 || summary.SuccessCount != 1 || summary.FailCount != 1 {
		t.Errorf("失败后应停止: results=%d success=%d fail=%d", len(summary.Results), summary.SuccessCount, summary.FailCount)
	}
	if opened != 2 {
		t.Errorf("opened = %d, want 2", opened)
	}
}

func TestBatchRunner_Cancelled(t *testing.T) {
	config := testCrawlConfig(2)
	opened := 0

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := NewBatchRunner(config, OutputConfig{}, 0, true, WithSessionOpener(batchOpener(config, &opened))).
		RunBatch(ctx, []string{"AI", "TRADING"})
	if err != nil {
		t.Fatalf("RunBatch() error = %v", err)
	}
	if len(summary.Results) != 1 {
		t.Errorf("取消后不应继续下一个关键词, results = %d", len(summary.Results))
	}
}

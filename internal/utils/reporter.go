package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/RecoveryAshes/DiscoverCrawl/internal/models"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
)

// ErrResultNotFound 结果不存在
var ErrResultNotFound = errors.New("结果不存在")

// ResultSummary 结果列表项
type ResultSummary struct {
	ID        string                `json:"id"`
	Query     string                `json:"query"`
	Total     int                   `json:"total"`
	WithAny   int                   `json:"with_any"`
	State     models.DiscoveryState `json:"state"`
	Filename  string                `json:"filename"`
	StartedAt time.Time             `json:"started_at"`
}

// ResultStore 结果存储
// 每次运行保存为 {id}.json,CSV 以建议文件名保存在同一目录
type ResultStore struct {
	dir string
	mu  sync.RWMutex
}

// NewResultStore 创建结果存储
func NewResultStore(dir string) *ResultStore {
	return &ResultStore{dir: dir}
}

// Dir 存储目录
func (s *ResultStore) Dir() string {
	return s.dir
}

// Save 保存运行结果,返回CSV文件路径
func (s *ResultStore) Save(result *models.RunResult) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("创建结果目录失败: %w", err)
	}

	data, err := result.ToJSON()
	if err != nil {
		return "", fmt.Errorf("序列化JSON失败: %w", err)
	}

	jsonPath := filepath.Join(s.dir, result.ID+".json")
	if err := os.WriteFile(jsonPath, data, 0644); err != nil {
		return "", fmt.Errorf("写入结果文件失败: %w", err)
	}

	csvPath := filepath.Join(s.dir, filepath.Base(result.Filename))
	if err := os.WriteFile(csvPath, []byte(result.CSV), 0644); err != nil {
		return "", fmt.Errorf("写入CSV文件失败: %w", err)
	}

	Debugf("保存结果: %s", jsonPath)
	return csvPath, nil
}

// Load 按ID读取结果
func (s *ResultStore) Load(id string) (*models.RunResult, error) {
	// ID必须是UUID,防止路径穿越
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: 无效的ID %q", ErrResultNotFound, id)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(s.dir, id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrResultNotFound, id)
		}
		return nil, fmt.Errorf("读取结果文件失败: %w", err)
	}

	result := &models.RunResult{}
	if err := result.FromJSON(data); err != nil {
		return nil, fmt.Errorf("解析结果文件失败: %w", err)
	}
	return result, nil
}

// List 列出所有结果,按开始时间倒序
func (s *ResultStore) List() ([]ResultSummary, error) {
	s.mu.RLock()
	entries, err := os.ReadDir(s.dir)
	s.mu.RUnlock()
	if err != nil {
		if os.IsNotExist(err) {
			return []ResultSummary{}, nil
		}
		return nil, fmt.Errorf("读取结果目录失败: %w", err)
	}

	summaries := make([]ResultSummary, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		result, err := s.Load(id)
		if err != nil {
			Warnf("跳过无法读取的结果 [%s]: %v", entry.Name(), err)
			continue
		}
		summaries = append(summaries, ResultSummary{
			ID:        result.ID,
			Query:     result.Query,
			Total:     result.Stats.Total,
			WithAny:   result.Stats.WithAny,
			State:     result.Discovery.State,
			Filename:  result.Filename,
			StartedAt: result.StartedAt,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].StartedAt.After(summaries[j].StartedAt)
	})
	return summaries, nil
}

// NewProgressBar 创建进度条
func NewProgressBar(max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

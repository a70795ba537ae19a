package crawlers

import (
	"sync"
)

// DiscoveredSet 已发现商品URL集合
// 职责: 按发现顺序保存去重后的规范URL,只增不减
type DiscoveredSet struct {
	// 按发现顺序排列的URL
	order []string

	// 成员标记集合
	seen map[string]bool

	// 保护order和seen的读写锁
	mu sync.RWMutex
}

// NewDiscoveredSet 创建集合实例
func NewDiscoveredSet() *DiscoveredSet {
	return &DiscoveredSet{
		order: make([]string, 0),
		seen:  make(map[string]bool),
	}
}

// Add 添加单个URL,已存在时返回false
func (s *DiscoveredSet) Add(canonicalURL string) bool {
	if canonicalURL == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seen[canonicalURL] {
		return false
	}
	s.seen[canonicalURL] = true
	s.order = append(s.order, canonicalURL)
	return true
}

// Merge 合并一批URL,返回新增数量
func (s *DiscoveredSet) Merge(urls []string) int {
	added := 0
	for _, u := range urls {
		if s.Add(u) {
			added++
		}
	}
	return added
}

// Contains 检查URL是否已发现
func (s *DiscoveredSet) Contains(canonicalURL string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seen[canonicalURL]
}

// Len 返回已发现数量
func (s *DiscoveredSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// First 返回按发现顺序的前n个URL(副本)
func (s *DiscoveredSet) First(n int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n < 0 || n > len(s.order) {
		n = len(s.order)
	}
	out := make([]string, n)
	copy(out, s.order[:n])
	return out
}

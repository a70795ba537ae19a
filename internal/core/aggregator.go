package core

import (
	"github.com/RecoveryAshes/DiscoverCrawl/internal/models"
)

// Progress 单条记录处理完成后的进度通知
type Progress struct {
	Record   models.ProductRecord `json:"record"`
	Position int                  `json:"position"` // 从1开始
	Total    int                  `json:"total"`
	Stats    models.CrawlStats    `json:"stats"` // 前Position条记录的统计
}

// ProgressFunc 进度回调
type ProgressFunc func(Progress)

// Aggregator 按发现顺序收集记录
// 每次回调的统计都从已收集记录重新计算
type Aggregator struct {
	records    []models.ProductRecord
	total      int
	onProgress ProgressFunc
}

// NewAggregator 创建聚合器,total 为预期记录数
func NewAggregator(total int, onProgress ProgressFunc) *Aggregator {
	return &Aggregator{
		records:    make([]models.ProductRecord, 0, total),
		total:      total,
		onProgress: onProgress,
	}
}

// Add 追加一条记录并通知进度
func (a *Aggregator) Add(record models.ProductRecord) {
	a.records = append(a.records, record)
	if a.onProgress == nil {
		return
	}
	a.onProgress(Progress{
		Record:   record,
		Position: len(a.records),
		Total:    a.total,
		Stats:    models.FoldStats(a.records),
	})
}

// Records 已收集记录的副本
func (a *Aggregator) Records() []models.ProductRecord {
	out := make([]models.ProductRecord, len(a.records))
	copy(out, a.records)
	return out
}

// Stats 当前统计
func (a *Aggregator) Stats() models.CrawlStats {
	return models.FoldStats(a.records)
}

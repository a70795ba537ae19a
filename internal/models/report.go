package models

import (
	"encoding/json"
	"time"
)

// DiscoveryState 发现循环状态
type DiscoveryState string

const (
	StateInitialScan   DiscoveryState = "initial_scan"
	StateInteracting   DiscoveryState = "interacting"
	StateExtracting    DiscoveryState = "extracting"
	StateConverged     DiscoveryState = "converged"      // 连续空迭代超过容忍度
	StateTargetReached DiscoveryState = "target_reached" // 已达到最大商品数
	StateIterationCap  DiscoveryState = "iteration_cap"  // 达到迭代硬上限
	StateCancelled     DiscoveryState = "cancelled"      // 调用方取消
)

// Terminal 是否为终止状态
func (s DiscoveryState) Terminal() bool {
	switch s {
	case StateConverged, StateTargetReached, StateIterationCap, StateCancelled:
		return true
	}
	return false
}

// Diagnosis 零结果诊断类别
type Diagnosis string

const (
	DiagnosisNone             Diagnosis = ""
	DiagnosisBlocked          Diagnosis = "blocked"           // 可能被拦截/挑战
	DiagnosisNoResults        Diagnosis = "no_results"        // 查询本身无结果
	DiagnosisStructureChanged Diagnosis = "structure_changed" // 页面结构可能已变化
)

// DiscoveryOutcome 发现阶段结果
type DiscoveryOutcome struct {
	URLs       []string       `json:"urls"`
	State      DiscoveryState `json:"state"`
	Iterations int            `json:"iterations"`
	Diagnosis  Diagnosis      `json:"diagnosis,omitempty"`
}

// RunResult 单次爬取结果,返回后不再修改
type RunResult struct {
	ID        string           `json:"id"`
	Query     string           `json:"query"`
	Records   []ProductRecord  `json:"records"`
	Stats     CrawlStats       `json:"stats"`
	CSV       string           `json:"csv"`
	Filename  string           `json:"filename"`
	Discovery DiscoveryOutcome `json:"discovery"`
	StartedAt time.Time        `json:"started_at"`
	Duration  float64          `json:"duration"` // 秒
}

// NewRunID 生成运行ID
func NewRunID() string {
	return generateID()
}

// ToJSON 序列化为JSON
func (r *RunResult) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// FromJSON 从JSON反序列化
func (r *RunResult) FromJSON(data []byte) error {
	return json.Unmarshal(data, r)
}

package crawlers

import (
	"runtime"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostSnapshot 主机资源快照
// 用于零结果诊断: 区分"站点问题"和"本机资源不足导致浏览器异常"
type HostSnapshot struct {
	TakenAt         time.Time `json:"taken_at"`
	TotalMemory     uint64    `json:"total_memory"`     // 系统总内存(字节)
	AvailableMemory uint64    `json:"available_memory"` // 系统可用内存(字节)
	UsedPercent     float64   `json:"used_percent"`     // 系统内存使用率
	ProcessAlloc    uint64    `json:"process_alloc"`    // 本进程已分配内存(字节)
	CPUPercent      float64   `json:"cpu_percent"`      // 所有核心平均使用率
	NumCPU          int       `json:"num_cpu"`
	Goroutines      int       `json:"goroutines"`
	MemoryPressure  string    `json:"memory_pressure"` // normal / warning / critical / emergency
}

// HostMonitor 主机资源采样器
type HostMonitor struct {
	// CPU采样窗口
	cpuSample time.Duration
}

// NewHostMonitor 创建采样器
func NewHostMonitor() *HostMonitor {
	return &HostMonitor{cpuSample: 100 * time.Millisecond}
}

// Snapshot 采集一次快照,单项失败时该项留空
func (m *HostMonitor) Snapshot() HostSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	snap := HostSnapshot{
		TakenAt:      time.Now(),
		ProcessAlloc: memStats.Alloc,
		NumCPU:       runtime.NumCPU(),
		Goroutines:   runtime.NumGoroutine(),
	}

	if vm, err := mem.VirtualMemory(); err != nil {
		log.Warn().Err(err).Msg("获取系统内存失败")
	} else {
		snap.TotalMemory = vm.Total
		snap.AvailableMemory = vm.Available
		snap.UsedPercent = vm.UsedPercent
	}

	// perCPU=false 返回所有CPU的平均使用率
	if percentages, err := cpu.Percent(m.cpuSample, false); err != nil {
		log.Warn().Err(err).Msg("获取CPU使用率失败")
	} else if len(percentages) > 0 {
		snap.CPUPercent = percentages[0]
	}

	snap.MemoryPressure = memoryPressure(snap.TotalMemory, snap.AvailableMemory)
	return snap
}

// memoryPressure 按可用内存划分压力等级
// 无法获取系统内存时视为normal
func memoryPressure(total, available uint64) string {
	if total == 0 {
		return "normal"
	}

	availableMB := available / (1024 * 1024)
	switch {
	case availableMB < 200:
		return "emergency"
	case availableMB < 300:
		return "critical"
	case availableMB < 500:
		return "warning"
	default:
		return "normal"
	}
}

// CanLaunchBrowser 启动浏览器前的资源检查
// 返回false时附带原因,调用方只记录警告,不阻止启动
func (m *HostMonitor) CanLaunchBrowser() (bool, string) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return true, ""
	}
	if pressure := memoryPressure(vm.Total, vm.Available); pressure == "emergency" || pressure == "critical" {
		return false, "可用内存不足(" + pressure + ")"
	}
	return true, ""
}

package supervisor

import (
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// PerformanceMetrics is a read-only snapshot of the child process.
type PerformanceMetrics struct {
	State       string        `json:"state"`
	PID         int           `json:"pid,omitempty"`
	CPUPercent  float64       `json:"cpu_percent"`
	MemoryBytes uint64        `json:"memory_bytes"`
	MemoryMB    float64       `json:"memory_mb"`
	Threads     int32         `json:"threads"`
	Uptime      time.Duration `json:"uptime"`
}

// GetPerformanceMetrics samples the child via gopsutil. When no child is
// alive the snapshot carries only the state.
func (s *Supervisor) GetPerformanceMetrics() PerformanceMetrics {
	m := PerformanceMetrics{State: s.State().String()}
	if !s.IsAlive() {
		return m
	}
	pid := s.PID()
	if pid == 0 {
		return m
	}
	m.PID = pid
	m.Uptime = s.Uptime()

	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return m
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		m.CPUPercent = cpu
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		m.MemoryBytes = mem.RSS
		m.MemoryMB = float64(mem.RSS) / (1024 * 1024)
	}
	if threads, err := proc.NumThreads(); err == nil {
		m.Threads = threads
	}
	return m
}

package stats

import (
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
)

// Diagnostics is the process-level enrichment added to each progress
// line: resident memory and CPU load, sourced from gopsutil rather than
// reimplemented against /proc by hand.
type Diagnostics struct {
	RSSBytes   uint64
	CPUPercent float64
}

// CollectDiagnostics samples this process's memory and a short CPU
// window. Errors from gopsutil are swallowed and reported as zero
// values — a progress line missing its resource enrichment is not worth
// aborting a run over.
func CollectDiagnostics() Diagnostics {
	var d Diagnostics

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mi, err := proc.MemoryInfo(); err == nil && mi != nil {
			d.RSSBytes = mi.RSS
		}
	}

	if pct, err := cpu.Percent(50*time.Millisecond, false); err == nil && len(pct) > 0 {
		d.CPUPercent = pct[0]
	}

	return d
}

package metrics

import (
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/process"

	"github.com/probeum/mintpool/log"
)

const sampleInterval = 15 * time.Second

// ProcessGauges samples the running node's own resource usage on a
// background ticker, the Go counterpart of go-ethereum metrics' cpu.go
// sampler (which this tree does not vendor, since mintpool's metrics are
// read in-process rather than exported to a time-series backend).
type ProcessGauges struct {
	cpuPercent int64 // fixed-point, hundredths of a percent
	rssBytes   int64
	numGoroutine int64

	stop chan struct{}
}

func NewProcessGauges() *ProcessGauges {
	return &ProcessGauges{stop: make(chan struct{})}
}

// CPUPercent returns the most recent sampled process CPU usage, as a
// percentage (e.g. 12.34).
func (g *ProcessGauges) CPUPercent() float64 {
	return float64(atomic.LoadInt64(&g.cpuPercent)) / 100
}

// RSSBytes returns the most recent sampled resident set size.
func (g *ProcessGauges) RSSBytes() int64 { return atomic.LoadInt64(&g.rssBytes) }

// NumGoroutine returns the most recent sampled goroutine count.
func (g *ProcessGauges) NumGoroutine() int64 { return atomic.LoadInt64(&g.numGoroutine) }

// Run samples process resource usage every sampleInterval until the
// stop channel is closed via Close.
func (g *ProcessGauges) Run() {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn("metrics: could not open self process handle", "err", err)
		return
	}

	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-g.stop:
			return
		case <-ticker.C:
			g.sample(proc)
		}
	}
}

func (g *ProcessGauges) sample(proc *process.Process) {
	if pct, err := proc.CPUPercent(); err == nil {
		atomic.StoreInt64(&g.cpuPercent, int64(pct*100))
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		atomic.StoreInt64(&g.rssBytes, int64(mem.RSS))
	}
	atomic.StoreInt64(&g.numGoroutine, int64(runtime.NumGoroutine()))
}

func (g *ProcessGauges) Close() { close(g.stop) }

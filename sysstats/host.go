package sysstats

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/procfs"
)

// Stats is one host sample. Rates and CPU utilisation cover the interval
// since the previous sample (since boot for the first one).
type Stats struct {
	CPUPercent    float64
	MemoryPercent float64
	NetRxBytes    uint64
	NetTxBytes    uint64
	RxBytesPerSec float64
	TxBytesPerSec float64
	Timestamp     time.Time
}

type cpuTimes struct {
	busy  float64
	total float64
}

// Monitor samples host CPU, memory and network counters from procfs
type Monitor struct {
	fs       procfs.FS
	hostType string

	lastCPU cpuTimes
	lastRx  uint64
	lastTx  uint64
	lastAt  time.Time
}

// NewMonitor reads from the proc filesystem at mountPoint, or the default
// mount point when empty
func NewMonitor(mountPoint string) (*Monitor, error) {
	if mountPoint == "" {
		mountPoint = procfs.DefaultMountPoint
	}
	fs, err := procfs.NewFS(mountPoint)
	if err != nil {
		return nil, fmt.Errorf("failed to open procfs at %s: %w", mountPoint, err)
	}
	return &Monitor{fs: fs, hostType: detectHostType()}, nil
}

// Sample collects current system statistics
func (m *Monitor) Sample() (Stats, error) {
	now := time.Now()
	s := Stats{Timestamp: now}

	stat, err := m.fs.Stat()
	if err != nil {
		return s, fmt.Errorf("failed to get CPU utilization: %w", err)
	}
	c := stat.CPUTotal
	idle := c.Idle + c.Iowait
	cur := cpuTimes{
		busy:  c.User + c.Nice + c.System + c.IRQ + c.SoftIRQ + c.Steal,
		total: c.User + c.Nice + c.System + c.IRQ + c.SoftIRQ + c.Steal + idle,
	}
	if dt := cur.total - m.lastCPU.total; dt > 0 {
		s.CPUPercent = (cur.busy - m.lastCPU.busy) / dt * 100
	}

	mem, err := m.fs.Meminfo()
	if err != nil {
		return s, fmt.Errorf("failed to get memory usage: %w", err)
	}
	if mem.MemTotal != nil && mem.MemAvailable != nil && *mem.MemTotal > 0 {
		s.MemoryPercent = float64(*mem.MemTotal-*mem.MemAvailable) / float64(*mem.MemTotal) * 100
	}

	dev, err := m.fs.NetDev()
	if err != nil {
		return s, fmt.Errorf("failed to get network stats: %w", err)
	}
	total := dev.Total()
	s.NetRxBytes, s.NetTxBytes = total.RxBytes, total.TxBytes
	if !m.lastAt.IsZero() {
		if secs := now.Sub(m.lastAt).Seconds(); secs > 0 {
			s.RxBytesPerSec = float64(s.NetRxBytes-m.lastRx) / secs
			s.TxBytesPerSec = float64(s.NetTxBytes-m.lastTx) / secs
		}
	}

	m.lastCPU, m.lastRx, m.lastTx, m.lastAt = cur, s.NetRxBytes, s.NetTxBytes, now
	return s, nil
}

// Run samples every interval until ctx is done and hands each sample to fn.
// Sampling errors end the loop.
func (m *Monitor) Run(ctx context.Context, interval time.Duration, fn func(Stats)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s, err := m.Sample()
			if err != nil {
				return err
			}
			fn(s)
		case <-ctx.Done():
			return nil
		}
	}
}

// HostType returns the detected machine type
func (m *Monitor) HostType() string {
	return m.hostType
}

func detectHostType() string {
	if t := os.Getenv("EC2_INSTANCE_TYPE"); t != "" {
		return t
	}
	if data, err := os.ReadFile("/sys/devices/virtual/dmi/id/product_name"); err == nil && len(data) > 0 {
		return string(trimNewline(data))
	}
	if name, err := os.Hostname(); err == nil {
		return name
	}
	return "unknown"
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == ' ') {
		b = b[:len(b)-1]
	}
	return b
}

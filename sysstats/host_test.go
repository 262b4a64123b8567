package sysstats

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func writeProc(t *testing.T, dir, user, idle, rx, tx string) {
	t.Helper()
	files := map[string]string{
		"stat": "cpu  " + user + " 0 0 " + idle + " 0 0 0 0 0 0\n" +
			"cpu0 " + user + " 0 0 " + idle + " 0 0 0 0 0 0\n",
		"meminfo": "MemTotal:       1000 kB\nMemFree:         100 kB\nMemAvailable:    250 kB\n",
		"net/dev": "Inter-|   Receive                                                |  Transmit\n" +
			" face |bytes    packets errs drop fifo frame compressed multicast|bytes    packets errs drop fifo colls carrier compressed\n" +
			"  eth0: " + rx + " 1 0 0 0 0 0 0 " + tx + " 1 0 0 0 0 0 0\n",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSample(t *testing.T) {
	t.Setenv("EC2_INSTANCE_TYPE", "c5n.large")
	dir := t.TempDir()
	writeProc(t, dir, "100", "300", "1000", "2000")

	m, err := NewMonitor(dir)
	if err != nil {
		t.Fatal(err)
	}
	if m.HostType() != "c5n.large" {
		t.Errorf("host type = %q", m.HostType())
	}
	s, err := m.Sample()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(s.CPUPercent-25) > 1e-6 {
		t.Errorf("cpu = %v, want 25", s.CPUPercent)
	}
	if math.Abs(s.MemoryPercent-75) > 1e-6 {
		t.Errorf("memory = %v, want 75", s.MemoryPercent)
	}
	if s.NetRxBytes != 1000 || s.NetTxBytes != 2000 {
		t.Errorf("net = %d/%d", s.NetRxBytes, s.NetTxBytes)
	}

	// second sample only sees the delta: 100 busy of 200 ticks
	writeProc(t, dir, "200", "400", "3000", "2000")
	s, err = m.Sample()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(s.CPUPercent-50) > 1e-6 {
		t.Errorf("cpu delta = %v, want 50", s.CPUPercent)
	}
	if s.RxBytesPerSec <= 0 || s.TxBytesPerSec != 0 {
		t.Errorf("rates = %v/%v", s.RxBytesPerSec, s.TxBytesPerSec)
	}
}

func TestMissingProc(t *testing.T) {
	m, err := NewMonitor(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Sample(); err == nil {
		t.Error("sampling an empty proc tree must fail")
	}
}

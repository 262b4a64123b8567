package visualisation

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kvbench/storage"
)

func TestDashboardQueriesUseExportedMetrics(t *testing.T) {
	d := CreateDashboard()
	exported := []string{
		storage.MetricLatency, storage.MetricOps, storage.MetricErrors, storage.MetricThreads,
		storage.MetricPhaseIOPS, storage.MetricCPU, storage.MetricMemory, storage.MetricNetworkRate,
	}
	for _, name := range exported {
		used := false
		for _, p := range d.Dashboard.Panels {
			for _, target := range p.Targets {
				if strings.Contains(target.Expr, name) {
					used = true
				}
			}
		}
		if !used {
			t.Errorf("no panel queries %s", name)
		}
	}

	ids := make(map[int]bool)
	for _, p := range d.Dashboard.Panels {
		if ids[p.ID] {
			t.Errorf("duplicate panel id %d", p.ID)
		}
		ids[p.ID] = true
		for i, target := range p.Targets {
			if target.RefID != string(rune('A'+i)) {
				t.Errorf("panel %q target %d refId = %q", p.Title, i, target.RefID)
			}
		}
	}
}

func TestSaveDashboard(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grafana", "kvbench.json")
	if err := SaveDashboard(CreateDashboard(), path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var back GrafanaDashboard
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.Dashboard.Title != "kvbench" || len(back.Dashboard.Templating.List) != 1 {
		t.Errorf("dashboard = %+v", back.Dashboard)
	}
}

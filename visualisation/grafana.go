package visualisation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"kvbench/storage"
)

// GrafanaDashboard is the import envelope accepted by the Grafana HTTP API
type GrafanaDashboard struct {
	Dashboard DashboardConfig `json:"dashboard"`
	FolderID  int             `json:"folderId"`
	Overwrite bool            `json:"overwrite"`
}

// DashboardConfig is the dashboard model
type DashboardConfig struct {
	ID            interface{} `json:"id"`
	Title         string      `json:"title"`
	Tags          []string    `json:"tags"`
	Timezone      string      `json:"timezone"`
	Panels        []Panel     `json:"panels"`
	Time          TimeRange   `json:"time"`
	Timepicker    Timepicker  `json:"timepicker"`
	Templating    Templating  `json:"templating"`
	Refresh       string      `json:"refresh"`
	SchemaVersion int         `json:"schemaVersion"`
	Version       int         `json:"version"`
}

// Panel is a single visualisation
type Panel struct {
	ID          int         `json:"id"`
	Title       string      `json:"title"`
	Type        string      `json:"type"`
	GridPos     GridPos     `json:"gridPos"`
	Targets     []Target    `json:"targets"`
	FieldConfig FieldConfig `json:"fieldConfig"`
	Options     interface{} `json:"options,omitempty"`
}

// GridPos places a panel on the 24-column grid
type GridPos struct {
	H int `json:"h"`
	W int `json:"w"`
	X int `json:"x"`
	Y int `json:"y"`
}

// Target is one PromQL query
type Target struct {
	Expr         string `json:"expr"`
	LegendFormat string `json:"legendFormat,omitempty"`
	RefID        string `json:"refId"`
}

type FieldConfig struct {
	Defaults Defaults `json:"defaults"`
}

type Defaults struct {
	Color      Color      `json:"color"`
	Custom     Custom     `json:"custom"`
	Thresholds Thresholds `json:"thresholds"`
	Unit       string     `json:"unit"`
}

type Color struct {
	Mode string `json:"mode"`
}

type Custom struct {
	DrawStyle         string `json:"drawStyle"`
	FillOpacity       int    `json:"fillOpacity"`
	LineInterpolation string `json:"lineInterpolation"`
	LineWidth         int    `json:"lineWidth"`
	ShowPoints        string `json:"showPoints"`
}

type Thresholds struct {
	Mode  string          `json:"mode"`
	Steps []ThresholdStep `json:"steps"`
}

type ThresholdStep struct {
	Color string   `json:"color"`
	Value *float64 `json:"value"`
}

type TimeRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type Timepicker struct {
	RefreshIntervals []string `json:"refresh_intervals"`
}

type Templating struct {
	List []Variable `json:"list"`
}

// Variable is a query-backed dashboard variable
type Variable struct {
	Name       string `json:"name"`
	Label      string `json:"label"`
	Type       string `json:"type"`
	Query      string `json:"query"`
	Refresh    int    `json:"refresh"`
	IncludeAll bool   `json:"includeAll"`
	Multi      bool   `json:"multi"`
}

const workloadFilter = `workload=~"$workload"`

func threshold(v float64) *float64 { return &v }

func timeseries(id int, title, unit string, pos GridPos, targets ...Target) Panel {
	for i := range targets {
		targets[i].RefID = string(rune('A' + i))
	}
	return Panel{
		ID:      id,
		Title:   title,
		Type:    "timeseries",
		GridPos: pos,
		Targets: targets,
		FieldConfig: FieldConfig{Defaults: Defaults{
			Color: Color{Mode: "palette-classic"},
			Custom: Custom{
				DrawStyle:         "line",
				FillOpacity:       10,
				LineInterpolation: "linear",
				LineWidth:         1,
				ShowPoints:        "never",
			},
			Thresholds: Thresholds{Mode: "absolute", Steps: []ThresholdStep{{Color: "green"}}},
			Unit:       unit,
		}},
	}
}

func stat(id int, title, unit string, pos GridPos, target Target, warn, crit float64) Panel {
	p := timeseries(id, title, unit, pos, target)
	p.Type = "stat"
	p.FieldConfig.Defaults.Thresholds.Steps = []ThresholdStep{
		{Color: "green"},
		{Color: "yellow", Value: threshold(warn)},
		{Color: "red", Value: threshold(crit)},
	}
	p.Options = map[string]interface{}{
		"colorMode": "value",
		"graphMode": "area",
		"reduceOptions": map[string]interface{}{
			"calcs":  []string{"lastNotNull"},
			"fields": "",
			"values": false,
		},
	}
	return p
}

func latencyQuantile(q string) Target {
	return Target{
		Expr:         fmt.Sprintf(`histogram_quantile(%s, sum by (op, le) (rate(%s_bucket{%s}[1m])))`, q, storage.MetricLatency, workloadFilter),
		LegendFormat: "{{op}} p" + q[2:],
	}
}

// CreateDashboard builds the dashboard for the metrics exported during a run
func CreateDashboard() *GrafanaDashboard {
	panels := []Panel{
		timeseries(1, "Operations per second", "ops", GridPos{H: 8, W: 12, X: 0, Y: 0},
			Target{
				Expr:         fmt.Sprintf(`sum by (op) (rate(%s{%s, status="ok"}[1m]))`, storage.MetricOps, workloadFilter),
				LegendFormat: "{{op}}",
			}),
		timeseries(2, "Latency", "s", GridPos{H: 8, W: 12, X: 12, Y: 0},
			latencyQuantile("0.50"),
			latencyQuantile("0.99"),
			latencyQuantile("0.999"),
		),
		timeseries(3, "Errors per second", "ops", GridPos{H: 8, W: 12, X: 0, Y: 8},
			Target{
				Expr:         fmt.Sprintf(`sum by (op) (rate(%s{%s}[1m]))`, storage.MetricErrors, workloadFilter),
				LegendFormat: "{{op}}",
			}),
		timeseries(4, "Phase IOPS", "ops", GridPos{H: 8, W: 12, X: 12, Y: 8},
			Target{
				Expr:         fmt.Sprintf(`%s{%s}`, storage.MetricPhaseIOPS, workloadFilter),
				LegendFormat: "{{workload}}",
			}),
		stat(5, "Worker threads", "short", GridPos{H: 4, W: 6, X: 0, Y: 16},
			Target{Expr: fmt.Sprintf(`sum(%s)`, storage.MetricThreads)}, 16, 32),
		stat(6, "CPU", "percent", GridPos{H: 4, W: 6, X: 6, Y: 16},
			Target{Expr: storage.MetricCPU}, 70, 90),
		stat(7, "Memory", "percent", GridPos{H: 4, W: 6, X: 12, Y: 16},
			Target{Expr: storage.MetricMemory}, 80, 95),
		timeseries(8, "Network", "Bps", GridPos{H: 8, W: 24, X: 0, Y: 20},
			Target{Expr: storage.MetricNetworkRate, LegendFormat: "{{direction}}"}),
	}

	return &GrafanaDashboard{
		Overwrite: true,
		Dashboard: DashboardConfig{
			Title:         "kvbench",
			Tags:          []string{"kvbench", "ycsb", "benchmark"},
			Timezone:      "browser",
			SchemaVersion: 30,
			Version:       1,
			Refresh:       "10s",
			Time:          TimeRange{From: "now-1h", To: "now"},
			Timepicker: Timepicker{
				RefreshIntervals: []string{"5s", "10s", "30s", "1m", "5m", "15m", "30m", "1h"},
			},
			Templating: Templating{List: []Variable{{
				Name:       "workload",
				Label:      "Workload",
				Type:       "query",
				Query:      fmt.Sprintf("label_values(%s, workload)", storage.MetricOps),
				Refresh:    2,
				IncludeAll: true,
				Multi:      true,
			}}},
			Panels: panels,
		},
	}
}

// SaveDashboard writes the dashboard as indented JSON
func SaveDashboard(dashboard *GrafanaDashboard, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	data, err := json.MarshalIndent(dashboard, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal dashboard: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write dashboard file: %w", err)
	}
	return nil
}

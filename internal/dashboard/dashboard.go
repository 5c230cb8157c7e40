package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/torosent/rulefire/internal/metrics"
	"github.com/torosent/rulefire/internal/runner"
)

const (
	maxLogRows     = 200
	maxHistory     = 100
	maxStatusRows  = 10
	updateInterval = 500 * time.Millisecond
)

// RunConfig holds run parameters for display.
type RunConfig struct {
	Target     string        // Full trigger URL
	BatchSize  int           // Items per batch
	Pause      time.Duration // Pause between batches
	Delay      time.Duration // Delay between items
	Rate       float64       // Items per second (0 = unlimited)
	Timeout    time.Duration // Request timeout
	Strict     bool          // Only 2xx counts as success
	ConfigFile string        // Path to config file if used
}

// Dashboard renders a live terminal UI for a trigger run. It implements
// runner.Observer so the coordinator can feed it events directly.
type Dashboard struct {
	runner.NopObserver

	collector    *metrics.Collector
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	// Widgets
	grid           *ui.Grid
	progressGauge  *widgets.Gauge
	latencySparkle *widgets.SparklineGroup
	summaryPara    *widgets.Paragraph
	metricsPara    *widgets.Paragraph
	statusList     *widgets.List
	logList        *widgets.List

	latencyHistory []float64
	logLines       []string
	info           runner.RunInfo
	counters       runner.Counters
	finished       bool
	startTime      time.Time
	runConfig      RunConfig
}

// New creates a new Dashboard and takes over the terminal.
func New(collector *metrics.Collector, cfg RunConfig, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}
	d := newDashboard(collector, cfg, shutdownFunc)
	d.setupGrid()
	return d, nil
}

func newDashboard(collector *metrics.Collector, cfg RunConfig, shutdownFunc func()) *Dashboard {
	if collector == nil {
		collector = metrics.NewCollector()
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dashboard{
		collector:      collector,
		ctx:            ctx,
		cancel:         cancel,
		shutdownFunc:   shutdownFunc,
		latencyHistory: make([]float64, 0, maxHistory),
		logLines:       make([]string, 0, maxLogRows),
		startTime:      time.Now(),
		runConfig:      cfg,
	}
	d.initWidgets()
	return d
}

// initWidgets initializes all dashboard widgets.
func (d *Dashboard) initWidgets() {
	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Run"
	d.summaryPara.Text = "Loading input..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.progressGauge = widgets.NewGauge()
	d.progressGauge.Title = "Progress"
	d.progressGauge.Percent = 0
	d.progressGauge.BarColor = ui.ColorBlue
	d.progressGauge.BorderStyle.Fg = ui.ColorCyan
	d.progressGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.metricsPara = widgets.NewParagraph()
	d.metricsPara.Title = "Counters"
	d.metricsPara.Text = "Waiting for data..."
	d.metricsPara.BorderStyle.Fg = ui.ColorCyan

	sparkline := widgets.NewSparkline()
	sparkline.Title = "Latency (ms)"
	sparkline.LineColor = ui.ColorGreen
	sparkline.Data = []float64{0}
	d.latencySparkle = widgets.NewSparklineGroup(sparkline)
	d.latencySparkle.Title = "Latency"
	d.latencySparkle.BorderStyle.Fg = ui.ColorCyan

	d.statusList = widgets.NewList()
	d.statusList.Title = "Status Codes"
	d.statusList.Rows = []string{"Awaiting data"}
	d.statusList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.statusList.BorderStyle.Fg = ui.ColorCyan

	d.logList = widgets.NewList()
	d.logList.Title = "Log (q to cancel)"
	d.logList.Rows = []string{}
	d.logList.TextStyle = ui.NewStyle(ui.ColorWhite)
	d.logList.BorderStyle.Fg = ui.ColorCyan
}

// setupGrid configures the layout grid.
func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)

	d.grid.Set(
		ui.NewRow(0.14,
			ui.NewCol(1.0, d.summaryPara),
		),
		ui.NewRow(0.10,
			ui.NewCol(1.0, d.progressGauge),
		),
		ui.NewRow(0.22,
			ui.NewCol(0.35, d.metricsPara),
			ui.NewCol(0.40, d.latencySparkle),
			ui.NewCol(0.25, d.statusList),
		),
		ui.NewRow(0.54,
			ui.NewCol(1.0, d.logList),
		),
	)
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and restores the terminal.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	ui.Close()
	// Give terminal time to restore
	time.Sleep(100 * time.Millisecond)
}

func (d *Dashboard) OnStart(info runner.RunInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.info = info
	d.counters = runner.Counters{Total: info.Total}
	if !info.StartedAt.IsZero() {
		d.startTime = info.StartedAt
	}
}

func (d *Dashboard) OnLog(line string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logLines = appendLog(d.logLines, line, maxLogRows)
}

func (d *Dashboard) OnProgress(c runner.Counters) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.counters = c
}

func (d *Dashboard) OnComplete(runner.Summary) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.finished = true
}

func (d *Dashboard) OnError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logLines = appendLog(d.logLines, "[error] "+err.Error(), maxLogRows)
	d.finished = true
}

// run is the main dashboard update loop.
func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(updateInterval)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()

	d.update()
	d.render()

	for {
		select {
		case <-d.ctx.Done():
			// Drain any remaining events
			for len(uiEvents) > 0 {
				<-uiEvents
			}
			return
		case e := <-uiEvents:
			select {
			case <-d.ctx.Done():
				return
			default:
			}

			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
				// Do not return here; wait for Stop() to cancel context
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.mu.Lock()
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				d.mu.Unlock()
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.update()
			d.render()
		}
	}
}

// update refreshes all widget data from run events and the collector.
func (d *Dashboard) update() {
	d.mu.Lock()
	defer d.mu.Unlock()

	elapsed := time.Since(d.startTime)
	stats := d.collector.Stats(elapsed)
	c := d.counters

	if stats.MeanLatency > 0 {
		d.latencyHistory = append(d.latencyHistory, stats.MeanLatencyMs)
		if len(d.latencyHistory) > maxHistory {
			d.latencyHistory = d.latencyHistory[1:]
		}
		d.latencySparkle.Sparklines[0].Data = d.latencyHistory
		d.latencySparkle.Title = fmt.Sprintf(
			"Latency | Mean: %.1fms | P99: %.1fms",
			stats.MeanLatencyMs,
			stats.P99LatencyMs,
		)
	}

	d.progressGauge.Percent = percent(c.Done, c.Total)
	d.progressGauge.Label = fmt.Sprintf("%d/%d", c.Done, c.Total)
	if d.finished {
		d.progressGauge.BarColor = ui.ColorGreen
	}

	state := "running"
	if d.finished {
		state = "finished"
	}
	d.summaryPara.Text = fmt.Sprintf(
		"Run: %s (%s)\nTarget: %s\n%s\nElapsed: %s | Batches: %d",
		d.info.RunID,
		state,
		d.runConfig.Target,
		d.formatRunParams(),
		elapsed.Round(time.Second),
		d.info.Batches,
	)

	d.metricsPara.Text = fmt.Sprintf(
		"Done:       %d/%d\nSuccess:    %d\nFailed:     %d\nRate:       %.2f/s\nLog:        %s",
		c.Done,
		c.Total,
		c.Succeeded,
		c.Failed,
		stats.RequestsPerSec,
		d.info.LogFile,
	)

	d.statusList.Rows = formatStatusListRows(stats.StatusCodes)

	d.logList.Rows = d.logLines
	if n := len(d.logLines); n > 0 {
		d.logList.SelectedRow = n - 1
	}
}

// render draws all widgets to the screen.
func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

func appendLog(lines []string, line string, limit int) []string {
	lines = append(lines, line)
	if len(lines) > limit {
		lines = append(lines[:0], lines[len(lines)-limit:]...)
	}
	return lines
}

func percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	p := done * 100 / total
	if p > 100 {
		p = 100
	}
	return p
}

func formatStatusListRows(codes map[string]int) []string {
	rows := metrics.FlattenStatusCodes(codes)
	if len(rows) == 0 {
		return []string{"[No responses yet](fg:green)"}
	}
	if len(rows) > maxStatusRows {
		rows = rows[:maxStatusRows]
	}
	formatted := make([]string, 0, len(rows))
	for _, row := range rows {
		color := "green"
		if !strings.HasPrefix(row.Code, "2") {
			color = "red"
		}
		formatted = append(formatted, fmt.Sprintf("[%s](fg:%s) %d", row.Code, color, row.Count))
	}
	return formatted
}

// formatRunParams formats the run configuration for display.
func (d *Dashboard) formatRunParams() string {
	var parts []string

	if d.runConfig.BatchSize > 0 {
		parts = append(parts, fmt.Sprintf("Batch: %d", d.runConfig.BatchSize))
	}

	parts = append(parts, fmt.Sprintf("Pause: %s", d.runConfig.Pause))

	if d.runConfig.Delay > 0 {
		parts = append(parts, fmt.Sprintf("Delay: %s", d.runConfig.Delay))
	}

	if d.runConfig.Rate > 0 {
		parts = append(parts, fmt.Sprintf("Rate: %g/s", d.runConfig.Rate))
	} else {
		parts = append(parts, "Rate: unlimited")
	}

	if d.runConfig.Timeout > 0 {
		parts = append(parts, fmt.Sprintf("Timeout: %s", d.runConfig.Timeout))
	}

	if d.runConfig.Strict {
		parts = append(parts, "Strict 2xx")
	}

	// Config file (only show if used)
	if d.runConfig.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", d.runConfig.ConfigFile))
	}

	return strings.Join(parts, " | ")
}

package runner

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/torosent/rulefire/internal/feeder"
)

// ErrRunInProgress is returned when Run is called while another run is
// active on the same Runner.
var ErrRunInProgress = errors.New("a run is already in progress")

// Source yields the work items of one run. It is invoked exactly once per run.
type Source interface {
	Load() ([]feeder.WorkItem, error)
}

// StaticSource serves an in-memory item list.
type StaticSource []feeder.WorkItem

func (s StaticSource) Load() ([]feeder.WorkItem, error) {
	return append([]feeder.WorkItem(nil), s...), nil
}

// RunConfig is the immutable input of one run.
type RunConfig struct {
	Source              Source
	Credential          string
	BatchSize           int
	PauseBetweenBatches time.Duration
	DelayBetweenItems   time.Duration
}

// ConfigError lists the problems that keep a RunConfig from starting.
type ConfigError struct {
	Issues []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid run config: %s", strings.Join(e.Issues, "; "))
}

// Validate rejects configurations that must not start.
func (c RunConfig) Validate() error {
	var issues []string
	if c.Source == nil {
		issues = append(issues, "source is required")
	}
	if c.BatchSize < 1 {
		issues = append(issues, "batch size must be >= 1")
	}
	if c.PauseBetweenBatches < 0 {
		issues = append(issues, "pause between batches must be >= 0")
	}
	if c.DelayBetweenItems < 0 {
		issues = append(issues, "delay between items must be >= 0")
	}
	if len(issues) > 0 {
		return &ConfigError{Issues: issues}
	}
	return nil
}

// Outcome is the classification of one dispatched item. Build it with
// Succeeded or Failed.
type Outcome struct {
	Success    bool
	StatusCode int // 0 when no response was received
	Reason     string
	Message    string // optional server supplied message
	Latency    time.Duration
}

// Succeeded reports a call that completed with the given status.
func Succeeded(statusCode int) Outcome {
	return Outcome{Success: true, StatusCode: statusCode}
}

// Failed reports a call that did not complete, or was rejected by policy.
func Failed(statusCode int, reason string) Outcome {
	return Outcome{StatusCode: statusCode, Reason: reason}
}

// Status is the structured log value: "success" or "failed".
func (o Outcome) Status() string {
	if o.Success {
		return StatusSuccess
	}
	return StatusFailed
}

// StatusLabel renders the status code, or ERR when there was none.
func (o Outcome) StatusLabel() string {
	if o.StatusCode == 0 {
		return "ERR"
	}
	return strconv.Itoa(o.StatusCode)
}

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Counters is the progress of the active run.
type Counters struct {
	Done      int `json:"done"`
	Total     int `json:"total"`
	Succeeded int `json:"success"`
	Failed    int `json:"failed"`
}

// RunInfo is announced once a run starts dispatching.
type RunInfo struct {
	RunID     string
	Total     int
	Batches   int
	LogFile   string
	CSVFile   string
	StartedAt time.Time
}

// Summary is the terminal report of a run.
type Summary struct {
	RunID     string        `json:"run_id"`
	Total     int           `json:"total"`
	Succeeded int           `json:"success"`
	Failed    int           `json:"failed"`
	Cancelled bool          `json:"cancelled,omitempty"`
	LogFile   string        `json:"log_file"`
	CSVFile   string        `json:"csv_file"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"-"`
}

// State is the lifecycle position of a Runner.
type State int

const (
	StateIdle State = iota
	StateParsing
	StateDispatching
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateParsing:
		return "parsing"
	case StateDispatching:
		return "dispatching"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

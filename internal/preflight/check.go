package preflight

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/markstash/markstash/internal/config"
)

// Status is the outcome of a single check.
type Status int

const (
	StatusPass Status = iota
	StatusWarn
	StatusFail
)

// String returns the string representation of a Status.
func (s Status) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// Result holds the outcome of a single check.
type Result struct {
	Name     string `json:"name"`
	Status   Status `json:"status"`
	Message  string `json:"message"`
	Required bool   `json:"required"`
}

// Critical reports whether this is a required check that failed.
func (r Result) Critical() bool {
	return r.Required && r.Status == StatusFail
}

// Checker runs installation health checks against a configuration.
type Checker struct {
	cfg *config.Config
}

// New creates a Checker for the given configuration.
func New(cfg *config.Config) *Checker {
	return &Checker{cfg: cfg}
}

// RunAll runs every check and returns the results in display order.
func (c *Checker) RunAll(ctx context.Context) []Result {
	results := []Result{
		c.CheckDataDir(),
		c.CheckDiskSpace(),
		c.CheckDatabase(ctx),
		c.CheckVectorSnapshot(),
	}
	results = append(results, c.CheckEmbedder(ctx))
	return results
}

// HasCriticalFailures reports whether any required check failed.
func HasCriticalFailures(results []Result) bool {
	for _, r := range results {
		if r.Critical() {
			return true
		}
	}
	return false
}

// CheckDataDir verifies the data directory exists (or can be created) and
// is writable.
func (c *Checker) CheckDataDir() Result {
	result := Result{Name: "data_dir", Required: true}

	dir := c.cfg.Paths.DataDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create %s: %v", dir, err)
		return result
	}

	probe := filepath.Join(dir, ".doctor-probe")
	f, err := os.Create(probe)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("not writable: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(probe)

	result.Status = StatusPass
	result.Message = dir
	return result
}

// CheckVectorSnapshot reports whether a vector index snapshot is present.
// A missing snapshot is only a warning; the worker rebuilds the index from
// the database on startup.
func (c *Checker) CheckVectorSnapshot() Result {
	result := Result{Name: "vector_snapshot", Required: false}

	path := c.cfg.VectorIndexPath()
	info, err := os.Stat(path)
	if err != nil {
		result.Status = StatusWarn
		result.Message = "no snapshot yet (rebuilt from the database on worker start)"
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (%s)", path, formatBytes(uint64(info.Size())))
	return result
}

package discovery

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// StageMetrics measures one pipeline stage.
type StageMetrics struct {
	Name     string
	In       int
	Out      int
	APICalls int
	Errors   int
	Duration time.Duration
}

// Reduction is the percentage of candidates the stage removed.
func (m StageMetrics) Reduction() float64 {
	if m.In == 0 {
		return 0
	}
	return float64(m.In-m.Out) / float64(m.In) * 100
}

// Throughput is candidates processed per second.
func (m StageMetrics) Throughput() float64 {
	secs := m.Duration.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(m.In) / secs
}

// PipelineMetrics aggregates a full run over one partition.
type PipelineMetrics struct {
	RunID     string
	Partition string

	Fetch   StageMetrics
	Filter  StageMetrics
	Verify  StageMetrics
	Enrich  StageMetrics
	Persist StageMetrics
}

func (p *PipelineMetrics) stages() []StageMetrics {
	return []StageMetrics{p.Fetch, p.Filter, p.Verify, p.Enrich, p.Persist}
}

// TotalCalls is the API call count across all stages.
func (p *PipelineMetrics) TotalCalls() int {
	n := 0
	for _, s := range p.stages() {
		n += s.APICalls
	}
	return n
}

// TotalDuration is the wall time across all stages.
func (p *PipelineMetrics) TotalDuration() time.Duration {
	var d time.Duration
	for _, s := range p.stages() {
		d += s.Duration
	}
	return d
}

// TotalErrors sums per-stage error counts.
func (p *PipelineMetrics) TotalErrors() int {
	n := 0
	for _, s := range p.stages() {
		n += s.Errors
	}
	return n
}

// Efficiency is final results per API call, the number the progressive
// filtering exists to maximize.
func (p *PipelineMetrics) Efficiency() float64 {
	calls := p.TotalCalls()
	if calls == 0 {
		return 0
	}
	return float64(p.Persist.Out) / float64(calls)
}

// Log writes a structured summary of the run.
func (p *PipelineMetrics) Log() {
	fields := []zap.Field{
		zap.String("run_id", p.RunID),
		zap.String("partition", p.Partition),
		zap.Int("total_calls", p.TotalCalls()),
		zap.Duration("total_duration", p.TotalDuration()),
		zap.Int("total_errors", p.TotalErrors()),
		zap.Float64("efficiency", p.Efficiency()),
	}
	for _, s := range p.stages() {
		fields = append(fields,
			zap.String(s.Name,
				fmt.Sprintf("in=%d out=%d calls=%d reduction=%.1f%%", s.In, s.Out, s.APICalls, s.Reduction())),
		)
	}
	zap.L().Info("discovery: run complete", fields...)
}

// Report renders a human-readable run summary for CLI output.
func (p *PipelineMetrics) Report() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s  partition %s\n", p.RunID, p.Partition)
	for _, s := range p.stages() {
		fmt.Fprintf(&b, "  %-8s in=%-6d out=%-6d calls=%-5d errs=%-3d %6.1f%% reduced  %8.1f/s\n",
			s.Name, s.In, s.Out, s.APICalls, s.Errors, s.Reduction(), s.Throughput())
	}
	fmt.Fprintf(&b, "  total    calls=%d duration=%s efficiency=%.3f results/call\n",
		p.TotalCalls(), p.TotalDuration().Round(time.Millisecond), p.Efficiency())
	return b.String()
}

package util

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DebugLevel controls how much tracing Debugf emits.
type DebugLevel int

const (
	DebugOff      DebugLevel = 0 // silent
	DebugSummary  DebugLevel = 1 // per-search stage timings
	DebugDetailed DebugLevel = 2 // per-operation detail
)

var (
	debugMu     sync.RWMutex
	debugLevel  = DebugOff
	debugWriter io.Writer = os.Stderr
)

// ParseDebugLevel accepts 0/1/2 or off/summary/detailed.
func ParseDebugLevel(s string) (DebugLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "off", "false":
		return DebugOff, nil
	case "summary", "true":
		return DebugSummary, nil
	case "detailed":
		return DebugDetailed, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > int(DebugDetailed) {
		return DebugOff, fmt.Errorf("invalid debug level %q", s)
	}
	return DebugLevel(n), nil
}

// SetDebugLevel sets the process-wide debug level.
func SetDebugLevel(level DebugLevel) {
	debugMu.Lock()
	defer debugMu.Unlock()
	debugLevel = level
}

// GetDebugLevel returns the process-wide debug level.
func GetDebugLevel() DebugLevel {
	debugMu.RLock()
	defer debugMu.RUnlock()
	return debugLevel
}

// SetDebugWriter redirects debug output.
func SetDebugWriter(w io.Writer) {
	debugMu.Lock()
	defer debugMu.Unlock()
	debugWriter = w
}

// Debugf prints a [DEBUG] line when the current level is at least minLevel.
func Debugf(minLevel DebugLevel, format string, args ...any) {
	debugMu.RLock()
	level, w := debugLevel, debugWriter
	debugMu.RUnlock()

	if level >= minLevel && minLevel > DebugOff {
		_, _ = fmt.Fprintf(w, "[DEBUG] "+format+"\n", args...)
	}
}

// Timer measures one named operation.
type Timer struct {
	name  string
	start time.Time
}

// NewTimer starts a timer.
func NewTimer(name string) *Timer {
	return &Timer{name: name, start: time.Now()}
}

// Stop returns the elapsed time.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// StopAndLog returns the elapsed time and traces it at minLevel.
func (t *Timer) StopAndLog(minLevel DebugLevel) time.Duration {
	elapsed := t.Stop()
	Debugf(minLevel, "%s: %v", t.name, elapsed)
	return elapsed
}

// TimingStats accumulates durations per pipeline stage, keeping the order
// in which stages were first seen.
type TimingStats struct {
	mu     sync.Mutex
	stages map[string]*stageStats
	order  []string
}

type stageStats struct {
	total time.Duration
	count int64
}

// NewTimingStats creates an empty collector.
func NewTimingStats() *TimingStats {
	return &TimingStats{stages: make(map[string]*stageStats)}
}

// Record adds d to stage name, counting n items.
func (s *TimingStats) Record(name string, d time.Duration, n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stages[name]
	if !ok {
		st = &stageStats{}
		s.stages[name] = st
		s.order = append(s.order, name)
	}
	st.total += d
	st.count += n
	Debugf(DebugDetailed, "%s: %d items in %v", name, n, d)
}

// Time runs fn and records its duration under name.
func (s *TimingStats) Time(name string, fn func()) {
	start := time.Now()
	fn()
	s.Record(name, time.Since(start), 1)
}

// Total returns the recorded duration of a stage.
func (s *TimingStats) Total(name string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.stages[name]; ok {
		return st.total
	}
	return 0
}

// Summary formats every stage with its share of the total.
func (s *TimingStats) Summary() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.order) == 0 {
		return ""
	}

	var all time.Duration
	for _, st := range s.stages {
		all += st.total
	}

	var b strings.Builder
	b.WriteString("stages:")
	for _, name := range s.order {
		st := s.stages[name]
		pct := 0.0
		if all > 0 {
			pct = float64(st.total) / float64(all) * 100
		}
		fmt.Fprintf(&b, " %s=%v(%d, %.0f%%)", name, st.total.Round(time.Microsecond), st.count, pct)
	}
	return b.String()
}

// Log traces the summary at DebugSummary.
func (s *TimingStats) Log() {
	if sum := s.Summary(); sum != "" {
		Debugf(DebugSummary, "%s", sum)
	}
}

// Package progress draws the single-line terminal meter for the batch
// stages of a reduction run.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// barWidth is the character width of the bar itself, excluding the
// stage label and counts.
const barWidth = 54

// throttle caps redraw frequency. Parallel workers can finish jobs far
// faster than a terminal usefully repaints.
const throttle = 100 * time.Millisecond

// Meter renders a stage's progress as an overwritten terminal line:
//
//	correct lights [######------] 42% (21/50)
//
// A completed stage gets a final 100% line and a newline, so the bars
// of consecutive stages stack. Safe for concurrent use; the pipeline
// reports progress from parallel workers.
type Meter struct {
	mu      sync.Mutex
	w       io.Writer
	enabled bool
	lastLen int
	last    time.Time
}

// New builds a meter writing to w, typically os.Stderr. The meter
// disables itself unless w is a character device: redirected output
// should not fill with carriage returns, and log lines would
// interleave with the bar on the same stream. A disabled meter is a
// no-op, so callers never need to check.
func New(w io.Writer) *Meter {
	m := &Meter{w: w}
	if f, ok := w.(*os.File); ok {
		if fi, err := f.Stat(); err == nil {
			m.enabled = fi.Mode()&os.ModeCharDevice != 0
		}
	}
	return m
}

// Enabled reports whether updates will draw anything.
func (m *Meter) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// Update redraws the bar. It has the shape of the pipeline's progress
// hook: stage name plus completed and total job counts. Redraws are
// throttled except for a stage's final update, which always lands so
// finished bars read 100%.
func (m *Meter) Update(stage string, done, total int) {
	if total <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enabled {
		return
	}

	final := done >= total
	if done > total {
		done = total
	}
	now := time.Now()
	if !final && now.Sub(m.last) < throttle {
		return
	}
	m.last = now

	filled := barWidth * done / total
	line := fmt.Sprintf("%s [%s%s] %3d%% (%d/%d)",
		stage,
		strings.Repeat("#", filled), strings.Repeat("-", barWidth-filled),
		done*100/total, done, total)

	m.print(line)
	if final {
		m.newline()
	}
}

// Clear erases a partially drawn bar, for runs that stop mid-stage.
// The next log line then starts on a clean row.
func (m *Meter) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enabled || m.lastLen == 0 {
		return
	}
	if _, err := fmt.Fprintf(m.w, "\r%s\r", strings.Repeat(" ", m.lastLen)); err != nil {
		m.enabled = false
	}
	m.lastLen = 0
}

// print overwrites the current line, padding with spaces when the new
// line is shorter than the last one. A write failure disables the
// meter for the rest of the run.
func (m *Meter) print(line string) {
	pad := 0
	if m.lastLen > len(line) {
		pad = m.lastLen - len(line)
	}
	if _, err := fmt.Fprintf(m.w, "\r%s%s", line, strings.Repeat(" ", pad)); err != nil {
		m.enabled = false
		return
	}
	m.lastLen = len(line)
}

func (m *Meter) newline() {
	if _, err := io.WriteString(m.w, "\n"); err != nil {
		m.enabled = false
	}
	m.lastLen = 0
}

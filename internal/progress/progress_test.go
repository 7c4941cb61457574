package progress

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

// testMeter builds an enabled meter around a buffer. New would disable
// it because a buffer is not a character device.
func testMeter(buf *bytes.Buffer) *Meter {
	return &Meter{w: buf, enabled: true}
}

func TestNewDisablesForNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	m := New(&buf)

	if m.Enabled() {
		t.Fatal("meter should be disabled for a non-terminal writer")
	}

	m.Update("combine darks", 1, 2)
	if buf.Len() != 0 {
		t.Fatalf("disabled meter wrote %q", buf.String())
	}
}

func TestUpdateDrawsBar(t *testing.T) {
	var buf bytes.Buffer
	m := testMeter(&buf)

	m.Update("combine darks", 27, 54)

	out := buf.String()
	if !strings.HasPrefix(out, "\rcombine darks [") {
		t.Fatalf("bar start wrong: %q", out)
	}
	if !strings.Contains(out, " 50% (27/54)") {
		t.Errorf("bar missing percent and counts: %q", out)
	}
	if got := strings.Count(out, "#"); got != 27 {
		t.Errorf("bar has %d filled cells, want 27", got)
	}
	if got := strings.Count(out, "-"); got != 27 {
		t.Errorf("bar has %d empty cells, want 27", got)
	}
	if strings.Contains(out, "\n") {
		t.Errorf("non-final update should not end the line: %q", out)
	}
}

func TestUpdateFinalEndsLine(t *testing.T) {
	var buf bytes.Buffer
	m := testMeter(&buf)

	m.Update("correct lights", 5, 5)

	out := buf.String()
	if !strings.Contains(out, "100% (5/5)") {
		t.Errorf("final update missing 100%%: %q", out)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Errorf("final update should end the line: %q", out)
	}
}

func TestUpdateThrottlesRedraws(t *testing.T) {
	var buf bytes.Buffer
	m := testMeter(&buf)

	m.Update("correct lights", 1, 100)
	first := buf.Len()
	m.Update("correct lights", 2, 100)
	if buf.Len() != first {
		t.Error("second redraw within the throttle window should be dropped")
	}

	// The final update always lands, throttle or not.
	m.Update("correct lights", 100, 100)
	if buf.Len() == first {
		t.Error("final update was throttled away")
	}
}

func TestUpdatePadsShorterLines(t *testing.T) {
	var buf bytes.Buffer
	m := testMeter(&buf)

	m.Update("a very long stage name", 50, 100)
	buf.Reset()
	m.last = m.last.Add(-throttle) // step past the throttle window

	m.Update("short", 50, 100)

	out := buf.String()
	if !strings.HasSuffix(out, " ") {
		t.Errorf("shorter line should be padded to erase the old one: %q", out)
	}
}

func TestUpdateZeroTotal(t *testing.T) {
	var buf bytes.Buffer
	m := testMeter(&buf)

	m.Update("combine flats", 0, 0)

	if buf.Len() != 0 {
		t.Fatalf("zero total should draw nothing, got %q", buf.String())
	}
}

func TestUpdateClampsOvershoot(t *testing.T) {
	var buf bytes.Buffer
	m := testMeter(&buf)

	m.Update("correct lights", 7, 5)

	out := buf.String()
	if !strings.Contains(out, "100% (5/5)") {
		t.Errorf("overshoot should clamp to the total: %q", out)
	}
}

func TestClear(t *testing.T) {
	var buf bytes.Buffer
	m := testMeter(&buf)

	m.Update("correct lights", 1, 10)
	buf.Reset()

	m.Clear()

	out := buf.String()
	if !strings.HasPrefix(out, "\r") || !strings.HasSuffix(out, "\r") {
		t.Fatalf("clear should overwrite with spaces and return: %q", out)
	}
	if strings.Trim(out, "\r ") != "" {
		t.Errorf("clear wrote more than padding: %q", out)
	}

	buf.Reset()
	m.Clear()
	if buf.Len() != 0 {
		t.Errorf("second clear should be a no-op, got %q", buf.String())
	}
}

func TestWriteFailureDisables(t *testing.T) {
	m := &Meter{w: failWriter{}, enabled: true}

	m.Update("combine darks", 1, 2)

	if m.Enabled() {
		t.Fatal("meter should disable itself after a write failure")
	}
}

type failWriter struct{}

func (failWriter) Write(p []byte) (int, error) {
	return 0, errors.New("stream closed")
}

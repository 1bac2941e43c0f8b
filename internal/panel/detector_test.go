package panel

import (
	"testing"
	"time"

	"github.com/sweeney/ventilator/internal/gpio"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

const debounce = 50 * time.Millisecond

// baselined returns a detector baselined with every button released.
func baselined(t *testing.T) *Detector {
	t.Helper()
	d := NewDetector(debounce, t0)
	d.Process(gpio.Buttons{}, t0)
	d.Process(gpio.Buttons{}, t0.Add(debounce))
	if !d.IsBaselined() {
		t.Fatal("detector should be baselined")
	}
	return d
}

func TestNewDetector(t *testing.T) {
	d := NewDetector(debounce, t0)
	if d == nil {
		t.Fatal("NewDetector returned nil")
	}
	if d.debounceDuration != debounce {
		t.Errorf("expected debounce duration %v, got %v", debounce, d.debounceDuration)
	}
	if d.IsBaselined() {
		t.Error("new detector should not be baselined")
	}
	if !d.lastHeartbeat.Equal(t0) {
		t.Errorf("expected lastHeartbeat %v, got %v", t0, d.lastHeartbeat)
	}
}

func TestBaselineResetOnChange(t *testing.T) {
	d := NewDetector(debounce, t0)

	d.Process(gpio.Buttons{Start: true}, t0)
	d.Process(gpio.Buttons{}, t0.Add(20*time.Millisecond))
	d.Process(gpio.Buttons{}, t0.Add(debounce))
	if d.IsBaselined() {
		t.Error("should not be baselined: state changed during observation")
	}

	d.Process(gpio.Buttons{}, t0.Add(20*time.Millisecond+debounce))
	if !d.IsBaselined() {
		t.Error("should be baselined after a full stable debounce period")
	}
}

func TestPressReportedAfterDebounce(t *testing.T) {
	d := baselined(t)
	now := t0.Add(time.Second)

	if presses := d.Process(gpio.Buttons{Stop: true}, now); len(presses) != 0 {
		t.Errorf("expected no press before debounce, got %v", presses)
	}
	if presses := d.Process(gpio.Buttons{Stop: true}, now.Add(debounce-time.Millisecond)); len(presses) != 0 {
		t.Errorf("expected no press before debounce, got %v", presses)
	}

	presses := d.Process(gpio.Buttons{Stop: true}, now.Add(debounce))
	if len(presses) != 1 {
		t.Fatalf("expected 1 press, got %d", len(presses))
	}
	if presses[0].Button != ButtonStop || !presses[0].Timestamp.Equal(now.Add(debounce)) {
		t.Errorf("unexpected press: %+v", presses[0])
	}

	// Holding the button does not repeat.
	if presses := d.Process(gpio.Buttons{Stop: true}, now.Add(time.Second)); len(presses) != 0 {
		t.Errorf("expected no repeat while held, got %v", presses)
	}
	// Release is not a press.
	d.Process(gpio.Buttons{}, now.Add(2*time.Second))
	if presses := d.Process(gpio.Buttons{}, now.Add(2*time.Second+debounce)); len(presses) != 0 {
		t.Errorf("expected no press on release, got %v", presses)
	}

	if got := d.Counts(); got != (PressCounts{Stop: 1}) {
		t.Errorf("unexpected counts: %+v", got)
	}
}

func TestBounceShorterThanDebounce(t *testing.T) {
	d := baselined(t)
	now := t0.Add(time.Second)

	d.Process(gpio.Buttons{Snooze: true}, now)
	d.Process(gpio.Buttons{}, now.Add(10*time.Millisecond))
	d.Process(gpio.Buttons{Snooze: true}, now.Add(20*time.Millisecond))

	// Debounce restarts at the last change.
	if presses := d.Process(gpio.Buttons{Snooze: true}, now.Add(debounce)); len(presses) != 0 {
		t.Errorf("expected no press, got %v", presses)
	}
	if presses := d.Process(gpio.Buttons{Snooze: true}, now.Add(20*time.Millisecond+debounce)); len(presses) != 1 {
		t.Errorf("expected 1 press, got %v", presses)
	}
}

func TestButtonHeldAtStartupIgnored(t *testing.T) {
	d := NewDetector(debounce, t0)
	d.Process(gpio.Buttons{Start: true}, t0)
	if presses := d.Process(gpio.Buttons{Start: true}, t0.Add(debounce)); len(presses) != 0 {
		t.Errorf("expected no press at baseline, got %v", presses)
	}
	if presses := d.Process(gpio.Buttons{Start: true}, t0.Add(time.Second)); len(presses) != 0 {
		t.Errorf("expected no press while still held, got %v", presses)
	}

	d.Process(gpio.Buttons{}, t0.Add(2*time.Second))
	d.Process(gpio.Buttons{}, t0.Add(2*time.Second+debounce))
	d.Process(gpio.Buttons{Start: true}, t0.Add(3*time.Second))
	presses := d.Process(gpio.Buttons{Start: true}, t0.Add(3*time.Second+debounce))
	if len(presses) != 1 || presses[0].Button != ButtonStart {
		t.Errorf("expected start press, got %v", presses)
	}
}

func TestSimultaneousPresses(t *testing.T) {
	d := baselined(t)
	now := t0.Add(time.Second)

	both := gpio.Buttons{Start: true, Snooze: true}
	d.Process(both, now)
	presses := d.Process(both, now.Add(debounce))
	if len(presses) != 2 {
		t.Fatalf("expected 2 presses, got %d", len(presses))
	}
	if presses[0].Button != ButtonStart || presses[1].Button != ButtonSnooze {
		t.Errorf("expected start then snooze, got %v", presses)
	}
}

func TestCheckHeartbeat(t *testing.T) {
	d := NewDetector(debounce, t0)
	interval := time.Minute

	if hb := d.CheckHeartbeat(t0.Add(2*interval), interval); hb != nil {
		t.Error("expected no heartbeat before baseline")
	}

	d.Process(gpio.Buttons{}, t0)
	d.Process(gpio.Buttons{}, t0.Add(debounce))

	if hb := d.CheckHeartbeat(t0.Add(2*interval), 0); hb != nil {
		t.Error("expected no heartbeat when disabled")
	}
	if hb := d.CheckHeartbeat(t0.Add(interval-time.Second), interval); hb != nil {
		t.Error("expected no heartbeat before interval")
	}

	d.Process(gpio.Buttons{Stop: true}, t0.Add(time.Second))
	d.Process(gpio.Buttons{Stop: true}, t0.Add(time.Second+debounce))

	hb := d.CheckHeartbeat(t0.Add(interval), interval)
	if hb == nil {
		t.Fatal("expected heartbeat at interval")
	}
	if hb.Uptime != interval {
		t.Errorf("expected uptime %v, got %v", interval, hb.Uptime)
	}
	if hb.Counts.Stop != 1 {
		t.Errorf("expected 1 stop press, got %d", hb.Counts.Stop)
	}

	if hb := d.CheckHeartbeat(t0.Add(interval+time.Second), interval); hb != nil {
		t.Error("expected interval to restart at the last heartbeat")
	}
}

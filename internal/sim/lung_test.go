package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sweeney/ventilator/internal/hal"
)

const dt = 10 * time.Millisecond

func TestClosedValvesHoldPressure(t *testing.T) {
	l := NewLung()
	l.volume = 500
	l.SetBlowerCommand(900)
	for i := 0; i < 100; i++ {
		l.Step(dt)
	}
	assert.InDelta(t, 100.0, l.Pressure(), 1e-9)
	assert.Equal(t, 0.0, l.ReadInspiratoryFlow().Value)
	assert.Equal(t, 0.0, l.ReadExpiratoryFlow().Value)
}

func TestBlowerInflates(t *testing.T) {
	l := NewLung()
	l.SetBlowerCommand(hal.DefaultBlowerSpeed)
	l.SetBlowerValveCommand(0.3)
	for i := 0; i < 10; i++ {
		l.Step(dt)
	}
	assert.Greater(t, l.ReadInspiratoryFlow().Value, 0.0)
	assert.Greater(t, l.Pressure(), 0.0)

	// The lung never exceeds the blower outlet pressure.
	for i := 0; i < 1000; i++ {
		l.Step(dt)
	}
	assert.LessOrEqual(t, l.Pressure(), hal.BlowerPressure(hal.DefaultBlowerSpeed, 0)+1e-6)
}

func TestPatientValveDeflates(t *testing.T) {
	l := NewLung()
	l.volume = 1000
	l.SetPatientValveCommand(1)
	l.Step(dt)
	assert.Greater(t, l.ReadExpiratoryFlow().Value, 0.0)
	assert.Less(t, l.Pressure(), 200.0)

	for i := 0; i < 1000; i++ {
		l.Step(dt)
	}
	assert.GreaterOrEqual(t, l.Volume(), 0.0)
	assert.Less(t, l.Pressure(), 1.0)
}

func TestLeakIsNotMeasured(t *testing.T) {
	l := NewLung()
	l.Leak = 10
	l.volume = 500
	l.Step(dt)
	assert.Less(t, l.Volume(), 500.0)
	assert.Equal(t, 0.0, l.ReadExpiratoryFlow().Value)
}

func TestPeriodicEffort(t *testing.T) {
	effort := PeriodicEffort(4*time.Second, time.Second, 50)
	assert.Equal(t, 0.0, effort(500*time.Millisecond), "no effort before the first period")
	assert.InDelta(t, 50.0, effort(4500*time.Millisecond), 1e-9)
	assert.Equal(t, 0.0, effort(6*time.Second))

	l := NewLung()
	l.volume = 500
	l.Effort = effort
	for l.elapsed < 4500*time.Millisecond {
		l.Step(dt)
	}
	assert.InDelta(t, 50.0, l.Pressure(), 1)
}

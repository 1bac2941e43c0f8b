package alarm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func newTestController() *Controller {
	return NewController(DefaultDefinitions(DefaultDebounce()), 2*time.Minute, zap.NewNop())
}

func raisedCodes(events []Event) []Code {
	var codes []Code
	for _, e := range events {
		if e.Raised {
			codes = append(codes, e.Code)
		}
	}
	return codes
}

func TestDebounceBelowCountDoesNotRaise(t *testing.T) {
	c := newTestController()
	c.SetBounds(TidalVolume, Between(200, 1000))

	for cycle := uint64(1); cycle <= 2; cycle++ {
		c.Tick(t0, cycle)
		c.ReportCycleAggregate(TidalVolume, 150)
	}
	assert.False(t, c.IsActive(LowTidalVolume))
	assert.Empty(t, c.Events())

	// back in bounds resets the count
	c.Tick(t0, 3)
	c.ReportCycleAggregate(TidalVolume, 400)
	for cycle := uint64(4); cycle <= 5; cycle++ {
		c.Tick(t0, cycle)
		c.ReportCycleAggregate(TidalVolume, 150)
	}
	assert.False(t, c.IsActive(LowTidalVolume))
}

func TestDebounceRaisesExactlyOnce(t *testing.T) {
	c := newTestController()
	c.SetBounds(TidalVolume, Between(200, 1000))

	var events []Event
	for cycle := uint64(1); cycle <= 10; cycle++ {
		c.Tick(t0.Add(time.Duration(cycle)*3*time.Second), cycle)
		c.ReportCycleAggregate(TidalVolume, 150)
		events = append(events, c.Events()...)
	}

	require.Len(t, events, 1)
	assert.Equal(t, LowTidalVolume, events[0].Code)
	assert.True(t, events[0].Raised)
	assert.Equal(t, uint64(3), events[0].Cycle)
	assert.Equal(t, 150.0, events[0].Value)
	assert.True(t, c.IsActive(LowTidalVolume))
	assert.False(t, c.IsActive(HighTidalVolume))
}

func TestSymmetricClear(t *testing.T) {
	c := newTestController()
	c.SetBounds(RespiratoryRate, Between(5, 40))
	for cycle := uint64(1); cycle <= 3; cycle++ {
		c.Tick(t0, cycle)
		c.ReportCycleAggregate(RespiratoryRate, 50)
	}
	require.True(t, c.IsActive(HighRespiratoryRate))
	c.Events()

	for cycle := uint64(4); cycle <= 5; cycle++ {
		c.Tick(t0, cycle)
		c.ReportCycleAggregate(RespiratoryRate, 20)
	}
	assert.True(t, c.IsActive(HighRespiratoryRate), "cleared before debounce count")

	c.Tick(t0, 6)
	c.ReportCycleAggregate(RespiratoryRate, 20)
	assert.False(t, c.IsActive(HighRespiratoryRate))

	events := c.Events()
	require.Len(t, events, 1)
	assert.False(t, events[0].Raised)
}

func TestCycleAggregateCountsOncePerCycle(t *testing.T) {
	c := newTestController()
	c.SetBounds(PEEP, Between(80, 120))

	c.Tick(t0, 1)
	for i := 0; i < 10; i++ {
		c.ReportCycleAggregate(PEEP, 40)
	}
	assert.False(t, c.IsActive(PEEPNotReachedMedium))

	c.Tick(t0, 2)
	c.ReportCycleAggregate(PEEP, 40)
	assert.True(t, c.IsActive(PEEPNotReachedMedium))
	assert.False(t, c.IsActive(PEEPNotReached))

	c.Tick(t0, 3)
	c.ReportCycleAggregate(PEEP, 40)
	assert.True(t, c.IsActive(PEEPNotReached))
	assert.Equal(t, []Code{PEEPNotReached, PEEPNotReachedMedium}, c.Active())
	assert.Equal(t, PriorityHigh, c.HighestPriority())
}

func TestPerTickMeasurementImmediate(t *testing.T) {
	c := newTestController()
	c.SetBounds(PeakPressure, AtMost(800))

	c.Tick(t0, 1)
	c.ReportMeasurement(PeakPressure, 799)
	assert.False(t, c.IsActive(OverPressure))

	c.ReportMeasurement(PeakPressure, 850)
	assert.True(t, c.IsActive(OverPressure))

	c.ReportMeasurement(PeakPressure, 300)
	assert.False(t, c.IsActive(OverPressure))
	assert.Len(t, c.Events(), 2)
}

func TestNoBoundsNeverTrips(t *testing.T) {
	c := newTestController()
	c.Tick(t0, 1)
	for i := 0; i < 5; i++ {
		c.ReportMeasurement(Leak, 1e6)
	}
	assert.Empty(t, c.Active())
}

func TestDisabledAlarmIgnoredAndCleared(t *testing.T) {
	c := newTestController()
	c.SetBounds(PlateauPressure, Between(160, 240))
	for cycle := uint64(1); cycle <= 3; cycle++ {
		c.Tick(t0, cycle)
		c.ReportCycleAggregate(PlateauPressure, 50)
	}
	require.True(t, c.IsActive(PlateauNotReached))
	c.Events()

	c.SetEnabled([]Code{OverPressure, LowTidalVolume})
	assert.False(t, c.IsActive(PlateauNotReached))
	assert.False(t, c.Enabled(PlateauNotReached))
	assert.Len(t, c.Events(), 2) // high and medium cleared

	for cycle := uint64(4); cycle <= 8; cycle++ {
		c.Tick(t0, cycle)
		c.ReportCycleAggregate(PlateauPressure, 50)
	}
	assert.Empty(t, c.Active())

	c.SetEnabled(nil)
	assert.True(t, c.Enabled(PlateauNotReached))
}

func TestSnoozeSilencesWithoutClearing(t *testing.T) {
	c := newTestController()
	c.SetBounds(PeakPressure, AtMost(800))
	c.Tick(t0, 1)
	c.ReportMeasurement(PeakPressure, 900)
	require.Equal(t, PriorityHigh, c.Signalling())

	c.Snooze()
	assert.True(t, c.Snoozed())
	assert.True(t, c.IsActive(OverPressure))
	assert.Equal(t, PriorityNone, c.Signalling())
	assert.Equal(t, PriorityHigh, c.HighestPriority())

	c.Tick(t0.Add(119*time.Second), 40)
	assert.True(t, c.Snoozed())

	c.Tick(t0.Add(2*time.Minute), 41)
	assert.False(t, c.Snoozed())
	assert.Equal(t, PriorityHigh, c.Signalling())
}

func TestNewAlarmEndsSnooze(t *testing.T) {
	c := newTestController()
	c.SetBounds(PeakPressure, AtMost(800))
	c.SetBounds(SensorStaleness, AtMost(50))
	c.Tick(t0, 1)
	c.ReportMeasurement(PeakPressure, 900)
	c.Snooze()

	// re-raise of an alarm that was snoozed keeps the snooze
	c.ReportMeasurement(PeakPressure, 100)
	c.ReportMeasurement(PeakPressure, 900)
	assert.True(t, c.Snoozed())

	c.ReportMeasurement(SensorStaleness, 51)
	assert.True(t, c.IsActive(SensorFault))
	assert.False(t, c.Snoozed())
}

func TestClearResetsDebounce(t *testing.T) {
	c := newTestController()
	c.SetBounds(MeanPressure, AtLeast(20))
	for cycle := uint64(1); cycle <= 2; cycle++ {
		c.Tick(t0, cycle)
		c.ReportCycleAggregate(MeanPressure, 0)
	}
	require.True(t, c.IsActive(LowPressureMedium))

	c.Clear(LowPressure, LowPressureMedium)
	assert.False(t, c.IsActive(LowPressureMedium))

	c.Tick(t0, 3)
	c.ReportCycleAggregate(MeanPressure, 0)
	assert.False(t, c.IsActive(LowPressure), "debounce should restart after Clear")
}

func TestEventString(t *testing.T) {
	e := Event{Code: OverPressure, Kind: PeakPressure, Priority: PriorityHigh, Raised: true, Value: 812}
	assert.Equal(t, "RCM-SW-18 HIGH raised (peak_pressure=812)", e.String())
}

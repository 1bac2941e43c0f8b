package cycle

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const period = 10 * time.Millisecond

func TestDefaultSettingsValid(t *testing.T) {
	s := DefaultSettings()
	require.NoError(t, s.Validate())
	assert.Equal(t, PCCMV, s.Mode)
	assert.Equal(t, 200.0, s.PlateauPressure)
	assert.Equal(t, 100.0, s.PEEP)
	assert.Equal(t, 20.0, s.CyclesPerMinute)
	assert.False(t, s.TriggerEnabled)
}

func TestComputeTimingThirtyPercentInhalation(t *testing.T) {
	s := DefaultSettings()
	s.ExpiratoryTerm = 70.0 / 3.0 // I:E = 10:23.3 -> Ti is 30% of the cycle

	tm, err := ComputeTiming(s, period)
	require.NoError(t, err)
	assert.Equal(t, 300, tm.TicksPerCycle)
	assert.Equal(t, 90, tm.TicksPerInhalation)
	assert.Equal(t, 20, tm.TicksPerPlateau)
	assert.Equal(t, 70, tm.InspiratoryFlowTicks())
}

func TestComputeTimingRejectsPlateauLongerThanInhalation(t *testing.T) {
	s := DefaultSettings()
	s.CyclesPerMinute = 35
	s.ExpiratoryTerm = 60
	s.PlateauDuration = 1000

	_, err := ComputeTiming(s, period)
	assert.ErrorIs(t, err, ErrInconsistent)
}

func TestComputeTimingRejectsBadPeriod(t *testing.T) {
	_, err := ComputeTiming(DefaultSettings(), 0)
	assert.ErrorIs(t, err, ErrInconsistent)
}

func TestPhaseAtIsForwardOnly(t *testing.T) {
	tm := Timing{TicksPerCycle: 300, TicksPerInhalation: 100, TicksPerPlateau: 20}
	last := Inhalation
	for tick := 0; tick < tm.TicksPerCycle; tick++ {
		p := tm.PhaseAt(tick)
		require.GreaterOrEqual(t, int(p), int(last), "tick %d went back from %v to %v", tick, last, p)
		last = p
	}
	assert.Equal(t, Inhalation, tm.PhaseAt(79))
	assert.Equal(t, Plateau, tm.PhaseAt(80))
	assert.Equal(t, Plateau, tm.PhaseAt(99))
	assert.Equal(t, Exhalation, tm.PhaseAt(100))
}

func TestCutsOnlyShorten(t *testing.T) {
	tm := Timing{TicksPerCycle: 300, TicksPerInhalation: 100, TicksPerPlateau: 20}

	cut := tm.CutToPlateau(40)
	assert.Equal(t, 61, cut.TicksPerInhalation)
	assert.Equal(t, Inhalation, cut.PhaseAt(40))
	assert.Equal(t, Plateau, cut.PhaseAt(41))

	late := tm.CutToPlateau(95)
	assert.Equal(t, tm, late)

	ex := tm.CutToExhalation(50)
	assert.Equal(t, 51, ex.TicksPerInhalation)
	assert.Equal(t, 0, ex.TicksPerPlateau)
	assert.Equal(t, Exhalation, ex.PhaseAt(51))

	capped := tm.CapInhalation(60)
	assert.Equal(t, 60, capped.TicksPerInhalation)
	assert.Equal(t, 20, capped.TicksPerPlateau)
}

func TestStageRejectsOutOfRange(t *testing.T) {
	cs, err := NewCommandSet(DefaultSettings(), period)
	require.NoError(t, err)

	err = cs.Stage(CyclesPerMinute, 50)
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.Equal(t, 20.0, cs.Next().CyclesPerMinute)
	assert.False(t, cs.Pending())
}

func TestStageRejectsPEEPAbovePlateau(t *testing.T) {
	cs, err := NewCommandSet(DefaultSettings(), period)
	require.NoError(t, err)

	err = cs.Stage(PEEP, 250)
	assert.ErrorIs(t, err, ErrInconsistent)

	require.NoError(t, cs.Stage(PlateauPressure, 300))
	require.NoError(t, cs.Stage(PEEP, 250))
}

func TestStageRejectsUnschedulableCombination(t *testing.T) {
	cs, err := NewCommandSet(DefaultSettings(), period)
	require.NoError(t, err)

	require.NoError(t, cs.Stage(CyclesPerMinute, 35))
	require.NoError(t, cs.Stage(ExpiratoryTerm, 60))
	err = cs.Stage(PlateauDuration, 250)
	assert.ErrorIs(t, err, ErrInconsistent)
	assert.Equal(t, 200.0, cs.Next().PlateauDuration)

	for i := 0; i < 20; i++ {
		_ = cs.Increase(PlateauDuration)
	}
	tm, err := ComputeTiming(cs.Next(), period)
	require.NoError(t, err)
	assert.Less(t, tm.TicksPerPlateau, tm.TicksPerInhalation)

	bad := cs.Next()
	bad.PlateauDuration = 1000
	assert.ErrorIs(t, cs.StageSettings(bad), ErrInconsistent)
}

func TestNewCommandSetRejectsUnschedulable(t *testing.T) {
	s := DefaultSettings()
	s.CyclesPerMinute = 35
	s.ExpiratoryTerm = 60
	s.PlateauDuration = 1000
	_, err := NewCommandSet(s, period)
	assert.ErrorIs(t, err, ErrInconsistent)
}

func TestStagedValuesWaitForPromote(t *testing.T) {
	cs, err := NewCommandSet(DefaultSettings(), period)
	require.NoError(t, err)

	require.NoError(t, cs.Stage(CyclesPerMinute, 12))
	require.NoError(t, cs.StageMode(VCAC))
	assert.Equal(t, 20.0, cs.Current().CyclesPerMinute)
	assert.Equal(t, PCCMV, cs.Current().Mode)
	assert.True(t, cs.Pending())

	s := cs.Promote()
	assert.Equal(t, 12.0, s.CyclesPerMinute)
	assert.Equal(t, VCAC, s.Mode)
	assert.Equal(t, s, cs.Current())
	assert.False(t, cs.Pending())
}

func TestIncreaseDecreaseSaturate(t *testing.T) {
	cs, err := NewCommandSet(DefaultSettings(), period)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		require.NoError(t, cs.Increase(CyclesPerMinute))
	}
	assert.Equal(t, 35.0, cs.Next().CyclesPerMinute)

	for i := 0; i < 50; i++ {
		require.NoError(t, cs.Decrease(CyclesPerMinute))
	}
	assert.Equal(t, 5.0, cs.Next().CyclesPerMinute)
}

func TestTriggerEnabledAsParam(t *testing.T) {
	cs, err := NewCommandSet(DefaultSettings(), period)
	require.NoError(t, err)

	require.NoError(t, cs.Stage(TriggerEnabled, 1))
	assert.True(t, cs.Next().TriggerEnabled)
	assert.Equal(t, 1.0, cs.Next().Get(TriggerEnabled))
}

func TestStageConcurrentWithPromote(t *testing.T) {
	cs, err := NewCommandSet(DefaultSettings(), period)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = cs.Increase(TidalVolume)
			}
		}()
	}
	for i := 0; i < 100; i++ {
		cs.Promote()
	}
	wg.Wait()
	assert.Equal(t, 2000.0, cs.Promote().TidalVolume)
}

func TestParseModeAndParam(t *testing.T) {
	m, err := ParseMode("pc_vsai")
	require.NoError(t, err)
	assert.Equal(t, PCVSAI, m)
	assert.True(t, m.Assisted())
	assert.False(t, m.VolumeControlled())

	_, err = ParseMode("BIPAP")
	assert.ErrorIs(t, err, ErrUnknownMode)

	p, err := ParseParam("PEEP")
	require.NoError(t, err)
	assert.Equal(t, PEEP, p)

	_, err = ParseParam("nope")
	assert.ErrorIs(t, err, ErrUnknownParam)
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "INHALATION", Inhalation.String())
	assert.Equal(t, "PLATEAU", Plateau.String())
	assert.Equal(t, "EXHALATION", Exhalation.String())
}

package hal

// FakeSensors is a test double returning scripted readings.
// When a Func is set it takes precedence over the fixed value.
type FakeSensors struct {
	Pressure        Reading
	InspiratoryFlow Reading
	ExpiratoryFlow  Reading

	PressureFunc        func() Reading
	InspiratoryFlowFunc func() Reading
	ExpiratoryFlowFunc  func() Reading
}

// NewFakeSensors creates sensors returning fresh zero readings.
func NewFakeSensors() *FakeSensors {
	return &FakeSensors{
		Pressure:        Reading{Fresh: true},
		InspiratoryFlow: Reading{Fresh: true},
		ExpiratoryFlow:  Reading{Fresh: true},
	}
}

// Set sets fresh fixed values for all three readings.
func (f *FakeSensors) Set(pressure, inspiratoryFlow, expiratoryFlow float64) {
	f.Pressure = Reading{Value: pressure, Fresh: true}
	f.InspiratoryFlow = Reading{Value: inspiratoryFlow, Fresh: true}
	f.ExpiratoryFlow = Reading{Value: expiratoryFlow, Fresh: true}
}

// ReadPressure returns the scripted pressure.
func (f *FakeSensors) ReadPressure() Reading {
	if f.PressureFunc != nil {
		return f.PressureFunc()
	}
	return f.Pressure
}

// ReadInspiratoryFlow returns the scripted inspiratory flow.
func (f *FakeSensors) ReadInspiratoryFlow() Reading {
	if f.InspiratoryFlowFunc != nil {
		return f.InspiratoryFlowFunc()
	}
	return f.InspiratoryFlow
}

// ReadExpiratoryFlow returns the scripted expiratory flow.
func (f *FakeSensors) ReadExpiratoryFlow() Reading {
	if f.ExpiratoryFlowFunc != nil {
		return f.ExpiratoryFlowFunc()
	}
	return f.ExpiratoryFlow
}

// Command is one set of actuator commands applied in a tick.
type Command struct {
	Blower       float64
	PatientValve float64
	BlowerValve  float64
}

// FakeActuators records every command it receives.
type FakeActuators struct {
	// Last holds the most recent value of each command.
	Last Command

	// Calls counts Set*Command invocations.
	Calls int

	// BlowerHistory contains every blower speed command.
	BlowerHistory []float64
}

// NewFakeActuators creates an empty recorder.
func NewFakeActuators() *FakeActuators {
	return &FakeActuators{}
}

// SetBlowerCommand records a blower speed.
func (f *FakeActuators) SetBlowerCommand(speed float64) {
	f.Last.Blower = speed
	f.BlowerHistory = append(f.BlowerHistory, speed)
	f.Calls++
}

// SetPatientValveCommand records a patient valve opening.
func (f *FakeActuators) SetPatientValveCommand(opening float64) {
	f.Last.PatientValve = opening
	f.Calls++
}

// SetBlowerValveCommand records a blower valve opening.
func (f *FakeActuators) SetBlowerValveCommand(opening float64) {
	f.Last.BlowerValve = opening
	f.Calls++
}

// Reset clears recorded commands.
func (f *FakeActuators) Reset() {
	f.Last = Command{}
	f.Calls = 0
	f.BlowerHistory = nil
}

// Package hal describes the sensors and actuators the control loop talks to.
// Implementations must never block: sensors return the last known sample and
// actuators accept commands fire-and-forget.
package hal

// Reading is one sensor sample. Fresh is false when no new sample arrived
// since the previous read and Value repeats the last known one.
type Reading struct {
	Value float64
	Fresh bool
}

// Sensors provides pressure (mmH2O) and flows (L/min).
type Sensors interface {
	ReadPressure() Reading
	ReadInspiratoryFlow() Reading
	ReadExpiratoryFlow() Reading
}

// Actuators accepts blower speed and valve opening commands.
// Openings range from 0 (closed) to 1 (fully open).
type Actuators interface {
	SetBlowerCommand(speed float64)
	SetPatientValveCommand(opening float64)
	SetBlowerValveCommand(opening float64)
}

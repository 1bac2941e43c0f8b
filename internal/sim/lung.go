// Package sim models the pneumatic path of the ventilator and a passive
// single-compartment lung so the control loop can run without hardware.
package sim

import (
	"math"
	"time"

	"github.com/sweeney/ventilator/internal/hal"
)

// Lung is a lung behind the blower valve and the patient valve. It
// implements hal.Sensors and hal.Actuators; call Step once per tick after
// the actuators were commanded.
type Lung struct {
	Compliance       float64 // mL/mmH2O
	PatientValveArea float64 // m², fully open
	MaxFlow          float64 // L/min through either valve
	Leak             float64 // L/min lost at 100 mmH2O, not seen by the sensors

	// Effort returns the pressure drop (mmH2O) produced by the patient at
	// a time since the simulation started. Nil means a sedated patient.
	Effort func(t time.Duration) float64

	elapsed         time.Duration
	volume          float64 // mL above relaxed volume
	blowerSpeed     float64
	blowerValve     float64
	patientValve    float64
	inspiratoryFlow float64
	expiratoryFlow  float64
}

// NewLung returns an adult lung with a compliance of 50 mL/cmH2O.
func NewLung() *Lung {
	return &Lung{
		Compliance:       5,
		PatientValveArea: 50e-6,
		MaxFlow:          200,
	}
}

// Step advances the model by dt with the last commanded actuators.
func (l *Lung) Step(dt time.Duration) {
	p := l.Pressure()

	qi := 0.0
	if dp := hal.BlowerPressure(l.blowerSpeed, l.inspiratoryFlow) - p; dp > 0 {
		qi = hal.OrificeFlow(l.blowerValve, dp*hal.PascalsPerMMH2O) * 60000
	}
	qe := 0.0
	if p > 0 && l.patientValve > 0 {
		qe = l.patientValve * l.PatientValveArea * math.Sqrt(2*p*hal.PascalsPerMMH2O/hal.AirDensity) * 60000
	}
	leak := 0.0
	if p > 0 {
		leak = l.Leak * p / 100
	}
	l.inspiratoryFlow = math.Min(qi, l.MaxFlow)
	l.expiratoryFlow = math.Min(qe, l.MaxFlow)

	net := l.inspiratoryFlow - l.expiratoryFlow - leak
	l.volume = math.Max(0, l.volume+net*1000/60*dt.Seconds())
	l.elapsed += dt
}

// Pressure returns the airway pressure in mmH2O.
func (l *Lung) Pressure() float64 {
	p := l.volume / l.Compliance
	if l.Effort != nil {
		p -= l.Effort(l.elapsed)
	}
	return p
}

// Volume returns the volume above the relaxed lung volume in mL.
func (l *Lung) Volume() float64 { return l.volume }

func (l *Lung) ReadPressure() hal.Reading {
	return hal.Reading{Value: l.Pressure(), Fresh: true}
}

func (l *Lung) ReadInspiratoryFlow() hal.Reading {
	return hal.Reading{Value: l.inspiratoryFlow, Fresh: true}
}

func (l *Lung) ReadExpiratoryFlow() hal.Reading {
	return hal.Reading{Value: l.expiratoryFlow, Fresh: true}
}

func (l *Lung) SetBlowerCommand(speed float64) { l.blowerSpeed = speed }

func (l *Lung) SetBlowerValveCommand(opening float64) { l.blowerValve = opening }

func (l *Lung) SetPatientValveCommand(opening float64) { l.patientValve = opening }

// PeriodicEffort returns an effort of depth mmH2O lasting width, repeated
// every period after an initial delay of one period.
func PeriodicEffort(period, width time.Duration, depth float64) func(time.Duration) float64 {
	return func(t time.Duration) float64 {
		if period <= 0 || width <= 0 || t < period {
			return 0
		}
		phase := t % period
		if phase >= width {
			return 0
		}
		return depth * math.Sin(math.Pi*float64(phase)/float64(width))
	}
}

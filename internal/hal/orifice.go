package hal

import "math"

// Orifice model of the blower valve.
const (
	BlowerValveArea = 33.18e-6 // m², fully open
	AirDensity      = 1.2      // kg/m³
	PascalsPerMMH2O = 9.80665
)

// maxOpening keeps OrificeFlow finite.
const maxOpening = 0.999

// OrificeOpening returns the blower valve opening fraction that passes flow
// (m³/s) under deltaP (Pa).
func OrificeOpening(deltaP, flow float64) float64 {
	if flow <= 0 {
		return 0
	}
	if deltaP <= 0 {
		return 1
	}
	return 1 / math.Sqrt(1+2*BlowerValveArea*BlowerValveArea*deltaP/(AirDensity*flow*flow))
}

// OrificeFlow is the inverse of OrificeOpening: the flow (m³/s) through
// the blower valve at opening under deltaP (Pa).
func OrificeFlow(opening, deltaP float64) float64 {
	if opening <= 0 || deltaP <= 0 {
		return 0
	}
	a := math.Min(opening, maxOpening)
	return a * BlowerValveArea * math.Sqrt(2*deltaP/AirDensity) / math.Sqrt(1-a*a)
}

package measure

// Clamp limits v to [lo, hi] and reports whether it had to.
func Clamp(v, lo, hi float64) (float64, bool) {
	switch {
	case v < lo:
		return lo, true
	case v > hi:
		return hi, true
	}
	return v, false
}

// StepUp adds step to v without exceeding max.
func StepUp(v, step, max float64) float64 {
	if v+step > max {
		return max
	}
	return v + step
}

// StepDown subtracts step from v without going below min.
func StepDown(v, step, min float64) float64 {
	if v-step < min {
		return min
	}
	return v - step
}

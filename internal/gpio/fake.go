package gpio

import "errors"

// FakePanel is a test double that returns scripted button states and
// records LED writes.
type FakePanel struct {
	// Samples contains scripted button states to return.
	// Each call to Read() consumes the next sample.
	Samples []Buttons

	// index tracks current position in Samples
	index int

	// LEDs holds every SetLEDs call in order.
	LEDs []LEDs

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakePanel creates a FakePanel with the given samples.
func NewFakePanel(samples []Buttons) *FakePanel {
	return &FakePanel{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakePanel) Read() (Buttons, error) {
	if f.ReadError != nil {
		return Buttons{}, f.ReadError
	}

	if len(f.Samples) == 0 {
		return Buttons{}, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}

	return sample, nil
}

// SetLEDs records l.
func (f *FakePanel) SetLEDs(l LEDs) error {
	f.LEDs = append(f.LEDs, l)
	return nil
}

// LastLEDs returns the most recent LED state, all off if none was set.
func (f *FakePanel) LastLEDs() LEDs {
	if len(f.LEDs) == 0 {
		return LEDs{}
	}
	return f.LEDs[len(f.LEDs)-1]
}

// Close marks the panel as closed.
func (f *FakePanel) Close() error {
	f.Closed = true
	return nil
}

// Reset resets the panel to the beginning of samples.
func (f *FakePanel) Reset() {
	f.index = 0
	f.Closed = false
	f.LEDs = nil
}

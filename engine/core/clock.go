package core

import "time"

// Lap is the time spent between two marks of a clock.
type Lap struct {
	Label    string
	Duration time.Duration
}

// Clock measures a session and optionally splits it into labelled laps.
type Clock struct {
	startTime time.Time
	lastMark  time.Time
	elapsed   time.Duration
	laps      []Lap
}

func NewClock() *Clock {
	return &Clock{}
}

// Updates the provided clock. Should be called just before checking elapsed time.
// Has no effect on non-started clocks.
func (c *Clock) Update() {
	if !c.startTime.IsZero() {
		c.elapsed = time.Since(c.startTime)
	}
}

// Start resets elapsed time and laps.
func (c *Clock) Start() {
	c.startTime = time.Now()
	c.lastMark = c.startTime
	c.elapsed = 0
	c.laps = c.laps[:0]
}

// Mark closes the current lap under label. Ignored on stopped clocks.
func (c *Clock) Mark(label string) time.Duration {
	if c.startTime.IsZero() {
		return 0
	}
	now := time.Now()
	d := now.Sub(c.lastMark)
	c.lastMark = now
	c.laps = append(c.laps, Lap{Label: label, Duration: d})
	return d
}

// Stops the provided clock. Does not reset elapsed time.
func (c *Clock) Stop() {
	c.Update()
	c.startTime = time.Time{}
}

func (c *Clock) Elapsed() time.Duration {
	return c.elapsed
}

func (c *Clock) Laps() []Lap {
	out := make([]Lap, len(c.laps))
	copy(out, c.laps)
	return out
}

// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"time"

	"github.com/devblok/triangle/config"
)

// NewTime creates a new time service
func NewTime(cfg config.TimeConfiguration) *Time {
	var interval time.Duration
	if cfg.FramesPerSecond == 0 {
		interval = time.Nanosecond
	} else {
		interval = time.Second / (time.Duration)(cfg.FramesPerSecond)
	}

	pollDelay := time.Duration(cfg.EventPollDelay) * time.Millisecond
	if pollDelay <= 0 {
		pollDelay = time.Millisecond
	}

	now := time.Now()
	return &Time{
		fps:         cfg.FramesPerSecond,
		fpsTicker:   time.NewTicker(interval),
		eventTicker: time.NewTicker(pollDelay),
		start:       now,
		last:        now,
	}
}

// Time contains all the time services and tickers
type Time struct {
	fps       int
	fpsTicker *time.Ticker

	eventTicker *time.Ticker

	start  time.Time
	last   time.Time
	frames uint64
}

// Fps gets the set frames per second
func (t *Time) Fps() int {
	return t.fps
}

// FpsTicker gets the initialized fps ticker
func (t *Time) FpsTicker() *time.Ticker {
	return t.fpsTicker
}

// EventTicker gets the initialized event ticker for the event loop
func (t *Time) EventTicker() *time.Ticker {
	return t.eventTicker
}

// Tick marks the start of a frame and returns the time since the previous one.
func (t *Time) Tick() time.Duration {
	now := time.Now()
	dt := now.Sub(t.last)
	t.last = now
	t.frames++
	return dt
}

// Frames returns the number of ticks so far.
func (t *Time) Frames() uint64 {
	return t.frames
}

// AverageFps returns the measured frame rate since creation.
func (t *Time) AverageFps() float64 {
	elapsed := t.last.Sub(t.start).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(t.frames) / elapsed
}

// Stop stops the tickers.
func (t *Time) Stop() {
	t.fpsTicker.Stop()
	t.eventTicker.Stop()
}

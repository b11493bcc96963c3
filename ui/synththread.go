package ui

import (
	"sync"
	"time"
)

// Status is a snapshot of the producer's output, for display.
type Status struct {
	Peak    int16 // largest absolute sample of the last buffer
	Voices  int   // active voice slots
	Program int
	Patch   string
	Dropped uint64 // note-ons lost to a fully held pool
}

// SharedStatus holds the status written by the producer goroutine and read
// by the terminal thread.
type SharedStatus struct {
	mu sync.Mutex
	st Status
}

// Update stores a new snapshot.
func (ss *SharedStatus) Update(st Status) {
	ss.mu.Lock()
	ss.st = st
	ss.mu.Unlock()
}

// Read returns the latest snapshot.
func (ss *SharedStatus) Read() Status {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.st
}

// PeakOf returns the largest absolute value in samples.
func PeakOf(samples []int16) int16 {
	var peak int16
	for _, s := range samples {
		if s == -32768 {
			return 32767
		}
		if s < 0 {
			s = -s
		}
		peak = max(peak, s)
	}
	return peak
}

// SynthControl manages pause/resume/stop coordination between
// the terminal thread and the synth producer goroutine.
type SynthControl struct {
	mu       sync.Mutex
	pauseReq bool
	paused   bool
	running  bool
	stopReq  bool
	ackCh    chan struct{}
}

// NewSynthControl creates a new producer control.
func NewSynthControl() *SynthControl {
	return &SynthControl{
		running: true,
		ackCh:   make(chan struct{}, 1),
	}
}

// RequestPause asks the producer goroutine to pause and blocks
// until it acknowledges the pause.
func (sc *SynthControl) RequestPause() {
	sc.mu.Lock()
	if sc.paused || sc.pauseReq || sc.stopReq {
		sc.mu.Unlock()
		return
	}
	sc.pauseReq = true
	sc.mu.Unlock()

	<-sc.ackCh
}

// RequestResume tells the producer goroutine to resume.
func (sc *SynthControl) RequestResume() {
	sc.mu.Lock()
	sc.pauseReq = false
	sc.paused = false
	sc.mu.Unlock()
}

// TogglePause pauses a running producer or resumes a paused one.
func (sc *SynthControl) TogglePause() {
	if sc.IsPaused() {
		sc.RequestResume()
	} else {
		sc.RequestPause()
	}
}

// CheckPause is called by the producer goroutine between buffers.
// If a pause has been requested, it sends an acknowledgment and
// waits until resumed or stopped. Returns false if the goroutine
// should exit.
func (sc *SynthControl) CheckPause() bool {
	sc.mu.Lock()
	if !sc.running || sc.stopReq {
		sc.mu.Unlock()
		return false
	}
	if !sc.pauseReq {
		sc.mu.Unlock()
		return true
	}

	sc.paused = true
	sc.mu.Unlock()

	// Non-blocking send of ack (buffer size 1)
	select {
	case sc.ackCh <- struct{}{}:
	default:
	}

	for {
		sc.mu.Lock()
		if !sc.running || sc.stopReq {
			sc.mu.Unlock()
			return false
		}
		if !sc.pauseReq {
			sc.paused = false
			sc.mu.Unlock()
			return true
		}
		sc.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
}

// Stop signals the producer goroutine to exit.
func (sc *SynthControl) Stop() {
	sc.mu.Lock()
	sc.running = false
	sc.stopReq = true
	// Also clear pause so CheckPause unblocks
	sc.pauseReq = false
	sc.mu.Unlock()

	// Release a RequestPause that the exiting producer will never ack.
	select {
	case sc.ackCh <- struct{}{}:
	default:
	}
}

// ShouldRun returns true if the goroutine should continue running.
func (sc *SynthControl) ShouldRun() bool {
	sc.mu.Lock()
	r := sc.running && !sc.stopReq
	sc.mu.Unlock()
	return r
}

// IsPaused returns true if the producer goroutine is currently paused.
func (sc *SynthControl) IsPaused() bool {
	sc.mu.Lock()
	p := sc.paused
	sc.mu.Unlock()
	return p
}

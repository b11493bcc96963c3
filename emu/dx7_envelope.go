package emu

// Block processing constants. Envelopes, LFO and controls update once per
// block; operators render blockSize samples per call.
const (
	lgBlockSize = 6
	blockSize   = 1 << lgBlockSize
)

// Envelope levels are Q24 log2 amplitude: 1<<24 is one doubling, which
// leaves 16 fractional bits below the 12-bit hardware resolution.
const (
	// egJumpTarget is where a rising segment starts when the level is
	// below it. The hardware skips the inaudible bottom of the attack.
	egJumpTarget = 1716 << 16

	// egLevelFloor is the lowest target any segment can have.
	egLevelFloor = 16

	// egMaxRate caps the scaled rate (0-63).
	egMaxRate = 63
)

// egLevelTable maps output levels 0-19 onto the hardware's nonlinear
// bottom range. Levels 20 and up are linear (level + 28).
var egLevelTable = [20]int32{
	0, 5, 9, 13, 17, 20, 23, 25, 27, 29, 31, 33, 35, 37, 39, 41, 42, 43, 45, 46,
}

// scaleOutLevel converts a 0-99 level parameter into the 0-127 scale.
func scaleOutLevel(level int) int32 {
	if level >= 20 {
		return int32(28 + level)
	}
	if level < 0 {
		level = 0
	}
	return egLevelTable[level]
}

// Envelope is the four segment rate/level generator driving one operator.
// Segments 0-2 run while the key is held, segment 2's target is the
// sustain plateau, and segment 3 is the release entered on key up.
type Envelope struct {
	rates  [4]int
	levels [4]int

	outLevel    int32 // operator output level in envelope units
	rateScaling int32 // keyboard rate scaling added to every rate

	level       int32
	targetLevel int32
	rising      bool
	ix          int   // current segment, 4 = finished
	inc         int32 // per-block step
	down        bool  // key held
}

// Init loads the envelope parameters and starts segment 0 with the key held.
func (e *Envelope) Init(rates, levels [4]int, outLevel, rateScaling int32) {
	e.rates = rates
	e.levels = levels
	e.outLevel = outLevel
	e.rateScaling = rateScaling
	e.level = 0
	e.down = true
	e.advance(0)
}

// Sample advances the envelope by one block and returns the new level.
func (e *Envelope) Sample() int32 {
	if e.ix < 3 || (e.ix < 4 && !e.down) {
		if e.rising {
			if e.level < egJumpTarget {
				e.level = egJumpTarget
			}
			// Exponential approach: the step shrinks as the level nears
			// the top of range.
			e.level += ((17<<24 - e.level) >> 24) * e.inc
			if e.level >= e.targetLevel {
				e.level = e.targetLevel
				e.advance(e.ix + 1)
			}
		} else {
			e.level -= e.inc
			if e.level <= e.targetLevel {
				e.level = e.targetLevel
				e.advance(e.ix + 1)
			}
		}
	}
	return e.level
}

// KeyDown moves to segment 0 on press and segment 3 on release. Repeated
// calls with the same state are ignored.
func (e *Envelope) KeyDown(down bool) {
	if e.down == down {
		return
	}
	e.down = down
	if down {
		e.advance(0)
	} else {
		e.advance(3)
	}
}

// SetParam updates a rate (0-3) or level (4-7) without touching the
// current level. Other indices are ignored.
func (e *Envelope) SetParam(param, value int) {
	switch {
	case param < 0:
	case param < 4:
		e.rates[param] = value
	case param < 8:
		e.levels[param-4] = value
	}
}

// Level returns the current level without advancing.
func (e *Envelope) Level() int32 { return e.level }

// Segment returns the active segment; 4 means the release has completed.
func (e *Envelope) Segment() int { return e.ix }

// Done reports whether the release segment has reached its target.
func (e *Envelope) Done() bool { return e.ix >= 4 }

func (e *Envelope) advance(ix int) {
	e.ix = ix
	if ix >= 4 {
		return
	}
	actual := scaleOutLevel(e.levels[ix]) >> 1
	actual = actual<<6 + e.outLevel - 4256
	if actual < egLevelFloor {
		actual = egLevelFloor
	}
	e.targetLevel = actual << 16
	e.rising = e.targetLevel > e.level

	qRate := int32(e.rates[ix]*41) >> 6
	qRate += e.rateScaling
	if qRate > egMaxRate {
		qRate = egMaxRate
	}
	if qRate < 0 {
		qRate = 0
	}
	e.inc = (4 + qRate&3) << (2 + lgBlockSize + qRate>>2)
}

package emu

// LFO waveforms, in patch encoding order.
const (
	LFOTriangle = iota
	LFOSawDown
	LFOSawUp
	LFOSquare
	LFOSine
	LFOSampleHold
)

// LFO parameter offsets within the six LFO bytes of a patch.
const (
	lfoParamSpeed = iota
	lfoParamDelay
	lfoParamPMD
	lfoParamAMD
	lfoParamSync
	lfoParamWave
)

// LFO is the low frequency oscillator. It advances once per block and
// produces a Q24 value in [0, 1] plus a delay ramp that fades modulation in
// after a key press.
type LFO struct {
	tables *Tables
	unit   uint32

	phase    uint32 // Q32, one cycle per wrap
	delta    uint32
	waveform int
	rand     uint32
	sync     bool

	delayState uint32
	delayInc   uint32 // slope before the midpoint (silent wait)
	delayInc2  uint32 // slope of the fade in
}

// NewLFO creates an LFO for ctx using tables for the sine waveform.
func NewLFO(ctx *Context, tables *Tables) *LFO {
	return &LFO{tables: tables, unit: ctx.lfoUnit}
}

// SetContext switches to a new sample rate. Call Reset afterwards to
// recompute the rates.
func (l *LFO) SetContext(ctx *Context) {
	l.unit = ctx.lfoUnit
}

// Reset loads speed, delay, sync and waveform from the patch LFO bytes.
func (l *LFO) Reset(params [6]byte) {
	rate := uint32(params[lfoParamSpeed])
	sr := uint32(1)
	if rate != 0 {
		sr = (165 * rate) >> 6
	}
	if sr < 160 {
		sr *= 11
	} else {
		sr *= 11 + ((sr - 160) >> 4)
	}
	l.delta = l.unit * sr

	a := 99 - int(params[lfoParamDelay])
	if a >= 99 {
		l.delayInc = ^uint32(0)
		l.delayInc2 = ^uint32(0)
	} else {
		if a < 0 {
			a = 0
		}
		a = (16 + (a & 15)) << (1 + (a >> 4))
		l.delayInc = l.unit * uint32(a)
		a &= 0xff80
		if a < 0x80 {
			a = 0x80
		}
		l.delayInc2 = l.unit * uint32(a)
	}
	l.waveform = int(params[lfoParamWave])
	l.sync = params[lfoParamSync] != 0
}

// Sample advances the phase by one block and returns the waveform value.
func (l *LFO) Sample() int32 {
	l.phase += l.delta
	switch l.waveform {
	case LFOTriangle:
		x := int32(l.phase >> 7)
		x ^= -int32(l.phase >> 31)
		return x & (1<<24 - 1)
	case LFOSawDown:
		return int32((^l.phase ^ 1<<31) >> 8)
	case LFOSawUp:
		return int32((l.phase ^ 1<<31) >> 8)
	case LFOSquare:
		return int32((^l.phase >> 7) & (1 << 24))
	case LFOSine:
		return 1<<23 + l.tables.Sin(int32(l.phase>>8))>>1
	case LFOSampleHold:
		// New value once per cycle, on wrap.
		if l.phase < l.delta {
			l.rand = (l.rand*179 + 17) & 0xff
		}
		return int32((l.rand^0x80)+1) << 16
	}
	return 1 << 23
}

// Delay advances the delay ramp and returns the modulation depth in Q24.
// The first half of the ramp returns 0, the second half rises to 1<<24.
func (l *LFO) Delay() int32 {
	delta := l.delayInc2
	if l.delayState < 1<<31 {
		delta = l.delayInc
	}
	d := l.delayState + delta
	if d < l.delayState {
		// Wrapped past the end of the ramp.
		return 1 << 24
	}
	l.delayState = d
	if d < 1<<31 {
		return 0
	}
	return int32((d >> 7) & (1<<24 - 1))
}

// KeyDown restarts the delay ramp and, with sync enabled, the phase.
func (l *LFO) KeyDown() {
	if l.sync {
		l.phase = 1<<31 - 1
	}
	l.delayState = 0
}

package emu

// pitchRateTable maps a pitch envelope rate (0-99) to a step multiplier.
var pitchRateTable = [100]int32{
	1, 2, 3, 3, 4, 4, 5, 5, 6, 6, 7, 7, 8, 8, 9, 9, 10, 10, 11, 11,
	12, 12, 13, 13, 14, 14, 15, 16, 16, 17, 18, 18, 19, 20, 21, 22, 23, 24, 25, 26,
	27, 28, 30, 31, 33, 34, 36, 37, 38, 39, 41, 42, 44, 46, 47, 49, 51, 53, 54, 56,
	58, 60, 62, 64, 66, 68, 70, 72, 74, 76, 79, 82, 85, 88, 91, 94, 98, 102, 106, 110,
	115, 120, 125, 130, 135, 141, 147, 153, 159, 165, 171, 178, 185, 193, 202, 211, 232, 243, 254, 255,
}

// pitchLevelTable maps a pitch envelope level (0-99, 50 = center) to a
// signed deviation. Shifted left by 19 it is a Q24 octave offset, so the
// extremes are close to +-4 octaves.
var pitchLevelTable = [100]int32{
	-128, -116, -104, -95, -85, -76, -68, -61, -56, -52,
	-49, -46, -43, -41, -39, -37, -35, -33, -32, -31,
	-30, -29, -28, -27, -26, -25, -24, -23, -22, -21,
	-20, -19, -18, -17, -16, -15, -14, -13, -12, -11,
	-10, -9, -8, -7, -6, -5, -4, -3, -2, -1,
	0, 1, 2, 3, 4, 5, 6, 7, 8, 9,
	10, 11, 12, 13, 14, 15, 16, 17, 18, 19,
	20, 21, 22, 23, 24, 25, 26, 27, 28, 29,
	30, 31, 32, 33, 34, 35, 38, 40, 43, 46,
	49, 53, 58, 65, 73, 82, 92, 103, 115, 127,
}

func pitchLevel(l int) int32 {
	return pitchLevelTable[clampParam(l, 99)] << 19
}

// PitchEnvelope is the four segment envelope applied to a voice's pitch.
// Unlike the amplitude envelope both directions are linear.
type PitchEnvelope struct {
	rates  [4]int
	levels [4]int
	unit   int32

	level       int32
	targetLevel int32
	rising      bool
	ix          int
	inc         int32
	down        bool
}

// Init loads the parameters. The envelope starts from the release level,
// which is also where it returns to after key up.
func (p *PitchEnvelope) Init(ctx *Context, rates, levels [4]int) {
	p.unit = ctx.pitchUnit
	p.rates = rates
	p.levels = levels
	p.level = pitchLevel(levels[3])
	p.down = true
	p.advance(0)
}

// Sample advances one block and returns the Q24 pitch offset.
func (p *PitchEnvelope) Sample() int32 {
	if p.ix < 3 || (p.ix < 4 && !p.down) {
		if p.rising {
			p.level += p.inc
			if p.level >= p.targetLevel {
				p.level = p.targetLevel
				p.advance(p.ix + 1)
			}
		} else {
			p.level -= p.inc
			if p.level <= p.targetLevel {
				p.level = p.targetLevel
				p.advance(p.ix + 1)
			}
		}
	}
	return p.level
}

// KeyDown restarts at segment 0 on press and jumps to segment 3 on release.
func (p *PitchEnvelope) KeyDown(down bool) {
	if p.down == down {
		return
	}
	p.down = down
	if down {
		p.advance(0)
	} else {
		p.advance(3)
	}
}

func (p *PitchEnvelope) advance(ix int) {
	p.ix = ix
	if ix >= 4 {
		return
	}
	p.targetLevel = pitchLevel(p.levels[ix])
	p.rising = p.targetLevel > p.level
	p.inc = pitchRateTable[clampParam(p.rates[ix], 99)] * p.unit
}

// clampParam limits v to [0, max].
func clampParam(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

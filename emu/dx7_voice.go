package emu

// ControllerPitchBend is the controller slot holding the 14-bit pitch bend.
// It sits past the 0-127 MIDI controller range.
const ControllerPitchBend = 128

// pitchBendCenter is the 14-bit pitch bend rest position.
const pitchBendCenter = 0x2000

// Controllers holds the last value of every MIDI controller plus the
// pitch bend slot.
type Controllers struct {
	values [ControllerPitchBend + 1]int32
}

// NewControllers returns controllers at rest with pitch bend centered.
func NewControllers() *Controllers {
	c := &Controllers{}
	c.values[ControllerPitchBend] = pitchBendCenter
	return c
}

// Get returns a controller value, 0 for out of range indices.
func (c *Controllers) Get(n int) int32 {
	if n < 0 || n >= len(c.values) {
		return 0
	}
	return c.values[n]
}

// Set stores a controller value. Out of range indices are ignored.
func (c *Controllers) Set(n int, v int32) {
	if n < 0 || n >= len(c.values) {
		return
	}
	c.values[n] = v
}

// Log frequency of MIDI note 0, Q24 octaves above 1 Hz:
// (1<<24) * (log2(440) - 69/12).
const (
	logFreqNote0    = 50857777
	logFreqSemitone = (1 << 24) / 12
)

// coarseRatio is log2 of the ratio-mode frequency multiplier (0.5, 1..31).
var coarseRatio = [32]int32{
	-16777216, 0, 16777216, 26591258, 33554432, 38955489, 43368474, 47099600,
	50331648, 53182516, 55732705, 58039632, 60145690, 62083076, 63876816, 65546747,
	67108864, 68576247, 69959732, 71268397, 72509921, 73690858, 74816848, 75892776,
	76922906, 77910978, 78860292, 79773775, 80654032, 81503396, 82323963, 83117622,
}

// velocityTable is the hardware velocity response curve, indexed by
// velocity/2.
var velocityTable = [64]int32{
	0, 70, 86, 97, 106, 114, 121, 126, 132, 138, 142, 148, 152, 156, 160, 163,
	166, 170, 173, 174, 178, 181, 184, 186, 189, 190, 194, 196, 198, 200, 202, 205,
	206, 209, 211, 214, 216, 218, 220, 222, 224, 225, 227, 229, 230, 232, 233, 235,
	237, 238, 240, 241, 242, 243, 244, 246, 246, 248, 249, 250, 251, 252, 253, 254,
}

// expScaleTable is the exponential keyboard level scaling curve.
var expScaleTable = [33]int32{
	0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 11, 14, 16, 19, 23, 27, 33,
	39, 47, 56, 66, 80, 94, 110, 126, 142, 158, 174, 190, 206, 222, 238, 250,
}

// pitchModSensTable maps pitch modulation sensitivity 0-7 to a multiplier.
var pitchModSensTable = [8]int32{0, 10, 20, 33, 55, 92, 153, 255}

func noteLogFreq(note int) int32 {
	return logFreqNote0 + logFreqSemitone*int32(note)
}

// oscLogFreq returns an operator's base log frequency.
func oscLogFreq(t *Tables, note, mode, coarse, fine, detune int) int32 {
	if mode == 0 {
		lf := noteLogFreq(note)
		lf += coarseRatio[coarse&31]
		lf += t.fineOffset(fine)
		// 7.213Hz per count at 9600Hz, measured.
		lf += 12606 * int32(detune-7)
		return lf
	}
	// Fixed mode: 10^(coarse + fine/100) Hz.
	lf := (4458616 * int32((coarse&3)*100+fine)) >> 3
	if detune > 7 {
		lf += 13457 * int32(detune-7)
	}
	return lf
}

// scaleVelocity returns the output level delta for a velocity, in
// envelope microsteps.
func scaleVelocity(velocity, sensitivity int) int32 {
	v := velocityTable[clampParam(velocity, 127)>>1] - 239
	return ((int32(sensitivity)*v + 7) >> 3) << 4
}

// scaleRate returns the keyboard rate scaling offset for a note.
func scaleRate(note, sensitivity int) int32 {
	x := clampParam(note/3-7, 31)
	d := (sensitivity * x) >> 3
	rem := x & 7
	if sensitivity == 3 && rem == 3 {
		d--
	} else if sensitivity == 7 && rem > 0 && rem < 4 {
		d++
	}
	return int32(d)
}

// Keyboard level scaling curves.
const (
	curveNegLin = 0
	curveNegExp = 1
	curvePosExp = 2
	curvePosLin = 3
)

func scaleCurve(group, depth, curve int) int32 {
	var scale int32
	if curve == curveNegLin || curve == curvePosLin {
		scale = int32(group*depth*329) >> 12
	} else {
		raw := expScaleTable[min(group, len(expScaleTable)-1)]
		scale = (raw * int32(depth) * 329) >> 15
	}
	if curve < curvePosExp {
		scale = -scale
	}
	return scale
}

// scaleLevel applies keyboard level scaling around the breakpoint.
func scaleLevel(note, breakPoint, leftDepth, rightDepth, leftCurve, rightCurve int) int32 {
	offset := note - breakPoint - 17
	if offset >= 0 {
		return scaleCurve(offset/3, rightDepth, rightCurve)
	}
	return scaleCurve(-offset/3, leftDepth, leftCurve)
}

// Voice is one sounding note: six operators with their envelopes, a pitch
// envelope and the feedback state, rendered through the patch's algorithm.
type Voice struct {
	ctx    *Context
	tables *Tables

	note     int
	velocity int

	env       [6]Envelope
	params    [6]opParams
	basePitch [6]int32
	pitchEnv  PitchEnvelope
	buses     opBuses

	fb            [2]int32
	fbShift       int
	algorithm     int
	pitchModDepth int32
	pitchModSens  int32

	released bool
	fadeOut  bool // stolen: ramp to silence over the next block
	faded    bool
}

// NewVoice builds a voice for note and velocity from patch.
func NewVoice(ctx *Context, tables *Tables, patch *Patch, note, velocity int) *Voice {
	v := &Voice{ctx: ctx, tables: tables, note: note, velocity: velocity}

	// Transpose 24 is no shift.
	key := clampParam(note+int(patch[offTranspose])-24, 127)

	for op := 0; op < 6; op++ {
		b := patch.Operator(op)
		var rates, levels [4]int
		for i := 0; i < 4; i++ {
			rates[i] = int(b[opEGRate+i])
			levels[i] = int(b[opEGLevel+i])
		}

		outLevel := scaleOutLevel(int(b[opOutputLevel]))
		outLevel += scaleLevel(key, int(b[opBreakpoint]), int(b[opLeftDepth]), int(b[opRightDepth]),
			int(b[opLeftCurve]), int(b[opRightCurve]))
		outLevel = min(outLevel, 127)
		outLevel <<= 5
		outLevel += scaleVelocity(velocity, int(b[opVelocitySens]))
		outLevel = max(outLevel, 0)

		v.env[op].Init(rates, levels, outLevel, scaleRate(key, int(b[opRateScaling])))
		v.basePitch[op] = oscLogFreq(tables, key, int(b[opMode]), int(b[opCoarse]), int(b[opFine]), int(b[opDetune]))
	}

	var rates, levels [4]int
	for i := 0; i < 4; i++ {
		rates[i] = int(patch[offPitchEGRate+i])
		levels[i] = int(patch[offPitchEGLevel+i])
	}
	v.pitchEnv.Init(ctx, rates, levels)

	v.algorithm = clampParam(int(patch[offAlgorithm]), 31)
	v.fbShift = feedbackOff
	if fb := int(patch[offFeedback] & 7); fb != 0 {
		v.fbShift = 8 - fb
	}
	v.pitchModDepth = (int32(patch[offLFOPitchModDepth]) * 165) >> 6
	v.pitchModSens = pitchModSensTable[patch[offPitchModSens]&7]
	return v
}

// Note returns the MIDI note the voice was started with.
func (v *Voice) Note() int { return v.note }

// Compute renders one block and adds it into out.
func (v *Voice) Compute(out []int32, lfoValue, lfoDelay int32, ctrls *Controllers) {
	pitchMod := v.pitchEnv.Sample()
	pmd := int64(v.pitchModDepth) * int64(lfoDelay) // Q32
	sensLFO := v.pitchModSens * (lfoValue - 1<<23)
	pitchMod += int32((pmd * int64(sensLFO)) >> 39)

	// Fixed bend range of 3 semitones.
	pitchMod += (ctrls.Get(ControllerPitchBend) - pitchBendCenter) << 9

	for op := range v.params {
		p := &v.params[op]
		p.gain[0] = p.gain[1]
		level := v.env[op].Sample()
		gain := v.tables.Exp2(level - 14<<24)
		if v.fadeOut {
			gain = 0
		}
		p.freq = v.ctx.freq.lookup(v.basePitch[op] + pitchMod)
		p.gain[1] = gain
	}
	computeAlgorithm(v.tables, out, &v.buses, &v.params, v.algorithm, &v.fb, v.fbShift)
	if v.fadeOut {
		v.faded = true
	}
}

// KeyUp moves every envelope into its release segment.
func (v *Voice) KeyUp() {
	v.released = true
	for op := range v.env {
		v.env[op].KeyDown(false)
	}
	v.pitchEnv.KeyDown(false)
}

// Released reports whether KeyUp has been called.
func (v *Voice) Released() bool { return v.released }

// silence makes the next Compute fade the voice out. The voice is Done
// after that block.
func (v *Voice) silence() {
	v.fadeOut = true
}

// Done reports whether the voice no longer produces sound: either it was
// faded out, or it was released and every envelope finished below the
// audibility threshold.
func (v *Voice) Done() bool {
	if v.faded {
		return true
	}
	if !v.released {
		return false
	}
	for op := range v.env {
		if !v.env[op].Done() {
			return false
		}
		g := v.params[op].gain
		if g[0] >= opLevelThreshold || g[1] >= opLevelThreshold {
			return false
		}
	}
	return true
}

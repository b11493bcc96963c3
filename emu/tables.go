package emu

import "math"

// Table sizes (log2) for the interpolated lookups. Every table stores
// (dy, y0) pairs so a lookup is one multiply and one add.
const (
	sinLgN  = 10
	sinN    = 1 << sinLgN
	exp2LgN = 10
	exp2N   = 1 << exp2LgN
	tanhLgN = 10
	tanhN   = 1 << tanhLgN
	freqLgN = 10
	freqN   = 1 << freqLgN

	// maxLogFreqInt is the largest integer octave a log frequency may carry.
	maxLogFreqInt = 20
)

// Chebyshev coefficients for the 8th order sine polynomial, Q24.
const (
	sinC80 = 16777216
	sinC82 = -331168742
	sinC84 = 1089453524
	sinC86 = -1430910663
	sinC88 = 950108533
)

// Tables holds the fixed-point transcendental lookups shared by every
// component of the engine. It is immutable after NewTables returns and safe
// to share between goroutines.
type Tables struct {
	sin  [sinN * 2]int32
	exp2 [exp2N * 2]int32
	tanh [tanhN * 2]int32
	fine [100]int32 // log2 offsets for fine frequency 0-99, Q24
}

// NewTables builds all lookup tables.
func NewTables() *Tables {
	t := &Tables{}
	t.buildSin()
	t.buildExp2()
	t.buildTanh()
	for i := 1; i < len(t.fine); i++ {
		t.fine[i] = int32(math.Floor(24204406.323123*math.Log(1+0.01*float64(i)) + 0.5))
	}
	return t
}

// buildSin fills the sine table with a rotation recurrence, which keeps the
// values bit-identical across platforms.
func (t *Tables) buildSin() {
	dphase := 2 * math.Pi / sinN
	c := int64(math.Floor(math.Cos(dphase)*(1<<30) + 0.5))
	s := int64(math.Floor(math.Sin(dphase)*(1<<30) + 0.5))
	const r = 1 << 29
	u := int64(1 << 30)
	v := int64(0)
	for i := 0; i < sinN/2; i++ {
		t.sin[(i<<1)+1] = int32((v + 32) >> 6)
		t.sin[((i+sinN/2)<<1)+1] = -int32((v + 32) >> 6)
		nv := (u*s + v*c + r) >> 30
		u = (u*c - v*s + r) >> 30
		v = nv
	}
	for i := 0; i < sinN-1; i++ {
		t.sin[i<<1] = t.sin[(i<<1)+3] - t.sin[(i<<1)+1]
	}
	t.sin[(sinN<<1)-2] = -t.sin[(sinN<<1)-1]
}

func (t *Tables) buildExp2() {
	inc := math.Exp2(1.0 / exp2N)
	y := float64(1 << 30)
	for i := 0; i < exp2N; i++ {
		t.exp2[(i<<1)+1] = int32(math.Floor(y + 0.5))
		y *= inc
	}
	for i := 0; i < exp2N-1; i++ {
		t.exp2[i<<1] = t.exp2[(i<<1)+3] - t.exp2[(i<<1)+1]
	}
	t.exp2[(exp2N<<1)-2] = int32(int64(1)<<31 - int64(t.exp2[(exp2N<<1)-1]))
}

// buildTanh integrates d/dx tanh = 1 - tanh^2 with RK4 over [0, 4).
func (t *Tables) buildTanh() {
	step := 4.0 / tanhN
	dtanh := func(y float64) float64 { return 1 - y*y }
	y := 0.0
	for i := 0; i < tanhN; i++ {
		t.tanh[(i<<1)+1] = int32((1<<24)*y + 0.5)
		k1 := dtanh(y)
		k2 := dtanh(y + 0.5*step*k1)
		k3 := dtanh(y + 0.5*step*k2)
		k4 := dtanh(y + step*k3)
		y += step / 6 * (k1 + k4 + 2*(k2+k3))
	}
	for i := 0; i < tanhN-1; i++ {
		t.tanh[i<<1] = t.tanh[(i<<1)+3] - t.tanh[(i<<1)+1]
	}
	last := int32((1<<24)*y + 0.5)
	t.tanh[(tanhN<<1)-2] = last - t.tanh[(tanhN<<1)-1]
}

// Sin returns sin(2*pi*phase/2^24) in Q24. Only the low 24 bits of phase
// are significant.
func (t *Tables) Sin(phase int32) int32 {
	const shift = 24 - sinLgN
	lowBits := phase & (1<<shift - 1)
	idx := (phase >> (shift - 1)) & ((sinN - 1) << 1)
	dy := t.sin[idx]
	y0 := t.sin[idx+1]
	return y0 + int32((int64(dy)*int64(lowBits))>>shift)
}

// SinPoly computes the same function as Sin with a polynomial instead of
// the table. It is more accurate and slower.
func (t *Tables) SinPoly(phase int32) int32 {
	x := (phase & (1<<23 - 1)) - 1<<22
	x2 := int64((int64(x) * int64(x)) >> 16)
	y := (sinC88*x2)>>32 + sinC86
	y = (y*x2)>>32 + sinC84
	y = (y*x2)>>32 + sinC82
	y = (y*x2)>>32 + sinC80
	// Second half cycle is the first one negated (ones' complement).
	return int32(y) ^ -((phase >> 23) & 1)
}

// Exp2 returns 2^(x/2^24) in Q24. Results that do not fit in an int32
// saturate to math.MaxInt32.
func (t *Tables) Exp2(x int32) int32 {
	const shift = 24 - exp2LgN
	lowBits := x & (1<<shift - 1)
	idx := (x >> (shift - 1)) & ((exp2N - 1) << 1)
	dy := t.exp2[idx]
	y0 := t.exp2[idx+1]
	y := y0 + int32((int64(dy)*int64(lowBits))>>shift)

	s := 6 - (x >> 24)
	switch {
	case s < 0:
		return math.MaxInt32
	case s > 31:
		return 0
	}
	return y >> s
}

// Tanh returns tanh(x) for Q24 x, in Q24.
func (t *Tables) Tanh(x int32) int32 {
	signum := x >> 31
	x ^= signum
	if x >= 4<<24 {
		if x >= 17<<23 {
			return signum ^ (1 << 24)
		}
		// tanh(x) ~= 1 - 2e^-2x once the table range is exhausted.
		sx := int32((int64(-48408812) * int64(x)) >> 24)
		return signum ^ ((1 << 24) - 2*t.Exp2(sx))
	}
	const shift = 26 - tanhLgN
	lowBits := x & (1<<shift - 1)
	idx := (x >> (shift - 1)) & ((tanhN - 1) << 1)
	dy := t.tanh[idx]
	y0 := t.tanh[idx+1]
	y := y0 + int32((int64(dy)*int64(lowBits))>>shift)
	return y ^ signum
}

// fineOffset returns the log2 frequency offset of a fine tune setting.
func (t *Tables) fineOffset(fine int) int32 {
	if fine <= 0 {
		return 0
	}
	if fine >= len(t.fine) {
		fine = len(t.fine) - 1
	}
	return t.fine[fine]
}

// freqTable converts a Q24 log2 frequency in Hz into a per-sample phase
// increment for one sample rate. One cycle is 2^24 phase units.
type freqTable struct {
	lut [freqN + 1]int32
}

func newFreqTable(sampleRate float64) *freqTable {
	ft := &freqTable{}
	y := float64(int64(1)<<(24+maxLogFreqInt)) / sampleRate
	inc := math.Exp2(1.0 / freqN)
	for i := 0; i <= freqN; i++ {
		ft.lut[i] = int32(math.Floor(y + 0.5))
		y *= inc
	}
	return ft
}

// lookup returns the phase increment for logFreq (Q24 octaves above 1 Hz).
func (ft *freqTable) lookup(logFreq int32) int32 {
	const shift = 24 - freqLgN
	ix := (logFreq & 0xffffff) >> shift
	y0 := ft.lut[ix]
	y1 := ft.lut[ix+1]
	lowBits := logFreq & (1<<shift - 1)
	y := y0 + int32((int64(y1-y0)*int64(lowBits))>>shift)
	s := maxLogFreqInt - (logFreq >> 24)
	switch {
	case s < 0:
		s = 0
	case s > 31:
		return 0
	}
	return y >> s
}

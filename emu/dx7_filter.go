package emu

// Default filter controls: cutoff fully open, no resonance.
const (
	filterCutoffOpen = 258847126 // Q24 log2 Hz, just above Nyquist at 44.1kHz
	filterUnity      = 1 << 24
)

// Filter is a four pole nonlinear ladder (Huovilainen model). Each stage
// saturates through tanh and the last stage feeds back to the input scaled
// by the resonance.
type Filter struct {
	ctx    *Context
	tables *Tables

	x  [4]int32 // stage outputs
	w  [4]int32 // tanh of stage outputs
	yy int32    // previous x[3], averaged into the feedback path

	lastCutoff    int32
	lastResonance int32
}

// NewFilter creates a filter at rest with the cutoff open.
func NewFilter(ctx *Context, tables *Tables) *Filter {
	return &Filter{ctx: ctx, tables: tables, lastCutoff: filterCutoffOpen}
}

// SetContext switches the filter to a new sample rate. State is kept.
func (f *Filter) SetContext(ctx *Context) {
	f.ctx = ctx
}

// Reset clears the stage state.
func (f *Filter) Reset() {
	f.x = [4]int32{}
	f.w = [4]int32{}
	f.yy = 0
}

// alpha converts a log2 cutoff into the per-sample integration coefficient.
func (f *Filter) alpha(logf int32) int32 {
	return min(filterUnity, f.ctx.freq.lookup(logf))
}

// limitResonance keeps alpha*k at or below unity so the loop cannot run
// away.
func limitResonance(alpha, k int32) int32 {
	if alpha > 0 && (int64(alpha)*int64(k))>>24 > filterUnity {
		return ((1 << 30) / alpha) << 18
	}
	return k
}

// Process filters one block. cutoff is a Q24 log2 frequency and resonance a
// Q24 feedback gain (4.0 self oscillates). Both are ramped from the values
// of the previous call across the block.
func (f *Filter) Process(in, out []int32, cutoff, resonance int32) {
	alpha := f.alpha(f.lastCutoff)
	alphaIn := f.alpha(cutoff)
	dAlpha := (alphaIn - alpha) >> lgBlockSize
	k := f.lastResonance
	kIn := resonance
	dK := (kIn - k) >> lgBlockSize
	f.lastCutoff = cutoff
	f.lastResonance = resonance

	t := f.tables
	x0, x1, x2, x3 := f.x[0], f.x[1], f.x[2], f.x[3]
	w0, w1, w2, w3 := f.w[0], f.w[1], f.w[2], f.w[3]
	yy := f.yy
	in = in[:blockSize]
	out = out[:blockSize]
	for i := range in {
		alpha += dAlpha
		k += dK
		kk := limitResonance(alpha, k)

		fb := int32((int64(kk) * int64(x3+yy)) >> 25)
		yy = x3
		trx := t.Tanh(in[i] - fb)
		x0 += int32((int64(trx-w0) * int64(alpha)) >> 24)
		w0 = t.Tanh(x0)
		x1 += int32((int64(w0-w1) * int64(alpha)) >> 24)
		w1 = t.Tanh(x1)
		x2 += int32((int64(w1-w2) * int64(alpha)) >> 24)
		w2 = t.Tanh(x2)
		x3 += int32((int64(w2-w3) * int64(alpha)) >> 24)
		w3 = t.Tanh(x3)
		out[i] = x3
	}
	f.x = [4]int32{x0, x1, x2, x3}
	f.w = [4]int32{w0, w1, w2, w3}
	f.yy = yy
}

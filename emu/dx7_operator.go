package emu

// opLevelThreshold is the gain below which an operator is skipped.
const opLevelThreshold = 1120

// feedbackOff is the feedback shift meaning no self modulation.
const feedbackOff = 16

// Bus numbers. Bus 0 is the voice output, 1 and 2 carry modulators.
const (
	busOut = 0
	bus1   = 1
	bus2   = 2
)

// opRoute wires one operator into the algorithm graph.
type opRoute struct {
	in    uint8 // bus read as phase modulation, 0 = none
	out   uint8 // bus written
	add   bool  // accumulate into out rather than overwrite
	fbIn  bool  // operator reads the feedback history
	fbOut bool  // operator writes the feedback history
}

// algorithms lists the 32 topologies, operators in evaluation order
// (OP6 first, OP1 last). Carriers always add into bus 0.
var algorithms = [32][6]opRoute{
	{{out: 1, fbIn: true, fbOut: true}, {in: 1, out: 1}, {in: 1, out: 1}, {in: 1, add: true}, {out: 1}, {in: 1, add: true}},                       // 1
	{{out: 1}, {in: 1, out: 1}, {in: 1, out: 1}, {in: 1, add: true}, {out: 1, fbIn: true, fbOut: true}, {in: 1, add: true}},                       // 2
	{{out: 1, fbIn: true, fbOut: true}, {in: 1, out: 1}, {in: 1, add: true}, {out: 1}, {in: 1, out: 1}, {in: 1, add: true}},                       // 3
	{{out: 1, fbIn: true}, {in: 1, out: 1}, {in: 1, add: true, fbOut: true}, {out: 1}, {in: 1, out: 1}, {in: 1, add: true}},                       // 4
	{{out: 1, fbIn: true, fbOut: true}, {in: 1, add: true}, {out: 1}, {in: 1, add: true}, {out: 1}, {in: 1, add: true}},                           // 5
	{{out: 1, fbIn: true}, {in: 1, add: true, fbOut: true}, {out: 1}, {in: 1, add: true}, {out: 1}, {in: 1, add: true}},                           // 6
	{{out: 1, fbIn: true, fbOut: true}, {in: 1, out: 1}, {out: 1, add: true}, {in: 1, add: true}, {out: 1}, {in: 1, add: true}},                   // 7
	{{out: 1}, {in: 1, out: 1}, {out: 1, add: true, fbIn: true, fbOut: true}, {in: 1, add: true}, {out: 1}, {in: 1, add: true}},                   // 8
	{{out: 1}, {in: 1, out: 1}, {out: 1, add: true}, {in: 1, add: true}, {out: 1, fbIn: true, fbOut: true}, {in: 1, add: true}},                   // 9
	{{out: 1}, {out: 1, add: true}, {in: 1, add: true}, {out: 1, fbIn: true, fbOut: true}, {in: 1, out: 1}, {in: 1, add: true}},                   // 10
	{{out: 1, fbIn: true, fbOut: true}, {out: 1, add: true}, {in: 1, add: true}, {out: 1}, {in: 1, out: 1}, {in: 1, add: true}},                   // 11
	{{out: 1}, {out: 1, add: true}, {out: 1, add: true}, {in: 1, add: true}, {out: 1, fbIn: true, fbOut: true}, {in: 1, add: true}},               // 12
	{{out: 1, fbIn: true, fbOut: true}, {out: 1, add: true}, {out: 1, add: true}, {in: 1, add: true}, {out: 1}, {in: 1, add: true}},               // 13
	{{out: 1, fbIn: true, fbOut: true}, {out: 1, add: true}, {in: 1, out: 1}, {in: 1, add: true}, {out: 1}, {in: 1, add: true}},                   // 14
	{{out: 1}, {out: 1, add: true}, {in: 1, out: 1}, {in: 1, add: true}, {out: 1, fbIn: true, fbOut: true}, {in: 1, add: true}},                   // 15
	{{out: 1, fbIn: true, fbOut: true}, {in: 1, out: 1}, {out: 2}, {in: 2, out: 1, add: true}, {out: 1, add: true}, {in: 1, add: true}},           // 16
	{{out: 1}, {in: 1, out: 1}, {out: 2}, {in: 2, out: 1, add: true}, {out: 1, add: true, fbIn: true, fbOut: true}, {in: 1, add: true}},           // 17
	{{out: 1}, {in: 1, out: 1}, {in: 1, out: 1}, {out: 1, add: true, fbIn: true, fbOut: true}, {out: 1, add: true}, {in: 1, add: true}},           // 18
	{{out: 1, fbIn: true, fbOut: true}, {in: 1, add: true}, {in: 1, add: true}, {out: 1}, {in: 1, out: 1}, {in: 1, add: true}},                    // 19
	{{out: 1}, {out: 1, add: true}, {in: 1, add: true}, {out: 1, fbIn: true, fbOut: true}, {in: 1, add: true}, {in: 1, add: true}},                // 20
	{{out: 1}, {in: 1, add: true}, {in: 1, add: true}, {out: 1, fbIn: true, fbOut: true}, {in: 1, add: true}, {in: 1, add: true}},                 // 21
	{{out: 1, fbIn: true, fbOut: true}, {in: 1, add: true}, {in: 1, add: true}, {in: 1, add: true}, {out: 1}, {in: 1, add: true}},                 // 22
	{{out: 1, fbIn: true, fbOut: true}, {in: 1, add: true}, {in: 1, add: true}, {out: 1}, {in: 1, add: true}, {add: true}},                        // 23
	{{out: 1, fbIn: true, fbOut: true}, {in: 1, add: true}, {in: 1, add: true}, {in: 1, add: true}, {add: true}, {add: true}},                     // 24
	{{out: 1, fbIn: true, fbOut: true}, {in: 1, add: true}, {in: 1, add: true}, {add: true}, {add: true}, {add: true}},                            // 25
	{{out: 1, fbIn: true, fbOut: true}, {out: 1, add: true}, {in: 1, add: true}, {out: 1}, {in: 1, add: true}, {add: true}},                       // 26
	{{out: 1}, {out: 1, add: true}, {in: 1, add: true}, {out: 1, fbIn: true, fbOut: true}, {in: 1, add: true}, {add: true}},                       // 27
	{{add: true}, {out: 1, fbIn: true, fbOut: true}, {in: 1, out: 1}, {in: 1, add: true}, {out: 1}, {in: 1, add: true}},                           // 28
	{{out: 1, fbIn: true, fbOut: true}, {in: 1, add: true}, {out: 1}, {in: 1, add: true}, {add: true}, {add: true}},                               // 29
	{{add: true}, {out: 1, fbIn: true, fbOut: true}, {in: 1, out: 1}, {in: 1, add: true}, {add: true}, {add: true}},                               // 30
	{{out: 1, fbIn: true, fbOut: true}, {in: 1, add: true}, {add: true}, {add: true}, {add: true}, {add: true}},                                   // 31
	{{add: true, fbIn: true, fbOut: true}, {add: true}, {add: true}, {add: true}, {add: true}, {add: true}},                                       // 32
}

// carrierCount returns how many operators of an algorithm write to the
// voice output.
func carrierCount(alg int) int {
	n := 0
	for _, r := range algorithms[alg] {
		if r.out == busOut {
			n++
		}
	}
	return n
}

// opParams is the per-block state of one operator.
type opParams struct {
	gain  [2]int32 // previous and current block gain, Q24
	phase int32    // one cycle per 2^24
	freq  int32    // phase increment per sample
}

// gainStep returns the per-sample gain increment that moves gain1 to gain2
// over one block.
func gainStep(gain1, gain2 int32) int32 {
	return (gain2 - gain1 + blockSize>>1) >> lgBlockSize
}

// computePure renders an unmodulated sine operator.
func computePure(t *Tables, out []int32, phase, freq, gain1, gain2 int32, add bool) {
	dGain := gainStep(gain1, gain2)
	gain := gain1
	out = out[:blockSize]
	for i := range out {
		gain += dGain
		y := int32((int64(t.Sin(phase)) * int64(gain)) >> 24)
		if add {
			out[i] += y
		} else {
			out[i] = y
		}
		phase += freq
	}
}

// computeModulated renders an operator phase modulated by in. in and out
// may be the same buffer.
func computeModulated(t *Tables, out, in []int32, phase, freq, gain1, gain2 int32, add bool) {
	dGain := gainStep(gain1, gain2)
	gain := gain1
	out = out[:blockSize]
	in = in[:blockSize]
	for i := range out {
		gain += dGain
		y := int32((int64(t.Sin(phase+in[i])) * int64(gain)) >> 24)
		if add {
			out[i] += y
		} else {
			out[i] = y
		}
		phase += freq
	}
}

// computeFeedback renders an operator modulated by the average of its own
// last two output samples, attenuated by shift.
func computeFeedback(t *Tables, out []int32, phase, freq, gain1, gain2 int32, fb *[2]int32, shift int, add bool) {
	dGain := gainStep(gain1, gain2)
	gain := gain1
	y0, y := fb[0], fb[1]
	out = out[:blockSize]
	for i := range out {
		gain += dGain
		scaled := (y0 + y) >> (shift + 1)
		y0 = y
		y = int32((int64(t.Sin(phase+scaled)) * int64(gain)) >> 24)
		if add {
			out[i] += y
		} else {
			out[i] = y
		}
		phase += freq
	}
	fb[0], fb[1] = y0, y
}

// opBuses is the scratch space for the two modulator buses.
type opBuses struct {
	bus [2][blockSize]int32
}

// computeAlgorithm renders one block of a voice into out (accumulating)
// and advances every operator's phase by a block.
func computeAlgorithm(t *Tables, out []int32, buses *opBuses, params *[6]opParams, alg int, fb *[2]int32, fbShift int) {
	routes := &algorithms[alg]
	hasContents := [3]bool{true, false, false}
	buf := func(b uint8) []int32 {
		if b == busOut {
			return out
		}
		return buses.bus[b-1][:]
	}

	for op := 0; op < 6; op++ {
		r := routes[op]
		p := &params[op]
		add := r.add
		gain1, gain2 := p.gain[0], p.gain[1]
		if gain1 >= opLevelThreshold || gain2 >= opLevelThreshold {
			if !hasContents[r.out] {
				add = false
			}
			dst := buf(r.out)
			switch {
			case r.in != busOut && hasContents[r.in]:
				computeModulated(t, dst, buf(r.in), p.phase, p.freq, gain1, gain2, add)
			case r.fbIn && r.fbOut && fbShift < feedbackOff:
				computeFeedback(t, dst, p.phase, p.freq, gain1, gain2, fb, fbShift, add)
			default:
				computePure(t, dst, p.phase, p.freq, gain1, gain2, add)
			}
			hasContents[r.out] = true
		} else if !add {
			hasContents[r.out] = false
		}
		p.phase += p.freq << lgBlockSize
	}
}

package emu

import (
	"errors"
	"fmt"
	"strings"
)

// Patch sizes.
const (
	BulkSize  = 128 // packed voice, as stored in a 32-voice bank
	PatchSize = 156 // unpacked voice parameters
	VCEDSize  = 155 // single voice edit buffer, PatchSize minus the op mask

	opBlockSize   = 21
	bulkBlockSize = 17
)

// Offsets within an unpacked operator block.
const (
	opEGRate       = 0 // 4 rates
	opEGLevel      = 4 // 4 levels
	opBreakpoint   = 8
	opLeftDepth    = 9
	opRightDepth   = 10
	opLeftCurve    = 11
	opRightCurve   = 12
	opRateScaling  = 13
	opAmpModSens   = 14
	opVelocitySens = 15
	opOutputLevel  = 16
	opMode         = 17
	opCoarse       = 18
	opFine         = 19
	opDetune       = 20
)

// Offsets of the global parameters in an unpacked patch.
const (
	offPitchEGRate      = 126 // 4 rates
	offPitchEGLevel     = 130 // 4 levels
	offAlgorithm        = 134
	offFeedback         = 135
	offOscSync          = 136
	offLFO              = 137 // speed, delay, PMD, AMD, sync, wave
	offLFOPitchModDepth = 139
	offPitchModSens     = 143
	offTranspose        = 144
	offName             = 145
	nameLen             = 10
	offOpEnable         = 155
)

// ErrBulkSize is returned when a packed voice is not BulkSize bytes.
var ErrBulkSize = errors.New("packed voice must be 128 bytes")

// ErrPatchSize is returned when an unpacked voice has the wrong length.
var ErrPatchSize = errors.New("unpacked voice must be 155 or 156 bytes")

// patchMax is the largest legal value of every unpacked byte except the
// operator enable mask.
var patchMax = func() [PatchSize - 1]byte {
	var m [PatchSize - 1]byte
	op := [opBlockSize]byte{99, 99, 99, 99, 99, 99, 99, 99, 99, 99, 99, 3, 3, 7, 3, 7, 99, 1, 31, 99, 14}
	for i := 0; i < 6; i++ {
		copy(m[i*opBlockSize:], op[:])
	}
	global := []byte{
		99, 99, 99, 99, 99, 99, 99, 99, // pitch EG
		31, 7, 1, 99, 99, 99, 99, 1, 5, 7, 48, // algorithm .. transpose
		126, 126, 126, 126, 126, 126, 126, 126, 126, 126, // name
	}
	copy(m[6*opBlockSize:], global)
	return m
}()

// Patch is an unpacked voice. Operator blocks are stored OP6 first.
type Patch [PatchSize]byte

// UnpackResult is the outcome of UnpackPatch.
type UnpackResult struct {
	Patch Patch
	// Clamped counts fields that were out of range and forced to their
	// maximum.
	Clamped int
}

// UnpackPatch expands a 128-byte packed voice into the 156-byte layout and
// clamps every field. Out of range data is clamped, never rejected; the only
// error is a wrong input length.
func UnpackPatch(bulk []byte) (UnpackResult, error) {
	var res UnpackResult
	if len(bulk) != BulkSize {
		return res, fmt.Errorf("%w: got %d", ErrBulkSize, len(bulk))
	}
	p := &res.Patch
	for op := 0; op < 6; op++ {
		b := bulk[op*bulkBlockSize : (op+1)*bulkBlockSize]
		o := p[op*opBlockSize : (op+1)*opBlockSize]
		copy(o, b[:11])
		o[opLeftCurve] = b[11] & 3
		o[opRightCurve] = (b[11] >> 2) & 3
		o[opRateScaling] = b[12] & 7
		o[opDetune] = b[12] >> 3
		o[opAmpModSens] = b[13] & 3
		o[opVelocitySens] = b[13] >> 2
		o[opOutputLevel] = b[14]
		o[opMode] = b[15] & 1
		o[opCoarse] = b[15] >> 1
		o[opFine] = b[16]
	}
	copy(p[offPitchEGRate:offFeedback], bulk[102:111])
	p[offFeedback] = bulk[111] & 7
	p[offOscSync] = bulk[111] >> 3
	copy(p[offLFO:offLFO+4], bulk[112:116])
	p[offLFO+lfoParamSync] = bulk[116] & 1
	p[offLFO+lfoParamWave] = (bulk[116] >> 1) & 7
	p[offPitchModSens] = bulk[116] >> 4
	copy(p[offTranspose:offOpEnable], bulk[117:128])
	p[offOpEnable] = 0x3f

	res.Clamped = p.Clamp()
	return res, nil
}

// PackPatch is the inverse of UnpackPatch.
func PackPatch(p *Patch) [BulkSize]byte {
	var bulk [BulkSize]byte
	for op := 0; op < 6; op++ {
		o := p[op*opBlockSize : (op+1)*opBlockSize]
		b := bulk[op*bulkBlockSize : (op+1)*bulkBlockSize]
		copy(b[:11], o[:11])
		b[11] = o[opLeftCurve] | o[opRightCurve]<<2
		b[12] = o[opRateScaling] | o[opDetune]<<3
		b[13] = o[opAmpModSens] | o[opVelocitySens]<<2
		b[14] = o[opOutputLevel]
		b[15] = o[opMode] | o[opCoarse]<<1
		b[16] = o[opFine]
	}
	copy(bulk[102:111], p[offPitchEGRate:offFeedback])
	bulk[111] = p[offFeedback] | p[offOscSync]<<3
	copy(bulk[112:116], p[offLFO:offLFO+4])
	bulk[116] = p[offLFO+lfoParamSync] | p[offLFO+lfoParamWave]<<1 | p[offPitchModSens]<<4
	copy(bulk[117:128], p[offTranspose:offOpEnable])
	return bulk
}

// PatchFromVCED builds a patch from a 155-byte single voice edit buffer or
// a full 156-byte unpacked patch, clamping out of range fields. It returns
// the patch and the number of clamped fields.
func PatchFromVCED(data []byte) (Patch, int, error) {
	var p Patch
	if len(data) != VCEDSize && len(data) != PatchSize {
		return p, 0, fmt.Errorf("%w: got %d", ErrPatchSize, len(data))
	}
	copy(p[:], data)
	if len(data) == VCEDSize {
		p[offOpEnable] = 0x3f
	}
	n := p.Clamp()
	return p, n, nil
}

// Clamp forces every field to its legal range and returns how many fields
// were changed. The operator enable byte is kept as is.
func (p *Patch) Clamp() int {
	n := 0
	for i, m := range patchMax {
		if p[i] > m {
			p[i] = m
			n++
		}
	}
	return n
}

// Operator returns the parameter block of operator op, where 0 is OP6 and
// 5 is OP1.
func (p *Patch) Operator(op int) []byte {
	return p[op*opBlockSize : (op+1)*opBlockSize]
}

// Name returns the voice name with trailing spaces removed.
func (p Patch) Name() string {
	return strings.TrimRight(string(p[offName:offName+nameLen]), " \x00")
}

// Algorithm returns the 0-based algorithm number.
func (p Patch) Algorithm() int { return int(p[offAlgorithm]) }

// Feedback returns the feedback amount 0-7.
func (p Patch) Feedback() int { return int(p[offFeedback]) }

// LFOParams returns the six LFO bytes: speed, delay, pitch mod depth, amp
// mod depth, key sync and waveform.
func (p Patch) LFOParams() [6]byte {
	var l [6]byte
	copy(l[:], p[offLFO:offLFO+6])
	return l
}

// OperatorEnabled reports the stored on/off bit for operator op (0 = OP6).
// The engine keeps the byte for format compatibility but does not use it to
// mute operators.
func (p Patch) OperatorEnabled(op int) bool {
	return p[offOpEnable]&(1<<(5-op)) != 0
}

// defaultBulk is the built-in "E.PIANO 1" voice.
var defaultBulk = [BulkSize]byte{
	95, 29, 20, 50, 99, 95, 0, 0, 41, 0, 19, 0, 115, 24, 79, 2, 0,
	95, 20, 20, 50, 99, 95, 0, 0, 0, 0, 0, 0, 3, 0, 99, 2, 0,
	95, 29, 20, 50, 99, 95, 0, 0, 0, 0, 0, 0, 59, 24, 89, 2, 0,
	95, 20, 20, 50, 99, 95, 0, 0, 0, 0, 0, 0, 59, 8, 99, 2, 0,
	95, 50, 35, 78, 99, 75, 0, 0, 0, 0, 0, 0, 59, 28, 58, 28, 0,
	96, 25, 25, 67, 99, 75, 0, 0, 0, 0, 0, 0, 83, 8, 99, 2, 0,
	94, 67, 95, 60, 50, 50, 50, 50, 4, 6, 34, 33, 0, 0, 56, 24,
	69, 46, 80, 73, 65, 78, 79, 32, 49, 32,
}

// DefaultPatch returns the voice loaded at startup.
func DefaultPatch() Patch {
	res, _ := UnpackPatch(defaultBulk[:])
	return res.Patch
}

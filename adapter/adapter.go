// Package adapter exposes a synth to Lua scripts for offline rendering.
//
// Scripts drive the synth with global functions and render audio in
// between; rendered samples go to the adapter's writer as 16-bit
// little-endian mono.
//
//	note_on(note [, velocity])   velocity defaults to 100
//	note_off(note)
//	cc(controller, value)
//	pitch_bend(value)            0-16383, 8192 is centre
//	program(n)                   bank voice 0-31
//	midi(b1, b2, ...)            raw channel or sysex message
//	load_patch(path [, voice])   voice or bank file
//	render(samples)
//	render_ms(milliseconds)
//	sample_rate()
//	voices()                     active voice count
package adapter

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/spf13/afero"
	"github.com/user-none/dx7emu/cli"
	"github.com/user-none/dx7emu/emu"
	"github.com/user-none/dx7emu/ui"
	lua "github.com/yuin/gopher-lua"
)

// renderChunk is the number of samples rendered per write.
const renderChunk = 1024

// Script runs Lua scripts against a synth.
type Script struct {
	synth *emu.Synth
	fs    afero.Fs
	out   io.Writer

	buf      []int16
	bytes    []byte
	rendered int64
}

// New creates a script host for s. Patch files are read from fs and audio
// is written to out.
func New(s *emu.Synth, fs afero.Fs, out io.Writer) *Script {
	return &Script{
		synth: s,
		fs:    fs,
		out:   out,
		buf:   make([]int16, renderChunk),
		bytes: make([]byte, 0, renderChunk*2),
	}
}

// Rendered returns the number of samples written so far.
func (sc *Script) Rendered() int64 {
	return sc.rendered
}

// RunString executes a script held in memory.
func (sc *Script) RunString(ctx context.Context, src string) error {
	L := sc.newState(ctx)
	defer L.Close()
	return L.DoString(src)
}

// RunFile executes the script at path, read from the adapter's fs.
func (sc *Script) RunFile(ctx context.Context, path string) error {
	src, err := afero.ReadFile(sc.fs, path)
	if err != nil {
		return err
	}
	L := sc.newState(ctx)
	defer L.Close()
	fn, err := L.Load(bytes.NewReader(src), path)
	if err != nil {
		return err
	}
	L.Push(fn)
	return L.PCall(0, lua.MultRet, nil)
}

func (sc *Script) newState(ctx context.Context) *lua.LState {
	L := lua.NewState()
	L.SetContext(ctx)
	for name, fn := range map[string]lua.LGFunction{
		"note_on":     sc.noteOn,
		"note_off":    sc.noteOff,
		"cc":          sc.controlChange,
		"pitch_bend":  sc.pitchBend,
		"program":     sc.program,
		"midi":        sc.midi,
		"load_patch":  sc.loadPatch,
		"render":      sc.render,
		"render_ms":   sc.renderMs,
		"sample_rate": sc.sampleRate,
		"voices":      sc.voices,
	} {
		L.SetGlobal(name, L.NewFunction(fn))
	}
	return L
}

func checkByte(L *lua.LState, n int) int {
	v := L.CheckInt(n)
	if v < 0 || v > 127 {
		L.ArgError(n, "must be 0-127")
	}
	return v
}

func (sc *Script) noteOn(L *lua.LState) int {
	note := checkByte(L, 1)
	velocity := L.OptInt(2, 100)
	sc.synth.NoteOn(note, velocity)
	return 0
}

func (sc *Script) noteOff(L *lua.LState) int {
	sc.synth.NoteOff(checkByte(L, 1))
	return 0
}

func (sc *Script) controlChange(L *lua.LState) int {
	sc.synth.ControlChange(checkByte(L, 1), checkByte(L, 2))
	return 0
}

func (sc *Script) pitchBend(L *lua.LState) int {
	v := L.CheckInt(1)
	if v < 0 || v > 0x3FFF {
		L.ArgError(1, "must be 0-16383")
	}
	sc.synth.PitchBend(v&0x7F, v>>7)
	return 0
}

func (sc *Script) program(L *lua.LState) int {
	sc.synth.ProgramChange(L.CheckInt(1))
	return 0
}

func (sc *Script) midi(L *lua.LState) int {
	msg := make([]byte, L.GetTop())
	for i := range msg {
		v := L.CheckInt(i + 1)
		if v < 0 || v > 0xFF {
			L.ArgError(i+1, "must be a byte")
		}
		msg[i] = byte(v)
	}
	sc.synth.HandleMIDI(msg)
	return 0
}

func (sc *Script) loadPatch(L *lua.LState) int {
	path := L.CheckString(1)
	voice := L.OptInt(2, 0)
	pf, err := cli.LoadPatchFile(sc.fs, path)
	if err == nil {
		err = pf.Apply(sc.synth, voice)
	}
	if err != nil {
		L.RaiseError("load_patch: %v", err)
		return 0
	}
	p := sc.synth.Patch()
	L.Push(lua.LString(p.Name()))
	return 1
}

func (sc *Script) render(L *lua.LState) int {
	n := L.CheckInt(1)
	if n < 0 {
		L.ArgError(1, "must not be negative")
	}
	if err := sc.renderSamples(n); err != nil {
		L.RaiseError("render: %v", err)
	}
	return 0
}

func (sc *Script) renderMs(L *lua.LState) int {
	ms := float64(L.CheckNumber(1))
	if ms < 0 {
		L.ArgError(1, "must not be negative")
	}
	n := int(ms * float64(sc.synth.SampleRate()) / 1000)
	if err := sc.renderSamples(n); err != nil {
		L.RaiseError("render_ms: %v", err)
	}
	return 0
}

func (sc *Script) sampleRate(L *lua.LState) int {
	L.Push(lua.LNumber(sc.synth.SampleRate()))
	return 1
}

func (sc *Script) voices(L *lua.LState) int {
	L.Push(lua.LNumber(sc.synth.ActiveVoices()))
	return 1
}

func (sc *Script) renderSamples(n int) error {
	for n > 0 {
		chunk := sc.buf[:min(n, renderChunk)]
		sc.synth.GetSamples(chunk)
		sc.bytes = ui.EncodeSamples(sc.bytes[:0], chunk)
		if _, err := sc.out.Write(sc.bytes); err != nil {
			return fmt.Errorf("writing audio: %w", err)
		}
		sc.rendered += int64(len(chunk))
		n -= len(chunk)
	}
	return nil
}

package emu

import (
	"errors"
	"fmt"
	"log"
	"sync"
)

// Engine defaults.
const (
	DefaultSampleRate = 48000
	DefaultVoices     = 16
	MaxVoices         = 64
)

// Controller numbers with fixed meanings.
const (
	ControllerCutoff    = 1
	ControllerResonance = 2
	ControllerFilter3   = 3
	ControllerSustain   = 64
)

// Linear scale factors from 7-bit controller values to filter controls.
const (
	cutoffBase  = 142365917
	cutoffScale = 917175
	resScale    = 528416
)

// Config configures a Synth.
type Config struct {
	SampleRate int
	// Voices is the polyphony, 1 to MaxVoices.
	Voices int
	// Logger receives diagnostics. Nil disables logging.
	Logger *log.Logger
	// Tables may be shared between synths. Nil builds a new set.
	Tables *Tables
}

// VoiceState is the lifecycle state of a voice slot.
type VoiceState uint8

const (
	VoiceFree VoiceState = iota
	VoiceHeld
	VoiceSustained
	VoiceReleasing
)

func (s VoiceState) String() string {
	switch s {
	case VoiceFree:
		return "free"
	case VoiceHeld:
		return "held"
	case VoiceSustained:
		return "sustained"
	case VoiceReleasing:
		return "releasing"
	}
	return fmt.Sprintf("VoiceState(%d)", uint8(s))
}

// VoiceStatus describes one voice slot.
type VoiceStatus struct {
	Slot  int
	Note  int
	State VoiceState
}

// Stats counts events that are handled silently.
type Stats struct {
	NotesDropped    uint64 // note-on with every voice held
	VoicesStolen    uint64
	VoicesReclaimed uint64 // released voices returned to the pool
	FieldsClamped   uint64 // out of range patch bytes
	SysexIgnored    uint64
	Blocks          uint64
}

type voiceSlot struct {
	state  VoiceState
	voice  *Voice
	serial uint64 // allocation order, for stealing the oldest
}

// Synth is the voice manager and mixer. All methods are safe for concurrent
// use; one mutex serialises events against rendering.
type Synth struct {
	mu sync.Mutex

	tables   *Tables
	contexts *ContextCache
	ctx      *Context
	logger   *log.Logger

	slots    []voiceSlot
	nextSlot int
	serial   uint64
	fading   []*Voice

	patch   Patch
	bank    *Bank
	program int

	lfo           *LFO
	ctrls         *Controllers
	filter        *Filter
	filterControl [3]int32
	sustain       bool

	mix      [blockSize]int32
	filtered [blockSize]int32
	block    [blockSize]int16
	extra    [blockSize]int16
	extraLen int

	stats Stats
}

// ErrVoices is returned for a polyphony outside 1..MaxVoices.
var ErrVoices = errors.New("voice count out of range")

// New creates a synth with the default patch loaded.
func New(cfg Config) (*Synth, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.Voices == 0 {
		cfg.Voices = DefaultVoices
	}
	if cfg.Voices < 0 || cfg.Voices > MaxVoices {
		return nil, fmt.Errorf("%w: %d", ErrVoices, cfg.Voices)
	}
	tables := cfg.Tables
	if tables == nil {
		tables = NewTables()
	}
	contexts, err := NewContextCache(contextCacheSize)
	if err != nil {
		return nil, err
	}
	ctx := contexts.Get(cfg.SampleRate)

	s := &Synth{
		tables:   tables,
		contexts: contexts,
		ctx:      ctx,
		logger:   cfg.Logger,
		slots:    make([]voiceSlot, cfg.Voices),
		lfo:      NewLFO(ctx, tables),
		ctrls:    NewControllers(),
		filter:   NewFilter(ctx, tables),
	}
	s.filterControl[0] = filterCutoffOpen
	s.loadPatch(DefaultPatch())
	return s, nil
}

func (s *Synth) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

// SampleRate returns the current output rate.
func (s *Synth) SampleRate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx.SampleRate
}

// SetSampleRate switches the output rate. Voices already sounding keep the
// rate they started with.
func (s *Synth) SetSampleRate(rate int) {
	if rate <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = s.contexts.Get(rate)
	s.filter.SetContext(s.ctx)
	s.lfo.SetContext(s.ctx)
	s.lfo.Reset(s.patch.LFOParams())
}

// LoadPatch installs p as the template for new notes and resets the LFO
// from its parameters. Out of range fields are clamped.
func (s *Synth) LoadPatch(p Patch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadPatch(p)
}

func (s *Synth) loadPatch(p Patch) {
	if n := p.Clamp(); n > 0 {
		s.stats.FieldsClamped += uint64(n)
		s.logf("Warning: patch %q: %d fields clamped", p.Name(), n)
	}
	s.patch = p
	s.lfo.Reset(p.LFOParams())
}

// Patch returns a copy of the active patch.
func (s *Synth) Patch() Patch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.patch
}

// LoadBank makes b the source for ProgramChange and loads its first voice.
func (s *Synth) LoadBank(b *Bank) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bank = b
	s.program = 0
	s.loadPatch(b.Voices[0])
}

// ProgramChange loads voice p (0-31) of the current bank. Without a bank
// the event is ignored.
func (s *Synth) ProgramChange(p int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bank == nil {
		s.logf("program change %d ignored: no bank loaded", p)
		return
	}
	p = clampParam(p, BankVoices-1)
	s.program = p
	s.loadPatch(s.bank.Voices[p])
}

// Program returns the bank index last selected.
func (s *Synth) Program() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.program
}

// NoteOn starts a note. Velocity 0 is a note off.
func (s *Synth) NoteOn(note, velocity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	note = clampParam(note, 127)
	if velocity <= 0 {
		s.noteOff(note)
		return
	}

	idx := s.allocate()
	if idx < 0 {
		s.stats.NotesDropped++
		s.logf("note %d dropped: all %d voices held", note, len(s.slots))
		return
	}
	sl := &s.slots[idx]
	if sl.state != VoiceFree && sl.voice != nil {
		sl.voice.silence()
		s.fading = append(s.fading, sl.voice)
		s.stats.VoicesStolen++
	}

	s.lfo.KeyDown()
	s.serial++
	sl.voice = NewVoice(s.ctx, s.tables, &s.patch, note, clampParam(velocity, 127))
	sl.state = VoiceHeld
	sl.serial = s.serial
	s.nextSlot = (idx + 1) % len(s.slots)
}

// allocate picks a slot for a new note: the next free slot after the last
// allocation, else the oldest slot whose key is not held. Returns -1 when
// every key is held.
func (s *Synth) allocate() int {
	n := len(s.slots)
	for i := 0; i < n; i++ {
		idx := (s.nextSlot + i) % n
		if s.slots[idx].state == VoiceFree {
			return idx
		}
	}
	victim := -1
	for i := range s.slots {
		if s.slots[i].state == VoiceHeld {
			continue
		}
		if victim < 0 || s.slots[i].serial < s.slots[victim].serial {
			victim = i
		}
	}
	return victim
}

// NoteOff releases every held voice playing note, or marks it sustained
// while the pedal is down.
func (s *Synth) NoteOff(note int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.noteOff(note)
}

func (s *Synth) noteOff(note int) {
	for i := range s.slots {
		sl := &s.slots[i]
		if sl.state != VoiceHeld || sl.voice.Note() != note {
			continue
		}
		if s.sustain {
			sl.state = VoiceSustained
		} else {
			sl.voice.KeyUp()
			sl.state = VoiceReleasing
		}
	}
}

// ControlChange handles a MIDI controller. Controllers 1-3 drive the filter,
// 64 is the sustain pedal; every value is also stored for lookup.
func (s *Synth) ControlChange(controller, value int) {
	if controller < 0 || controller > 127 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controlChange(controller, int32(clampParam(value, 127)))
}

func (s *Synth) controlChange(controller int, value int32) {
	switch controller {
	case ControllerCutoff:
		s.filterControl[0] = cutoffBase + value*cutoffScale
	case ControllerResonance:
		s.filterControl[1] = value * resScale
	case ControllerFilter3:
		s.filterControl[2] = value * resScale
	case ControllerSustain:
		s.sustain = value != 0
		if !s.sustain {
			for i := range s.slots {
				sl := &s.slots[i]
				if sl.state == VoiceSustained {
					sl.voice.KeyUp()
					sl.state = VoiceReleasing
				}
			}
		}
	}
	s.ctrls.Set(controller, value)
}

// PitchBend sets the bend wheel from its two 7-bit halves.
func (s *Synth) PitchBend(lsb, msb int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctrls.Set(ControllerPitchBend, int32(lsb&0x7F|(msb&0x7F)<<7))
}

// Controller returns the stored value of a controller, including
// ControllerPitchBend.
func (s *Synth) Controller(n int) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrls.Get(n)
}

// SysEx handles a system exclusive message with or without F0/F7. Single
// voice dumps replace the active patch and 32-voice dumps replace the bank.
// Anything else is ignored.
func (s *Synth) SysEx(data []byte) {
	body := trimSysex(data)
	switch sysexFormat(body) {
	case formatVoice:
		p, _, err := ParseVoiceSysex(body)
		if err != nil && !errors.Is(err, ErrChecksum) {
			s.ignoreSysex(err)
			return
		}
		if err != nil {
			s.logf("Warning: %v", err)
		}
		s.LoadPatch(p)
	case formatBank:
		b, err := ParseBank(body)
		if b == nil {
			s.ignoreSysex(err)
			return
		}
		if err != nil {
			s.logf("Warning: %v", err)
		}
		s.LoadBank(b)
	default:
		s.ignoreSysex(ErrSysexHeader)
	}
}

func (s *Synth) ignoreSysex(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.SysexIgnored++
	s.logf("sysex ignored: %v", err)
}

// Stats returns a snapshot of the diagnostic counters.
func (s *Synth) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// VoiceStatus lists every slot in order.
func (s *Synth) VoiceStatus() []VoiceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]VoiceStatus, len(s.slots))
	for i, sl := range s.slots {
		out[i] = VoiceStatus{Slot: i, Note: -1, State: sl.state}
		if sl.state != VoiceFree {
			out[i].Note = sl.voice.Note()
		}
	}
	return out
}

// ActiveVoices returns the number of slots in use.
func (s *Synth) ActiveVoices() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sl := range s.slots {
		if sl.state != VoiceFree {
			n++
		}
	}
	return n
}

// GetSamples fills out with mono 16-bit samples. Samples rendered beyond
// len(out) are kept for the next call.
func (s *Synth) GetSamples(out []int16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := copy(out, s.extra[:s.extraLen])
	if s.extraLen > len(out) {
		copy(s.extra[:], s.extra[len(out):s.extraLen])
		s.extraLen -= len(out)
		return
	}
	s.extraLen = 0

	for i < len(out) {
		s.renderBlock(s.block[:])
		n := copy(out[i:], s.block[:])
		if n < blockSize {
			s.extraLen = copy(s.extra[:], s.block[n:])
		}
		i += n
	}
}

// Render returns the next n samples.
func (s *Synth) Render(n int) []int16 {
	out := make([]int16, n)
	s.GetSamples(out)
	return out
}

// renderBlock mixes every voice, filters and clips one block.
func (s *Synth) renderBlock(dst []int16) {
	clear(s.mix[:])
	lfoValue := s.lfo.Sample()
	lfoDelay := s.lfo.Delay()
	for i := range s.slots {
		if sl := &s.slots[i]; sl.state != VoiceFree {
			sl.voice.Compute(s.mix[:], lfoValue, lfoDelay, s.ctrls)
		}
	}
	for _, v := range s.fading {
		v.Compute(s.mix[:], lfoValue, lfoDelay, s.ctrls)
	}
	clear(s.fading)
	s.fading = s.fading[:0]

	s.filter.Process(s.mix[:], s.filtered[:], s.filterControl[0], s.filterControl[1])
	for j, v := range s.filtered {
		dst[j] = clipSample(v)
	}
	s.reclaim()
	s.stats.Blocks++
}

// reclaim frees released voices that have gone silent.
func (s *Synth) reclaim() {
	for i := range s.slots {
		sl := &s.slots[i]
		if sl.state == VoiceReleasing && sl.voice.Done() {
			sl.state = VoiceFree
			sl.voice = nil
			s.stats.VoicesReclaimed++
		}
	}
}

// clipSample scales a Q24 mix value to 16 bits with hard saturation.
func clipSample(v int32) int16 {
	v >>= 4
	switch {
	case v < -(1 << 24):
		return -32768
	case v >= 1<<24:
		return 32767
	}
	return int16(v >> 9)
}

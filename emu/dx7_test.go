package emu

import (
	"errors"
	"sync"
	"testing"
)

// newTestSynth creates a synth sharing the package test tables.
func newTestSynth(t *testing.T, voices int) *Synth {
	t.Helper()
	s, err := New(Config{SampleRate: 48000, Voices: voices, Tables: testTables})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// sinePatch returns a patch where only OP1 sounds, as an unmodulated sine
// with instant attack and the given release rate.
func sinePatch(release byte) Patch {
	p := DefaultPatch()
	for op := 0; op < 6; op++ {
		o := p.Operator(op)
		for i := 0; i < 4; i++ {
			o[opEGRate+i] = 99
			o[opEGLevel+i] = 99
		}
		o[opEGRate+3] = release
		o[opEGLevel+3] = 0
		o[opBreakpoint] = 39
		o[opLeftDepth] = 0
		o[opRightDepth] = 0
		o[opRateScaling] = 0
		o[opVelocitySens] = 0
		o[opOutputLevel] = 0
		o[opMode] = 0
		o[opCoarse] = 1
		o[opFine] = 0
		o[opDetune] = 7
	}
	p.Operator(5)[opOutputLevel] = 85
	for i := 0; i < 4; i++ {
		p[offPitchEGRate+i] = 99
		p[offPitchEGLevel+i] = 50
	}
	p[offAlgorithm] = 31
	p[offFeedback] = 0
	p[offLFO+lfoParamPMD] = 0
	p[offTranspose] = 24
	return p
}

func peakAbs(samples []int16) int {
	m := 0
	for _, v := range samples {
		a := int(v)
		if a < 0 {
			a = -a
		}
		m = max(m, a)
	}
	return m
}

func maxStep(samples []int16) int {
	m := 0
	for i := 1; i < len(samples); i++ {
		d := int(samples[i]) - int(samples[i-1])
		if d < 0 {
			d = -d
		}
		m = max(m, d)
	}
	return m
}

func TestNew_VoiceRange(t *testing.T) {
	for _, n := range []int{-1, MaxVoices + 1} {
		if _, err := New(Config{Voices: n, Tables: testTables}); !errors.Is(err, ErrVoices) {
			t.Errorf("voices %d: expected ErrVoices, got %v", n, err)
		}
	}
	s, err := New(Config{Tables: testTables})
	if err != nil {
		t.Fatal(err)
	}
	if s.SampleRate() != DefaultSampleRate {
		t.Errorf("default rate: got %d, want %d", s.SampleRate(), DefaultSampleRate)
	}
	if len(s.VoiceStatus()) != DefaultVoices {
		t.Errorf("default voices: got %d, want %d", len(s.VoiceStatus()), DefaultVoices)
	}
	if s.Patch().Name() != "E.PIANO 1" {
		t.Errorf("default patch: got %q", s.Patch().Name())
	}
}

func TestSynth_SilentWithoutNotes(t *testing.T) {
	s := newTestSynth(t, 4)
	for i, v := range s.Render(4096) {
		if v != 0 {
			t.Fatalf("sample %d: expected silence, got %d", i, v)
		}
	}
}

func TestSynth_DefaultPatchPlaysAndReclaims(t *testing.T) {
	s := newTestSynth(t, 4)
	s.NoteOn(60, 100)

	held := s.Render(9600)
	if peakAbs(held) < 100 {
		t.Fatalf("note is too quiet: peak %d", peakAbs(held))
	}

	s.NoteOff(60)
	if st := s.VoiceStatus()[0].State; st != VoiceReleasing {
		t.Errorf("expected releasing after note off, got %s", st)
	}
	released := s.Render(256)
	// No click at the key-up boundary.
	boundary := append(append([]int16{}, held[len(held)-2048:]...), released...)
	if got, limit := maxStep(boundary), 2*maxStep(held[len(held)-2048:])+8; got > limit {
		t.Errorf("key up step %d exceeds %d", got, limit)
	}

	for i := 0; i < 48000*10/blockSize && s.ActiveVoices() > 0; i++ {
		s.Render(blockSize)
	}
	if s.ActiveVoices() != 0 {
		t.Fatal("released voice was never reclaimed")
	}
	if st := s.Stats(); st.VoicesReclaimed != 1 {
		t.Errorf("expected 1 reclaimed voice, got %d", st.VoicesReclaimed)
	}
	if p := peakAbs(s.Render(4800)); p > 2 {
		t.Errorf("expected silence after reclaim, peak %d", p)
	}
}

func TestSynth_ReleaseDecaysMonotonically(t *testing.T) {
	s := newTestSynth(t, 4)
	s.LoadPatch(sinePatch(60))
	s.NoteOn(69, 127)
	held := s.Render(4096)
	if peakAbs(held) < 500 {
		t.Fatalf("sine too quiet: peak %d", peakAbs(held))
	}

	s.NoteOff(69)
	tail := s.Render(48000 * 3)
	const window = 512
	prev := peakAbs(held[len(held)-window:])
	for i := 0; i+window <= len(tail); i += window {
		p := peakAbs(tail[i : i+window])
		if p > prev+2 {
			t.Fatalf("window at %d: peak rose %d -> %d", i, prev, p)
		}
		prev = p
	}
	if prev > 2 {
		t.Errorf("release did not reach silence: final peak %d", prev)
	}
}

func TestSynth_StealsOldestReleased(t *testing.T) {
	s := newTestSynth(t, 2)
	s.NoteOn(60, 100)
	s.NoteOn(62, 100)
	s.NoteOff(60)
	s.NoteOff(62)
	s.NoteOn(64, 100)

	st := s.VoiceStatus()
	if st[0].Note != 64 || st[0].State != VoiceHeld {
		t.Errorf("slot 0: got note %d %s, want 64 held", st[0].Note, st[0].State)
	}
	if st[1].Note != 62 || st[1].State != VoiceReleasing {
		t.Errorf("slot 1: got note %d %s, want 62 releasing", st[1].Note, st[1].State)
	}
	if got := s.Stats().VoicesStolen; got != 1 {
		t.Errorf("expected 1 steal, got %d", got)
	}
}

func TestSynth_NeverStealsHeld(t *testing.T) {
	s := newTestSynth(t, 2)
	s.NoteOn(60, 100)
	s.NoteOn(62, 100)
	s.NoteOff(62)
	s.NoteOn(64, 100)

	st := s.VoiceStatus()
	if st[0].Note != 60 || st[0].State != VoiceHeld {
		t.Errorf("held note 60 was disturbed: %+v", st[0])
	}
	if st[1].Note != 64 {
		t.Errorf("expected note 64 in slot 1, got %d", st[1].Note)
	}
}

func TestSynth_DropsWhenAllHeld(t *testing.T) {
	s := newTestSynth(t, 2)
	s.NoteOn(60, 100)
	s.NoteOn(62, 100)
	s.NoteOn(64, 100)

	if got := s.Stats().NotesDropped; got != 1 {
		t.Errorf("expected 1 dropped note, got %d", got)
	}
	for _, st := range s.VoiceStatus() {
		if st.Note == 64 {
			t.Error("dropped note should not sound")
		}
	}
}

func TestSynth_PrefersFreeSlot(t *testing.T) {
	s := newTestSynth(t, 3)
	s.NoteOn(60, 100)
	s.NoteOff(60)
	s.NoteOn(62, 100)

	st := s.VoiceStatus()
	if st[0].State != VoiceReleasing || st[1].Note != 62 {
		t.Errorf("expected new note in the next free slot, got %+v", st)
	}
	if got := s.Stats().VoicesStolen; got != 0 {
		t.Errorf("expected no steals, got %d", got)
	}
}

func TestSynth_StealIsClickFree(t *testing.T) {
	s := newTestSynth(t, 1)
	s.LoadPatch(sinePatch(20))
	s.NoteOn(60, 127)
	warm := s.Render(blockSize * 9)
	steady := warm[blockSize*2:]
	d := maxStep(steady)
	a := peakAbs(steady)

	s.NoteOff(60)
	s.NoteOn(67, 127)
	after := s.Render(blockSize * 4)

	joined := append(append([]int16{}, warm[len(warm)-1]), after...)
	limit := 2*d + 4*a/blockSize + 8
	if got := maxStep(joined); got > limit {
		t.Errorf("steal step %d exceeds %d", got, limit)
	}
	if got := s.Stats().VoicesStolen; got != 1 {
		t.Errorf("expected 1 steal, got %d", got)
	}
}

func TestSynth_SustainDefersRelease(t *testing.T) {
	pedal := newTestSynth(t, 4)
	plain := newTestSynth(t, 4)
	pedal.LoadPatch(sinePatch(50))
	plain.LoadPatch(sinePatch(50))

	pedal.ControlChange(ControllerSustain, 127)
	pedal.NoteOn(60, 100)
	plain.NoteOn(60, 100)
	a := pedal.Render(4096)
	b := plain.Render(4096)

	pedal.NoteOff(60)
	if st := pedal.VoiceStatus()[0].State; st != VoiceSustained {
		t.Errorf("expected sustained, got %s", st)
	}
	a = append(a, pedal.Render(2048)...)
	b = append(b, plain.Render(2048)...)

	pedal.ControlChange(ControllerSustain, 0)
	plain.NoteOff(60)
	a = append(a, pedal.Render(8192)...)
	b = append(b, plain.Render(8192)...)

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sample %d: sustained %d, plain %d", i, a[i], b[i])
		}
	}
}

func TestSynth_VelocityZeroIsNoteOff(t *testing.T) {
	s := newTestSynth(t, 4)
	s.NoteOn(60, 100)
	s.NoteOn(60, 0)
	if st := s.VoiceStatus()[0].State; st != VoiceReleasing {
		t.Errorf("expected releasing, got %s", st)
	}
}

func TestSynth_PartialReads(t *testing.T) {
	whole := newTestSynth(t, 4)
	parts := newTestSynth(t, 4)
	whole.NoteOn(57, 90)
	parts.NoteOn(57, 90)

	want := whole.Render(100 + 28 + 1 + 63 + 65 + 200)
	var got []int16
	for _, n := range []int{100, 28, 1, 63, 65, 200} {
		got = append(got, parts.Render(n)...)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d: split read %d, whole read %d", i, got[i], want[i])
		}
	}
}

func TestSynth_Controllers(t *testing.T) {
	s := newTestSynth(t, 4)

	s.ControlChange(ControllerCutoff, 64)
	if got, want := s.filterControl[0], int32(cutoffBase+64*cutoffScale); got != want {
		t.Errorf("cutoff: got %d, want %d", got, want)
	}
	s.ControlChange(ControllerResonance, 127)
	if got, want := s.filterControl[1], int32(127*resScale); got != want {
		t.Errorf("resonance: got %d, want %d", got, want)
	}
	s.ControlChange(ControllerFilter3, 10)
	if got := s.Controller(ControllerFilter3); got != 10 {
		t.Errorf("controller 3: got %d, want 10", got)
	}
	s.ControlChange(7, 300)
	if got := s.Controller(7); got != 127 {
		t.Errorf("controller 7 should clamp to 127, got %d", got)
	}
	s.ControlChange(200, 1)

	if got := s.Controller(ControllerPitchBend); got != pitchBendCenter {
		t.Errorf("pitch bend should start centered, got %d", got)
	}
	s.PitchBend(0x7F, 0x7F)
	if got := s.Controller(ControllerPitchBend); got != 0x3FFF {
		t.Errorf("pitch bend: got %#x, want 0x3fff", got)
	}
}

func TestSynth_ResonantFilterStaysBounded(t *testing.T) {
	s := newTestSynth(t, 4)
	s.ControlChange(ControllerCutoff, 127)
	s.ControlChange(ControllerResonance, 127)
	s.NoteOn(48, 127)
	s.NoteOn(55, 127)
	out := s.Render(48000)
	if peakAbs(out) == 0 {
		t.Error("expected output through the resonant filter")
	}
}

func TestSynth_PitchBendRaisesPitch(t *testing.T) {
	countCrossings := func(bend int) int {
		s := newTestSynth(t, 1)
		s.LoadPatch(sinePatch(50))
		s.PitchBend(bend&0x7F, bend>>7)
		s.NoteOn(69, 127)
		out := s.Render(48000)[4800:]
		n := 0
		for i := 1; i < len(out); i++ {
			if out[i-1] < 0 && out[i] >= 0 {
				n++
			}
		}
		return n
	}
	center := countCrossings(pitchBendCenter)
	up := countCrossings(0x3FFF)
	if center < 390 || center > 400 {
		t.Errorf("centered A4 should cross about 396 times in 0.9s, got %d", center)
	}
	if up <= center {
		t.Errorf("bend up did not raise pitch: %d vs %d", up, center)
	}
}

func TestSynth_ProgramChange(t *testing.T) {
	s := newTestSynth(t, 4)
	s.ProgramChange(3)
	if s.Patch().Name() != "E.PIANO 1" {
		t.Error("program change without a bank should be ignored")
	}

	b, err := ParseBank(bankData(namedPatch("A"), namedPatch("B"), namedPatch("C"), namedPatch("D")))
	if err != nil {
		t.Fatal(err)
	}
	s.LoadBank(b)
	if s.Patch().Name() != "A" {
		t.Errorf("loading a bank should select voice 0, got %q", s.Patch().Name())
	}
	s.ProgramChange(3)
	if s.Patch().Name() != "D" || s.Program() != 3 {
		t.Errorf("program 3: got %q (%d)", s.Patch().Name(), s.Program())
	}
	s.ProgramChange(99)
	if s.Program() != BankVoices-1 {
		t.Errorf("program should clamp to %d, got %d", BankVoices-1, s.Program())
	}
}

func TestSynth_LoadPatchClamps(t *testing.T) {
	s := newTestSynth(t, 4)
	p := DefaultPatch()
	p[offAlgorithm] = 77
	s.LoadPatch(p)
	if got := s.Patch().Algorithm(); got != 31 {
		t.Errorf("algorithm: got %d, want 31", got)
	}
	if got := s.Stats().FieldsClamped; got != 1 {
		t.Errorf("expected 1 clamped field, got %d", got)
	}
}

func TestSynth_SysEx(t *testing.T) {
	s := newTestSynth(t, 4)

	s.SysEx(voiceSysex(namedPatch("SYX VOICE")))
	if got := s.Patch().Name(); got != "SYX VOICE" {
		t.Errorf("voice dump: got %q", got)
	}

	s.SysEx(bankSysex(bankData(namedPatch("BANK 0"), namedPatch("BANK 1"))))
	if got := s.Patch().Name(); got != "BANK 0" {
		t.Errorf("bank dump: got %q", got)
	}
	s.ProgramChange(1)
	if got := s.Patch().Name(); got != "BANK 1" {
		t.Errorf("bank program 1: got %q", got)
	}

	s.SysEx([]byte{0xF0, 0x7E, 0x00, 0x06, 0x01, 0xF7})
	s.SysEx(nil)
	if got := s.Stats().SysexIgnored; got != 2 {
		t.Errorf("expected 2 ignored messages, got %d", got)
	}
}

func TestSynth_SetSampleRate(t *testing.T) {
	s := newTestSynth(t, 4)
	s.NoteOn(60, 100)
	s.Render(1000)
	s.SetSampleRate(44100)
	if s.SampleRate() != 44100 {
		t.Errorf("rate: got %d, want 44100", s.SampleRate())
	}
	s.SetSampleRate(0)
	if s.SampleRate() != 44100 {
		t.Error("invalid rate should be ignored")
	}
	if peakAbs(s.Render(1000)) == 0 {
		t.Error("voice should keep sounding across a rate change")
	}
}

func TestSynth_ConcurrentEvents(t *testing.T) {
	s := newTestSynth(t, 8)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s.NoteOn(40+i%40, 100)
			s.ControlChange(ControllerCutoff, i%128)
			s.NoteOff(40 + (i+20)%40)
		}
	}()
	buf := make([]int16, 256)
	for i := 0; i < 200; i++ {
		s.GetSamples(buf)
	}
	wg.Wait()
	if s.ActiveVoices() > 8 {
		t.Errorf("active voices %d exceed the pool", s.ActiveVoices())
	}
}

func TestClipSample(t *testing.T) {
	tests := []struct {
		in   int32
		want int16
	}{
		{0, 0},
		{1 << 13, 1},
		{-(1 << 13), -1},
		{1<<28 - 1, 32767},
		{1 << 30, 32767},
		{-(1 << 28), -32768},
		{-(1 << 30), -32768},
	}
	for _, tt := range tests {
		if got := clipSample(tt.in); got != tt.want {
			t.Errorf("clipSample(%d): got %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestVoiceState_String(t *testing.T) {
	if VoiceSustained.String() != "sustained" {
		t.Errorf("got %q", VoiceSustained.String())
	}
	if VoiceState(9).String() != "VoiceState(9)" {
		t.Errorf("got %q", VoiceState(9).String())
	}
}

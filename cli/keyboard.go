package cli

import (
	"sync"
	"time"
)

// Instrument receives the events produced by the keyboard.
type Instrument interface {
	NoteOn(note, velocity int)
	NoteOff(note int)
	ProgramChange(p int)
}

// Key bindings. The home row plays one octave from the current base,
// with the black keys on the row above.
var noteKeys = map[byte]int{
	'a': 0, 'w': 1, 's': 2, 'e': 3, 'd': 4, 'f': 5, 't': 6,
	'g': 7, 'y': 8, 'h': 9, 'u': 10, 'j': 11, 'k': 12,
}

const (
	keyCtrlC = 3
	keyCtrlD = 4

	minOctave     = 0
	maxOctave     = 9
	velocityStep  = 16
	defaultOctave = 5
	defaultGate   = 400 * time.Millisecond
)

// Action is what the caller should do after a key.
type Action int

const (
	ActionNone Action = iota
	ActionPause
	ActionQuit
)

// Keyboard turns terminal key presses into note events. A terminal reports
// presses but not releases, so each note is released after a fixed gate
// time; pressing the same key again restarts its gate.
type Keyboard struct {
	mu       sync.Mutex
	inst     Instrument
	octave   int
	velocity int
	gate     time.Duration
	pending  map[int]*time.Timer
}

// NewKeyboard creates a keyboard playing inst. Zero values select the
// defaults.
func NewKeyboard(inst Instrument, octave, velocity int, gate time.Duration) *Keyboard {
	if octave <= 0 || octave > maxOctave {
		octave = defaultOctave
	}
	if velocity <= 0 || velocity > 127 {
		velocity = 100
	}
	if gate <= 0 {
		gate = defaultGate
	}
	return &Keyboard{
		inst:     inst,
		octave:   octave,
		velocity: velocity,
		gate:     gate,
		pending:  make(map[int]*time.Timer),
	}
}

// Octave returns the current octave.
func (k *Keyboard) Octave() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.octave
}

// Velocity returns the current note-on velocity.
func (k *Keyboard) Velocity() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.velocity
}

// Press handles one key.
func (k *Keyboard) Press(b byte) Action {
	if semitone, ok := noteKeys[b]; ok {
		k.play(semitone)
		return ActionNone
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	switch {
	case b == 'z':
		k.octave = max(k.octave-1, minOctave)
	case b == 'x':
		k.octave = min(k.octave+1, maxOctave)
	case b == '-':
		k.velocity = max(k.velocity-velocityStep, 1)
	case b == '=':
		k.velocity = min(k.velocity+velocityStep, 127)
	case b >= '1' && b <= '8':
		k.inst.ProgramChange(int(b - '1'))
	case b == ' ':
		return ActionPause
	case b == 'q', b == keyCtrlC, b == keyCtrlD:
		return ActionQuit
	}
	return ActionNone
}

func (k *Keyboard) play(semitone int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	note := k.octave*12 + semitone
	if t, ok := k.pending[note]; ok {
		t.Stop()
		k.inst.NoteOff(note)
	}
	k.inst.NoteOn(note, k.velocity)

	var t *time.Timer
	t = time.AfterFunc(k.gate, func() {
		k.mu.Lock()
		defer k.mu.Unlock()
		// A retrigger replaced this timer.
		if k.pending[note] != t {
			return
		}
		delete(k.pending, note)
		k.inst.NoteOff(note)
	})
	k.pending[note] = t
}

// Release stops every pending gate and sends its note off.
func (k *Keyboard) Release() {
	k.mu.Lock()
	defer k.mu.Unlock()
	for note, t := range k.pending {
		t.Stop()
		k.inst.NoteOff(note)
		delete(k.pending, note)
	}
}

// Held returns the notes waiting for their gate to expire.
func (k *Keyboard) Held() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.pending)
}

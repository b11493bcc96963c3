package emu

import (
	"gitlab.com/gomidi/midi/v2"
)

// HandleMIDI decodes one complete MIDI message and applies it. All channels
// are accepted. Messages the engine has no use for are ignored.
func (s *Synth) HandleMIDI(msg []byte) {
	if len(msg) == 0 {
		return
	}
	m := midi.Message(msg)
	var ch, key, vel, ctl, val, prog uint8
	var rel int16
	var abs uint16
	var data []byte

	switch {
	case m.GetNoteStart(&ch, &key, &vel):
		s.NoteOn(int(key), int(vel))
	case m.GetNoteEnd(&ch, &key):
		s.NoteOff(int(key))
	case m.GetControlChange(&ch, &ctl, &val):
		s.ControlChange(int(ctl), int(val))
	case m.GetPitchBend(&ch, &rel, &abs):
		s.PitchBend(int(abs&0x7F), int(abs>>7))
	case m.GetProgramChange(&ch, &prog):
		s.ProgramChange(int(prog))
	case m.GetSysEx(&data):
		s.SysEx(data)
	}
}

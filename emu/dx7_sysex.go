package emu

import (
	"errors"
	"fmt"
)

// Yamaha system exclusive framing.
const (
	sysexStart     = 0xF0
	sysexEnd       = 0xF7
	sysexYamaha    = 0x43
	sysexHeaderLen = 5 // 43 0n ff hh ll

	formatVoice = 0x00 // single voice (VCED)
	formatBank  = 0x09 // 32 voices (VMEM)

	BankVoices   = 32
	BankDataSize = BankVoices * BulkSize
)

// Sysex errors.
var (
	ErrSysexHeader = errors.New("not a Yamaha voice dump")
	ErrSysexSize   = errors.New("sysex payload has the wrong length")
	ErrChecksum    = errors.New("sysex checksum mismatch")
)

// Bank is a 32-voice cartridge image.
type Bank struct {
	Voices [BankVoices]Patch
	// Clamped is the total number of out of range fields in all voices.
	Clamped int
}

// Names returns the voice names in bank order.
func (b *Bank) Names() []string {
	names := make([]string, len(b.Voices))
	for i := range b.Voices {
		names[i] = b.Voices[i].Name()
	}
	return names
}

// trimSysex strips the F0 and F7 framing bytes when present.
func trimSysex(data []byte) []byte {
	if len(data) > 0 && data[0] == sysexStart {
		data = data[1:]
	}
	if len(data) > 0 && data[len(data)-1] == sysexEnd {
		data = data[:len(data)-1]
	}
	return data
}

// sysexChecksum returns the 7-bit two's complement of the payload sum.
func sysexChecksum(payload []byte) byte {
	var sum byte
	for _, b := range payload {
		sum += b
	}
	return (-sum) & 0x7F
}

// sysexFormat returns the format byte of a Yamaha voice dump body (no F0),
// or -1 when the header does not match.
func sysexFormat(body []byte) int {
	if len(body) < sysexHeaderLen || body[0] != sysexYamaha || body[1]&0xF0 != 0 {
		return -1
	}
	switch {
	case body[2] == formatVoice && body[3] == 0x01 && body[4] == 0x1B:
		return formatVoice
	case body[2] == formatBank && body[3] == 0x20 && body[4] == 0x00:
		return formatBank
	}
	return -1
}

// ParseVoiceSysex decodes a single voice dump (F0 43 0n 00 01 1B, 155 data
// bytes, checksum, F7). The framing bytes are optional. On a checksum
// mismatch the decoded patch is still returned along with an error wrapping
// ErrChecksum.
func ParseVoiceSysex(data []byte) (Patch, int, error) {
	body := trimSysex(data)
	if sysexFormat(body) != formatVoice {
		return Patch{}, 0, ErrSysexHeader
	}
	payload := body[sysexHeaderLen:]
	if len(payload) != VCEDSize+1 {
		return Patch{}, 0, fmt.Errorf("%w: voice payload %d bytes", ErrSysexSize, len(payload))
	}
	p, clamped, err := PatchFromVCED(payload[:VCEDSize])
	if err != nil {
		return p, clamped, err
	}
	if want := sysexChecksum(payload[:VCEDSize]); payload[VCEDSize] != want {
		return p, clamped, fmt.Errorf("%w: got %02X, want %02X", ErrChecksum, payload[VCEDSize], want)
	}
	return p, clamped, nil
}

// ParseBank decodes a 32-voice dump. It accepts the framed sysex form
// (4104 bytes, F0 and F7 optional) or a bare 4096-byte cartridge image.
// As with ParseVoiceSysex a checksum mismatch still returns the bank.
func ParseBank(data []byte) (*Bank, error) {
	var voices []byte
	var checksumErr error
	if len(data) == BankDataSize {
		voices = data
	} else {
		body := trimSysex(data)
		if sysexFormat(body) != formatBank {
			return nil, ErrSysexHeader
		}
		payload := body[sysexHeaderLen:]
		if len(payload) != BankDataSize+1 {
			return nil, fmt.Errorf("%w: bank payload %d bytes", ErrSysexSize, len(payload))
		}
		voices = payload[:BankDataSize]
		if want := sysexChecksum(voices); payload[BankDataSize] != want {
			checksumErr = fmt.Errorf("%w: got %02X, want %02X", ErrChecksum, payload[BankDataSize], want)
		}
	}

	b := &Bank{}
	for i := range b.Voices {
		res, err := UnpackPatch(voices[i*BulkSize : (i+1)*BulkSize])
		if err != nil {
			return nil, err
		}
		b.Voices[i] = res.Patch
		b.Clamped += res.Clamped
	}
	return b, checksumErr
}

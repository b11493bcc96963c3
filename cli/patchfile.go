package cli

import (
	"errors"
	"fmt"
	"log"

	"github.com/spf13/afero"
	"github.com/user-none/dx7emu/emu"
)

// Sizes of the patch files LoadPatchFile recognises.
const (
	voiceSysexSize = 1 + 5 + emu.VCEDSize + 2     // F0, header, VCED, checksum, F7
	bankSysexSize  = 1 + 5 + emu.BankDataSize + 2 // F0, header, VMEM, checksum, F7
	maxPatchFile   = bankSysexSize
)

// ErrPatchFormat is returned for files that are not a voice or bank dump.
var ErrPatchFormat = errors.New("unrecognized patch file")

// PatchFile is a voice or bank loaded from disk.
type PatchFile struct {
	Path  string
	Patch emu.Patch
	// Bank is set for 32-voice files. Patch then holds voice 0.
	Bank    *emu.Bank
	Clamped int
}

// LoadPatchFile reads a patch from fs. The format is chosen by size: a
// 128-byte packed voice, a 155/156-byte unpacked voice, a 163-byte voice
// sysex, a 4096-byte cartridge image or a 4104-byte bank sysex. Checksum
// mismatches are logged and the data is used anyway.
func LoadPatchFile(fs afero.Fs, path string) (*PatchFile, error) {
	info, err := fs.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s: is a directory", path)
	}
	if info.Size() > maxPatchFile {
		return nil, fmt.Errorf("%w: %s (%d bytes)", ErrPatchFormat, path, info.Size())
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}

	pf := &PatchFile{Path: path}
	switch len(data) {
	case emu.BulkSize:
		res, err := emu.UnpackPatch(data)
		if err != nil {
			return nil, err
		}
		pf.Patch, pf.Clamped = res.Patch, res.Clamped
	case emu.VCEDSize, emu.PatchSize:
		pf.Patch, pf.Clamped, err = emu.PatchFromVCED(data)
		if err != nil {
			return nil, err
		}
	case voiceSysexSize:
		pf.Patch, pf.Clamped, err = emu.ParseVoiceSysex(data)
		if err = checksumWarning(path, err); err != nil {
			return nil, err
		}
	case emu.BankDataSize, bankSysexSize:
		pf.Bank, err = emu.ParseBank(data)
		if err = checksumWarning(path, err); err != nil {
			return nil, err
		}
		pf.Patch, pf.Clamped = pf.Bank.Voices[0], pf.Bank.Clamped
	default:
		return nil, fmt.Errorf("%w: %s (%d bytes)", ErrPatchFormat, path, len(data))
	}
	return pf, nil
}

// checksumWarning downgrades a checksum mismatch to a log line.
func checksumWarning(path string, err error) error {
	if errors.Is(err, emu.ErrChecksum) {
		log.Printf("Warning: %s: %v", path, err)
		return nil
	}
	return err
}

// Apply loads the file into s. For a bank, voice selects the program.
func (pf *PatchFile) Apply(s *emu.Synth, voice int) error {
	if pf.Bank == nil {
		s.LoadPatch(pf.Patch)
		return nil
	}
	if voice < 0 || voice >= emu.BankVoices {
		return fmt.Errorf("voice %d out of range 0-%d", voice, emu.BankVoices-1)
	}
	s.LoadBank(pf.Bank)
	s.ProgramChange(voice)
	return nil
}

// Names lists the voices in the file.
func (pf *PatchFile) Names() []string {
	if pf.Bank != nil {
		return pf.Bank.Names()
	}
	return []string{pf.Patch.Name()}
}

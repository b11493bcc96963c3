package cli

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user-none/dx7emu/emu"
)

// nameOffset is where the 10-character voice name starts in a patch.
const nameOffset = 145

func named(name string) emu.Patch {
	p := emu.DefaultPatch()
	copy(p[nameOffset:nameOffset+10], "          ")
	copy(p[nameOffset:], name)
	return p
}

func checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return (-sum) & 0x7F
}

func voiceDump(p emu.Patch) []byte {
	msg := []byte{0xF0, 0x43, 0x00, 0x00, 0x01, 0x1B}
	msg = append(msg, p[:emu.VCEDSize]...)
	return append(msg, checksum(p[:emu.VCEDSize]), 0xF7)
}

func cartridge(names ...string) []byte {
	data := make([]byte, 0, emu.BankDataSize)
	for i := 0; i < emu.BankVoices; i++ {
		p := named(names[min(i, len(names)-1)])
		bulk := emu.PackPatch(&p)
		data = append(data, bulk[:]...)
	}
	return data
}

func bankDump(data []byte) []byte {
	msg := []byte{0xF0, 0x43, 0x00, 0x09, 0x20, 0x00}
	msg = append(msg, data...)
	return append(msg, checksum(data), 0xF7)
}

func writeFile(t *testing.T, fs afero.Fs, path string, data []byte) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, data, 0644))
}

func TestLoadPatchFile_SingleVoices(t *testing.T) {
	fs := afero.NewMemMapFs()
	p := named("SINGLE")
	bulk := emu.PackPatch(&p)

	cases := []struct {
		name string
		data []byte
	}{
		{"packed", bulk[:]},
		{"vced", p[:emu.VCEDSize]},
		{"unpacked", p[:]},
		{"sysex", voiceDump(p)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := "/patches/" + tc.name + ".syx"
			writeFile(t, fs, path, tc.data)

			pf, err := LoadPatchFile(fs, path)
			require.NoError(t, err)
			assert.Nil(t, pf.Bank)
			assert.Equal(t, "SINGLE", pf.Patch.Name())
			assert.Equal(t, p.Algorithm(), pf.Patch.Algorithm())
			assert.Zero(t, pf.Clamped)
			assert.Equal(t, []string{"SINGLE"}, pf.Names())
		})
	}
}

func TestLoadPatchFile_Banks(t *testing.T) {
	fs := afero.NewMemMapFs()
	data := cartridge("ONE", "TWO", "THREE")
	writeFile(t, fs, "/raw.bin", data)
	writeFile(t, fs, "/bank.syx", bankDump(data))

	for _, path := range []string{"/raw.bin", "/bank.syx"} {
		pf, err := LoadPatchFile(fs, path)
		require.NoError(t, err, path)
		require.NotNil(t, pf.Bank, path)
		assert.Equal(t, "ONE", pf.Patch.Name())
		names := pf.Names()
		assert.Len(t, names, emu.BankVoices)
		assert.Equal(t, []string{"ONE", "TWO", "THREE", "THREE"}, names[:4])
	}
}

func TestLoadPatchFile_BadChecksumIsAccepted(t *testing.T) {
	fs := afero.NewMemMapFs()
	msg := voiceDump(named("DIRTY"))
	msg[len(msg)-2] ^= 0x01
	writeFile(t, fs, "/dirty.syx", msg)

	pf, err := LoadPatchFile(fs, "/dirty.syx")
	require.NoError(t, err)
	assert.Equal(t, "DIRTY", pf.Patch.Name())

	bank := bankDump(cartridge("A"))
	bank[len(bank)-2] ^= 0x01
	writeFile(t, fs, "/dirty-bank.syx", bank)
	pf, err = LoadPatchFile(fs, "/dirty-bank.syx")
	require.NoError(t, err)
	require.NotNil(t, pf.Bank)
}

func TestLoadPatchFile_Errors(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/short.syx", make([]byte, 100))
	writeFile(t, fs, "/huge.syx", make([]byte, 8192))
	require.NoError(t, fs.MkdirAll("/dir", 0755))

	notDX7 := voiceDump(named("X"))
	notDX7[1] = 0x41
	writeFile(t, fs, "/roland.syx", notDX7)

	_, err := LoadPatchFile(fs, "/short.syx")
	assert.ErrorIs(t, err, ErrPatchFormat)
	_, err = LoadPatchFile(fs, "/huge.syx")
	assert.ErrorIs(t, err, ErrPatchFormat)
	_, err = LoadPatchFile(fs, "/roland.syx")
	assert.ErrorIs(t, err, emu.ErrSysexHeader)
	_, err = LoadPatchFile(fs, "/missing.syx")
	assert.Error(t, err)
	_, err = LoadPatchFile(fs, "/dir")
	assert.Error(t, err)
}

func TestLoadPatchFile_Clamps(t *testing.T) {
	fs := afero.NewMemMapFs()
	p := named("LOUD")
	p[16] = 200 // OP6 output level
	writeFile(t, fs, "/loud.bin", p[:])

	pf, err := LoadPatchFile(fs, "/loud.bin")
	require.NoError(t, err)
	assert.Equal(t, 1, pf.Clamped)
	assert.Equal(t, byte(99), pf.Patch[16])
}

func TestPatchFile_Apply(t *testing.T) {
	s, err := emu.New(emu.Config{SampleRate: 48000, Voices: 4})
	require.NoError(t, err)

	single := &PatchFile{Patch: named("SOLO")}
	require.NoError(t, single.Apply(s, 0))
	p := s.Patch()
	assert.Equal(t, "SOLO", p.Name())

	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/bank.syx", bankDump(cartridge("ONE", "TWO", "THREE")))
	pf, err := LoadPatchFile(fs, "/bank.syx")
	require.NoError(t, err)

	require.NoError(t, pf.Apply(s, 2))
	assert.Equal(t, 2, s.Program())
	p = s.Patch()
	assert.Equal(t, "THREE", p.Name())

	assert.Error(t, pf.Apply(s, emu.BankVoices))
	assert.Error(t, pf.Apply(s, -1))
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/spf13/afero"
	"github.com/user-none/dx7emu/cli"
	"github.com/user-none/dx7emu/emu"
	"github.com/user-none/dx7emu/ui"
)

const usage = `keys: a w s e d f t g y h u j k play, z/x octave, -/= velocity,
      1-8 program, space pause, q quit`

func main() {
	rate := flag.Int("rate", emu.DefaultSampleRate, "output sample rate in Hz")
	voices := flag.Int("voices", emu.DefaultVoices, "polyphony")
	patchPath := flag.String("patch", "", "voice or bank file (.syx, .bin)")
	voice := flag.Int("voice", 0, "voice number within a bank, 0-31")
	octave := flag.Int("octave", 5, "starting octave")
	velocity := flag.Int("velocity", 100, "note-on velocity")
	gate := flag.Duration("gate", 0, "how long a key press holds its note")
	volume := flag.Float64("volume", 1.0, "playback volume, 0.0-1.0")
	flag.Parse()

	s, err := emu.New(emu.Config{
		SampleRate: *rate,
		Voices:     *voices,
		Logger:     log.Default(),
	})
	if err != nil {
		log.Fatalf("Failed to initialize synth: %v", err)
	}

	if *patchPath != "" {
		pf, err := cli.LoadPatchFile(afero.NewOsFs(), *patchPath)
		if err != nil {
			log.Fatalf("Failed to load patch: %v", err)
		}
		if err := pf.Apply(s, *voice); err != nil {
			log.Fatalf("Failed to load patch: %v", err)
		}
	}

	// Audio initialization failure is non-fatal; notes are rendered in
	// real time and discarded.
	var sink cli.AudioSink
	player, err := ui.NewAudioPlayer(*rate, *volume)
	if err != nil {
		log.Printf("Warning: audio initialization failed: %v", err)
		sink = cli.NewPacedSink(*rate)
	} else {
		defer player.Close()
		sink = player
	}

	runner := cli.NewRunner(s, sink, os.Stdout, cli.Options{
		Octave:   *octave,
		Velocity: *velocity,
		Gate:     *gate,
	})
	defer runner.Close()

	fmt.Println(usage)
	t, err := cli.MakeRaw(os.Stdin)
	if err != nil {
		log.Fatalf("Interactive mode needs a terminal: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err = runner.Run(ctx, os.Stdin)
	t.Restore()
	if err != nil {
		log.Fatal(err)
	}

	st := s.Stats()
	if st.NotesDropped > 0 || st.SysexIgnored > 0 {
		log.Printf("%d notes dropped, %d sysex messages ignored", st.NotesDropped, st.SysexIgnored)
	}
}

// Command dx7render runs a Lua script against the synth and writes the
// rendered audio as raw 16-bit little-endian mono.
package main

import (
	"bufio"
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/spf13/afero"
	"github.com/user-none/dx7emu/adapter"
	"github.com/user-none/dx7emu/cli"
	"github.com/user-none/dx7emu/emu"
)

func main() {
	scriptPath := flag.String("script", "", "Lua script to run (required)")
	outPath := flag.String("out", "-", "output file, - for stdout")
	rate := flag.Int("rate", emu.DefaultSampleRate, "output sample rate in Hz")
	voices := flag.Int("voices", emu.DefaultVoices, "polyphony")
	patchPath := flag.String("patch", "", "voice or bank file loaded before the script")
	voice := flag.Int("voice", 0, "voice number within a bank, 0-31")
	flag.Parse()

	if *scriptPath == "" {
		log.Fatal("Script path is required. Usage: dx7render -script <file.lua> [-out file.raw]")
	}

	fs := afero.NewOsFs()
	s, err := emu.New(emu.Config{
		SampleRate: *rate,
		Voices:     *voices,
		Logger:     log.Default(),
	})
	if err != nil {
		log.Fatalf("Failed to initialize synth: %v", err)
	}

	if *patchPath != "" {
		pf, err := cli.LoadPatchFile(fs, *patchPath)
		if err != nil {
			log.Fatalf("Failed to load patch: %v", err)
		}
		if err := pf.Apply(s, *voice); err != nil {
			log.Fatalf("Failed to load patch: %v", err)
		}
	}

	var out io.Writer
	if *outPath == "-" {
		if cli.IsTerminal(os.Stdout) {
			log.Fatal("Refusing to write audio to a terminal; use -out or a pipe")
		}
		out = os.Stdout
	} else {
		f, err := fs.Create(*outPath)
		if err != nil {
			log.Fatalf("Failed to create output: %v", err)
		}
		defer f.Close()
		out = f
	}
	w := bufio.NewWriter(out)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sc := adapter.New(s, fs, w)
	if err := sc.RunFile(ctx, *scriptPath); err != nil {
		log.Fatalf("Script failed: %v", err)
	}
	if err := w.Flush(); err != nil {
		log.Fatalf("Failed to write output: %v", err)
	}

	st := s.Stats()
	log.Printf("rendered %d samples (%.2fs), %d notes dropped, %d voices stolen",
		sc.Rendered(), float64(sc.Rendered())/float64(s.SampleRate()), st.NotesDropped, st.VoicesStolen)
}

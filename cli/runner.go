// Package cli provides a terminal runner for the synth.
// It plays notes from the computer keyboard and streams audio from a
// dedicated producer goroutine.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/user-none/dx7emu/emu"
	"github.com/user-none/dx7emu/ui"
	"golang.org/x/sync/errgroup"
)

const (
	defaultBufferSize     = 256
	defaultStatusInterval = 250 * time.Millisecond

	// pacedLead is how far ahead of real time PacedSink lets the producer
	// run before sleeping.
	pacedLead = 50 * time.Millisecond
)

// AudioSink consumes rendered samples. QueueSamples may block to pace the
// producer.
type AudioSink interface {
	QueueSamples(samples []int16) error
}

// Options configures a Runner. Zero values select defaults.
type Options struct {
	Octave   int
	Velocity int
	// Gate is how long a key press holds its note.
	Gate time.Duration
	// BufferSize is the number of samples rendered per producer iteration.
	BufferSize     int
	StatusInterval time.Duration
}

// Runner wires a synth to an audio sink and a key stream. The synth renders
// on its own goroutine, paced by the sink; keys and the status line are
// handled on separate goroutines.
type Runner struct {
	synth   *emu.Synth
	sink    AudioSink
	control *ui.SynthControl
	status  *ui.SharedStatus
	kb      *Keyboard
	out     io.Writer

	bufferSize     int
	statusInterval time.Duration
}

// NewRunner creates a runner. Status lines are written to out, which may
// be nil.
func NewRunner(s *emu.Synth, sink AudioSink, out io.Writer, opts Options) *Runner {
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = defaultStatusInterval
	}
	if out == nil {
		out = io.Discard
	}
	return &Runner{
		synth:          s,
		sink:           sink,
		control:        ui.NewSynthControl(),
		status:         &ui.SharedStatus{},
		kb:             NewKeyboard(s, opts.Octave, opts.Velocity, opts.Gate),
		out:            out,
		bufferSize:     opts.BufferSize,
		statusInterval: opts.StatusInterval,
	}
}

// Keyboard returns the runner's key mapper.
func (r *Runner) Keyboard() *Keyboard {
	return r.kb
}

// Status returns the latest producer snapshot.
func (r *Runner) Status() ui.Status {
	return r.status.Read()
}

// Run blocks until ctx is cancelled, the quit key is read, keys reaches
// EOF or the sink fails.
func (r *Runner) Run(ctx context.Context, keys io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return r.produce()
	})
	g.Go(func() error {
		defer cancel()
		return r.readKeys(ctx, keys)
	})
	g.Go(func() error {
		r.printStatus(ctx)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		r.control.Stop()
		r.kb.Release()
		return nil
	})

	err := g.Wait()
	fmt.Fprintln(r.out)
	return err
}

// Close stops the producer and releases held notes.
func (r *Runner) Close() {
	r.control.Stop()
	r.kb.Release()
}

// produce renders audio until stopped.
func (r *Runner) produce() error {
	defer r.control.Stop()

	buf := make([]int16, r.bufferSize)
	for r.control.CheckPause() {
		r.synth.GetSamples(buf)
		if err := r.sink.QueueSamples(buf); err != nil {
			if errors.Is(err, ui.ErrBufferClosed) {
				return nil
			}
			return fmt.Errorf("audio output: %w", err)
		}

		p := r.synth.Patch()
		r.status.Update(ui.Status{
			Peak:    ui.PeakOf(buf),
			Voices:  r.synth.ActiveVoices(),
			Program: r.synth.Program(),
			Patch:   p.Name(),
			Dropped: r.synth.Stats().NotesDropped,
		})
	}
	return nil
}

// readKeys feeds bytes from keys to the keyboard. The blocking read runs on
// its own goroutine so cancellation is not held up by a quiet terminal.
func (r *Runner) readKeys(ctx context.Context, keys io.Reader) error {
	ch := make(chan byte)
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 1)
		for {
			n, err := keys.Read(buf)
			if n > 0 {
				select {
				case ch <- buf[0]:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading keys: %w", err)
		case b := <-ch:
			switch r.kb.Press(b) {
			case ActionPause:
				r.control.TogglePause()
			case ActionQuit:
				return nil
			}
		}
	}
}

func (r *Runner) printStatus(ctx context.Context) {
	t := time.NewTicker(r.statusInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			fmt.Fprint(r.out, r.statusLine())
		}
	}
}

func (r *Runner) statusLine() string {
	st := r.status.Read()
	paused := ""
	if r.control.IsPaused() {
		paused = " [paused]"
	}
	return fmt.Sprintf("\r%-10s prog %2d  oct %d  vel %3d  voices %2d  peak %5d  dropped %d%s\x1b[K",
		st.Patch, st.Program+1, r.kb.Octave(), r.kb.Velocity(), st.Voices, st.Peak, st.Dropped, paused)
}

// PacedSink discards samples at real-time speed. It stands in for the audio
// device when none is available.
type PacedSink struct {
	rate   int
	start  time.Time
	queued int64
}

// NewPacedSink creates a sink consuming rate samples per second.
func NewPacedSink(rate int) *PacedSink {
	return &PacedSink{rate: rate}
}

// QueueSamples sleeps until the audio queued so far is at most pacedLead
// ahead of the wall clock.
func (p *PacedSink) QueueSamples(samples []int16) error {
	now := time.Now()
	due := p.start.Add(time.Duration(p.queued * int64(time.Second) / int64(p.rate)))
	// Restart the clock after a pause or on first use.
	if p.start.IsZero() || now.Sub(due) > pacedLead {
		p.start = now
		p.queued = 0
		due = now
	}
	p.queued += int64(len(samples))
	if sleep := due.Sub(now) - pacedLead; sleep > time.Millisecond {
		time.Sleep(sleep)
	}
	return nil
}

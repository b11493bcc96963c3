package emu

import "testing"

// newTestLFO returns an LFO at 44.1kHz loaded with the given speed, delay,
// sync and waveform.
func newTestLFO(speed, delay, sync, wave byte) *LFO {
	l := NewLFO(NewContext(44100), testTables)
	var params [6]byte
	params[lfoParamSpeed] = speed
	params[lfoParamDelay] = delay
	params[lfoParamSync] = sync
	params[lfoParamWave] = wave
	l.Reset(params)
	return l
}

func TestLFO_NoDelay(t *testing.T) {
	l := newTestLFO(35, 0, 0, LFOTriangle)
	l.KeyDown()
	if got := l.Delay(); got != 1<<24-1 {
		t.Errorf("first delay value: got %d, want %d", got, 1<<24-1)
	}
	for i := 0; i < 10; i++ {
		if got := l.Delay(); got != 1<<24 {
			t.Fatalf("delay step %d: got %d, want %d", i, got, 1<<24)
		}
	}
}

func TestLFO_LongDelayRamp(t *testing.T) {
	l := newTestLFO(35, 99, 0, LFOTriangle)
	l.KeyDown()

	for i := 0; i < 1000; i++ {
		if got := l.Delay(); got != 0 {
			t.Fatalf("expected silent wait at step %d, got %d", i, got)
		}
	}

	var prev int32
	reached := false
	for i := 0; i < 5000; i++ {
		d := l.Delay()
		if d < prev {
			t.Fatalf("delay ramp fell at step %d: %d -> %d", i, prev, d)
		}
		prev = d
		if d == 1<<24 {
			reached = true
			break
		}
	}
	if !reached {
		t.Fatal("delay ramp never reached full depth")
	}
	if l.Delay() != 1<<24 {
		t.Error("delay should stay at full depth")
	}
}

func TestLFO_KeyDownRestartsDelay(t *testing.T) {
	l := newTestLFO(35, 50, 0, LFOTriangle)
	l.KeyDown()
	for i := 0; i < 20000; i++ {
		l.Delay()
	}
	l.KeyDown()
	if got := l.Delay(); got != 0 {
		t.Errorf("expected delay to restart at 0, got %d", got)
	}
}

func TestLFO_WaveformRanges(t *testing.T) {
	tests := []struct {
		name   string
		wave   byte
		lo, hi int32
	}{
		{"triangle", LFOTriangle, 0, 1<<24 - 1},
		{"saw down", LFOSawDown, 0, 1<<24 - 1},
		{"saw up", LFOSawUp, 0, 1<<24 - 1},
		{"square", LFOSquare, 0, 1 << 24},
		{"sine", LFOSine, -64, 1<<24 + 64},
		{"sample and hold", LFOSampleHold, 1 << 16, 1 << 24},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLFO(70, 0, 0, tt.wave)
			for i := 0; i < 2000; i++ {
				v := l.Sample()
				if v < tt.lo || v > tt.hi {
					t.Fatalf("sample %d: %d outside [%d, %d]", i, v, tt.lo, tt.hi)
				}
			}
		})
	}
}

func TestLFO_SquareTwoLevels(t *testing.T) {
	l := newTestLFO(99, 0, 0, LFOSquare)
	seen := map[int32]bool{}
	for i := 0; i < 100; i++ {
		v := l.Sample()
		if v != 0 && v != 1<<24 {
			t.Fatalf("square produced %d", v)
		}
		seen[v] = true
	}
	if len(seen) != 2 {
		t.Errorf("expected both square levels within 100 blocks, saw %v", seen)
	}
}

func TestLFO_SawDirection(t *testing.T) {
	up := newTestLFO(10, 0, 0, LFOSawUp)
	down := newTestLFO(10, 0, 0, LFOSawDown)
	// Speed 10 takes hundreds of blocks per cycle; compare two early samples
	// that cannot straddle a wrap.
	u0, u1 := up.Sample(), up.Sample()
	d0, d1 := down.Sample(), down.Sample()
	if u1 <= u0 {
		t.Errorf("saw up not rising: %d -> %d", u0, u1)
	}
	if d1 >= d0 {
		t.Errorf("saw down not falling: %d -> %d", d0, d1)
	}
}

func TestLFO_KeySync(t *testing.T) {
	a := newTestLFO(60, 0, 1, LFOTriangle)
	b := newTestLFO(60, 0, 1, LFOTriangle)
	for i := 0; i < 37; i++ {
		a.Sample()
	}
	a.KeyDown()
	b.KeyDown()
	for i := 0; i < 20; i++ {
		if va, vb := a.Sample(), b.Sample(); va != vb {
			t.Fatalf("synced LFOs diverged at step %d: %d vs %d", i, va, vb)
		}
	}
}

func TestLFO_SampleHoldChangesOncePerCycle(t *testing.T) {
	l := newTestLFO(99, 0, 0, LFOSampleHold)
	changes := 0
	prev := l.Sample()
	const blocks = 1000
	for i := 0; i < blocks; i++ {
		v := l.Sample()
		if v != prev {
			changes++
		}
		prev = v
	}
	// delta is about 1/29 of a cycle per block at this speed.
	cycles := int(uint64(l.delta) * blocks >> 32)
	if changes > cycles+1 {
		t.Errorf("sample and hold changed %d times in %d cycles", changes, cycles)
	}
	if changes == 0 {
		t.Error("sample and hold never changed")
	}
}

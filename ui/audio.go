package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// ringBufferDuration is how much audio the ring holds ahead of oto.
const ringBufferDuration = 100 * time.Millisecond

// AudioPlayer manages audio playback via oto.
// It writes int16 mono samples to a ring buffer which oto's player
// reads from in a pull model.
type AudioPlayer struct {
	player     *oto.Player
	ringBuffer *AudioRingBuffer
	audioBytes []byte // Pre-allocated buffer for int16-to-byte conversion
	sampleRate int
}

// oto context singleton. oto allows one context per process, so the first
// player fixes the device sample rate.
var (
	otoCtx      *oto.Context
	otoRate     int
	otoInitOnce sync.Once
	otoInitErr  error
)

// ensureOtoContext initializes the oto audio context on first use.
func ensureOtoContext(sampleRate int) (*oto.Context, error) {
	otoInitOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 1,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   50 * time.Millisecond,
		}
		var readyChan chan struct{}
		otoCtx, readyChan, otoInitErr = oto.NewContext(op)
		if otoInitErr != nil {
			return
		}
		otoRate = sampleRate
		<-readyChan
	})
	if otoInitErr != nil {
		return nil, otoInitErr
	}
	if otoRate != sampleRate {
		return nil, fmt.Errorf("audio device already open at %d Hz", otoRate)
	}
	return otoCtx, nil
}

// ringBufferBytes returns the ring capacity for a sample rate.
func ringBufferBytes(sampleRate int) int {
	samples := int(int64(sampleRate) * int64(ringBufferDuration) / int64(time.Second))
	return max(samples, 256) * 2
}

// NewAudioPlayer creates and initializes mono 16-bit playback via oto.
func NewAudioPlayer(sampleRate int, volume float64) (*AudioPlayer, error) {
	ctx, err := ensureOtoContext(sampleRate)
	if err != nil {
		return nil, fmt.Errorf("oto audio not available: %w", err)
	}

	rb := NewAudioRingBuffer(ringBufferBytes(sampleRate))
	player := ctx.NewPlayer(rb)
	player.SetBufferSize(ringBufferBytes(sampleRate) / 2)
	player.SetVolume(volume)
	player.Play()

	return &AudioPlayer{
		player:     player,
		ringBuffer: rb,
		audioBytes: make([]byte, 0, 4096),
		sampleRate: sampleRate,
	}, nil
}

// EncodeSamples appends samples to dst as little-endian bytes.
func EncodeSamples(dst []byte, samples []int16) []byte {
	for _, sample := range samples {
		dst = append(dst, byte(sample), byte(sample>>8))
	}
	return dst
}

// QueueSamples converts int16 mono samples to bytes and writes them to the
// ring buffer for oto to consume. It blocks while the ring is full.
func (a *AudioPlayer) QueueSamples(samples []int16) error {
	if len(samples) == 0 {
		return nil
	}
	a.audioBytes = EncodeSamples(a.audioBytes[:0], samples)
	_, err := a.ringBuffer.Write(a.audioBytes)
	return err
}

// GetBufferLevel returns the total bytes of audio data currently buffered
// (ring buffer + oto player internal buffer).
func (a *AudioPlayer) GetBufferLevel() int {
	return a.ringBuffer.Buffered() + a.player.BufferedSize()
}

// SampleRate returns the device rate.
func (a *AudioPlayer) SampleRate() int {
	return a.sampleRate
}

// SetVolume sets the playback volume (0.0 = silent, 1.0 = full).
func (a *AudioPlayer) SetVolume(vol float64) {
	a.player.SetVolume(vol)
}

// Close cleans up audio resources.
func (a *AudioPlayer) Close() {
	if a.ringBuffer != nil {
		a.ringBuffer.Close()
	}
	if a.player != nil {
		a.player.Close()
	}
}

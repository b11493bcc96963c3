package emu

import (
	"fmt"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
)

// contextCacheSize bounds how many sample rates keep their derived tables.
const contextCacheSize = 4

// Context holds the constants derived from one sample rate. It is immutable
// and may be shared between voices and goroutines.
type Context struct {
	SampleRate int

	freq *freqTable

	// lfoUnit scales the LFO rate parameter into a per-block Q32 phase step.
	lfoUnit uint32
	// pitchUnit scales the pitch envelope rate table into a per-block step.
	pitchUnit int32
}

// NewContext derives the per-rate constants for sampleRate.
func NewContext(sampleRate int) *Context {
	sr := float64(sampleRate)
	return &Context{
		SampleRate: sampleRate,
		freq:       newFreqTable(sr),
		lfoUnit:    uint32(math.Floor(blockSize*25190424/sr + 0.5)),
		pitchUnit:  int32(math.Floor(blockSize*(1<<24)/(21.3*sr) + 0.5)),
	}
}

// ContextCache keeps recently used sample-rate contexts. Lookups for an
// unknown rate build and store a new context.
type ContextCache struct {
	cache *lru.Cache[int, *Context]
}

// NewContextCache creates a cache holding up to size contexts.
func NewContextCache(size int) (*ContextCache, error) {
	if size <= 0 {
		size = contextCacheSize
	}
	c, err := lru.New[int, *Context](size)
	if err != nil {
		return nil, fmt.Errorf("context cache: %w", err)
	}
	return &ContextCache{cache: c}, nil
}

// Get returns the context for sampleRate, creating it on first use.
func (cc *ContextCache) Get(sampleRate int) *Context {
	if ctx, ok := cc.cache.Get(sampleRate); ok {
		return ctx
	}
	ctx := NewContext(sampleRate)
	cc.cache.Add(sampleRate, ctx)
	return ctx
}

// Len returns the number of cached contexts.
func (cc *ContextCache) Len() int {
	return cc.cache.Len()
}

package dsp

import (
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Plan caches a complex FFT instance of a fixed size so repeated transforms
// avoid re-deriving twiddle factors. A Plan is safe for concurrent use.
type Plan struct {
	mu   sync.Mutex
	size int
	fft  *fourier.CmplxFFT
}

// NewPlan creates a transform plan for the given size.
func NewPlan(size int) *Plan {
	return &Plan{
		size: size,
		fft:  fourier.NewCmplxFFT(size),
	}
}

// Size returns the transform length of the plan.
func (p *Plan) Size() int {
	return p.size
}

// Forward computes the unnormalized DFT of seq. A seq whose length does not
// match the plan falls back to a one-off transform.
func (p *Plan) Forward(seq []complex128) []complex128 {
	if len(seq) == 0 {
		return []complex128{}
	}
	if len(seq) != p.size {
		return fourier.NewCmplxFFT(len(seq)).Coefficients(nil, seq)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fft.Coefficients(nil, seq)
}

// Inverse computes the inverse DFT of coeff, scaled by 1/n so that
// Inverse(Forward(x)) == x.
func (p *Plan) Inverse(coeff []complex128) []complex128 {
	n := len(coeff)
	if n == 0 {
		return []complex128{}
	}
	var out []complex128
	if n != p.size {
		out = fourier.NewCmplxFFT(n).Sequence(nil, coeff)
	} else {
		p.mu.Lock()
		out = p.fft.Sequence(nil, coeff)
		p.mu.Unlock()
	}
	scale := complex(1/float64(n), 0)
	for i := range out {
		out[i] *= scale
	}
	return out
}

// PlanCache hands out Plans keyed by size, creating them on first use.
type PlanCache struct {
	mu    sync.RWMutex
	plans map[int]*Plan
}

// NewPlanCache returns an empty cache.
func NewPlanCache() *PlanCache {
	return &PlanCache{plans: make(map[int]*Plan)}
}

// Get returns the cached plan for size, creating it if necessary.
func (c *PlanCache) Get(size int) *Plan {
	c.mu.RLock()
	p, ok := c.plans[size]
	c.mu.RUnlock()
	if ok {
		return p
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.plans[size]; ok {
		return p
	}
	p = NewPlan(size)
	c.plans[size] = p
	return p
}

// Len reports how many plans are cached.
func (c *PlanCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.plans)
}

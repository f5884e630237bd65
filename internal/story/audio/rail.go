package audio

import (
	"math"
	"sync"
	"time"

	"github.com/faiface/beep"
)

// Rail is a gain stage with linear ramps, shared by every source on a track.
type Rail struct {
	mu        sync.Mutex
	rate      beep.SampleRate
	current   float64
	target    float64
	step      float64
	remaining int
}

func NewRail(rate beep.SampleRate, value float64) *Rail {
	v := clamp01(value)
	return &Rail{rate: rate, current: v, target: v}
}

// RampTo moves linearly from the current gain to value over d.
func (r *Rail) RampTo(value float64, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rampLocked(value, d)
}

// FadeIn drops the gain to zero and ramps up to value over d.
func (r *Rail) FadeIn(value float64, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = 0
	r.rampLocked(value, d)
}

// Set jumps straight to value.
func (r *Rail) Set(value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rampLocked(value, 0)
}

// Value is the gain the next sample will be scaled by.
func (r *Rail) Value() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Target is the gain the rail is heading to.
func (r *Rail) Target() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.target
}

func (r *Rail) rampLocked(value float64, d time.Duration) {
	r.target = clamp01(value)
	n := r.rate.N(d)
	if n <= 0 {
		r.current = r.target
		r.step = 0
		r.remaining = 0
		return
	}
	r.step = (r.target - r.current) / float64(n)
	r.remaining = n
}

// Apply scales samples in place, advancing any ramp in progress.
func (r *Rail) Apply(samples [][2]float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range samples {
		if r.remaining > 0 {
			r.current += r.step
			r.remaining--
			if r.remaining == 0 {
				r.current = r.target
			}
		}
		samples[i][0] *= r.current
		samples[i][1] *= r.current
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

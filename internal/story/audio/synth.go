package audio

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/faiface/beep"
)

type Wave int

const (
	Sine Wave = iota
	Triangle
	Sawtooth
	Noise
)

// Voice describes a single synthesized gesture: an oscillator sweeping
// between two frequencies under a gain envelope.
type Voice struct {
	Wave     Wave
	From, To float64
	// ExpSweep sweeps frequency exponentially instead of linearly.
	ExpSweep bool
	Gain     float64
	GainEnd  float64
	// ExpDecay decays gain exponentially instead of linearly.
	ExpDecay bool
	Duration time.Duration
	// Cutoff, when non-zero, runs the signal through a one-pole low-pass
	// whose cutoff sweeps from Cutoff down to zero.
	Cutoff float64
}

// Render synthesizes the voice at rate.
func (v Voice) Render(rate beep.SampleRate) *Buffer {
	n := rate.N(v.Duration)
	buf := &Buffer{SampleRate: rate, Samples: make([]float64, n)}
	if n == 0 {
		return buf
	}

	var phase, lp float64
	for i := range buf.Samples {
		t := float64(i) / float64(n)
		freq := interp(v.From, v.To, t, v.ExpSweep)
		gain := interp(v.Gain, v.GainEnd, t, v.ExpDecay)

		var s float64
		switch v.Wave {
		case Sine:
			s = math.Sin(2 * math.Pi * phase)
		case Triangle:
			s = 4*math.Abs(phase-math.Floor(phase+0.5)) - 1
		case Sawtooth:
			s = 2 * (phase - math.Floor(phase+0.5))
		case Noise:
			s = rand.Float64()*2 - 1
		}
		phase += freq / float64(rate)
		phase -= math.Floor(phase)

		if v.Cutoff > 0 {
			fc := v.Cutoff * (1 - t)
			alpha := 1 - math.Exp(-2*math.Pi*fc/float64(rate))
			lp += alpha * (s - lp)
			s = lp
		}
		buf.Samples[i] = s * gain
	}
	return buf
}

// Tone renders a plain sine at freq with a short linear release.
func Tone(freq float64, d time.Duration, gain float64, rate beep.SampleRate) *Buffer {
	buf := Voice{Wave: Sine, From: freq, To: freq, Gain: gain, GainEnd: gain, Duration: d}.Render(rate)
	release := rate.N(20 * time.Millisecond)
	if release > buf.Len() {
		release = buf.Len()
	}
	for i := 0; i < release; i++ {
		buf.Samples[buf.Len()-1-i] *= float64(i) / float64(release)
	}
	return buf
}

// Concat joins buffers recorded at the same rate.
func Concat(rate beep.SampleRate, parts ...*Buffer) *Buffer {
	out := &Buffer{SampleRate: rate}
	for _, p := range parts {
		out.Samples = append(out.Samples, p.Samples...)
	}
	return out
}

// Silence returns d worth of zero samples.
func Silence(d time.Duration, rate beep.SampleRate) *Buffer {
	return &Buffer{SampleRate: rate, Samples: make([]float64, rate.N(d))}
}

func interp(a, b, t float64, exponential bool) float64 {
	if exponential && a > 0 && b > 0 {
		return a * math.Pow(b/a, t)
	}
	return a + (b-a)*t
}

package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/sirupsen/logrus"
)

// Sound names a short interface cue.
type Sound string

const (
	SoundClick    Sound = "click"
	SoundPop      Sound = "pop"
	SoundMagic    Sound = "magic"
	SoundSuccess  Sound = "success"
	SoundError    Sound = "error"
	SoundPageTurn Sound = "page-turn"
)

var sounds = map[Sound]Voice{
	SoundClick:    {Wave: Sine, From: 800, To: 400, ExpSweep: true, Gain: 0.05, GainEnd: 0.001, ExpDecay: true, Duration: 50 * time.Millisecond},
	SoundPop:      {Wave: Triangle, From: 300, To: 600, Gain: 0.05, Duration: 100 * time.Millisecond},
	SoundMagic:    {Wave: Sine, From: 400, To: 800, ExpSweep: true, Gain: 0.05, Duration: 300 * time.Millisecond},
	SoundSuccess:  {Wave: Sine, From: 400, To: 800, ExpSweep: true, Gain: 0.05, Duration: 300 * time.Millisecond},
	SoundError:    {Wave: Sawtooth, From: 150, To: 100, ExpSweep: true, Gain: 0.05, Duration: 300 * time.Millisecond},
	SoundPageTurn: {Wave: Noise, Gain: 0.15, GainEnd: 0.001, ExpDecay: true, Duration: 300 * time.Millisecond, Cutoff: 800},
}

// SFX plays interface cues on an output of its own, separate from the story
// engine. Failures are never surfaced.
type SFX struct {
	mu        sync.Mutex
	newOutput OutputFactory
	out       Output
	rate      beep.SampleRate
	volume    float64
	rendered  map[Sound]*Buffer
}

func NewSFX(newOutput OutputFactory, rate beep.SampleRate, volume float64) *SFX {
	if rate == 0 {
		rate = SampleRate
	}
	return &SFX{
		newOutput: newOutput,
		rate:      rate,
		volume:    clamp01(volume),
		rendered:  make(map[Sound]*Buffer),
	}
}

func (x *SFX) Volume() float64 {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.volume
}

func (x *SFX) SetVolume(v float64) {
	x.mu.Lock()
	x.volume = clamp01(v)
	x.mu.Unlock()
}

// Play fires a cue and returns immediately.
func (x *SFX) Play(sound Sound) {
	if err := x.play(sound); err != nil {
		logrus.WithError(err).WithField("sound", sound).Debug("SFX playback skipped")
	}
}

func (x *SFX) play(sound Sound) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	voice, ok := sounds[sound]
	if !ok {
		return fmt.Errorf("unknown sound %q", sound)
	}
	if x.volume == 0 {
		return nil
	}
	if x.out == nil {
		if x.newOutput == nil {
			return ErrNoOutput
		}
		out, err := x.newOutput(x.rate)
		if err != nil {
			return err
		}
		x.out = out
	}
	if x.out.Suspended() {
		if err := x.out.Resume(); err != nil {
			return err
		}
	}

	buf, ok := x.rendered[sound]
	if !ok {
		buf = voice.Render(x.rate)
		x.rendered[sound] = buf
	}

	x.out.Lock()
	x.out.Play(newSource(buf.Streamer(), NewRail(x.rate, x.volume), nil))
	x.out.Unlock()
	return nil
}

func (x *SFX) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.out == nil {
		return nil
	}
	err := x.out.Close()
	x.out = nil
	return err
}

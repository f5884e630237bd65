package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
)

// ErrNoOutput is returned when no output context could be created.
var ErrNoOutput = errors.New("audio output unavailable")

// Output is the shared hardware output context. Play, and any mutation of a
// streamer already handed to Play, must happen under Lock.
type Output interface {
	SampleRate() beep.SampleRate
	Play(s beep.Streamer)
	Lock()
	Unlock()
	Suspended() bool
	Suspend()
	Resume() error
	Close() error
}

// OutputFactory creates an output context at the given rate.
type OutputFactory func(rate beep.SampleRate) (Output, error)

var (
	speakerMu   sync.Mutex
	speakerOut  *speakerOutput
	speakerRate beep.SampleRate
)

// NewSpeakerOutput opens the system speaker. The speaker is a process-wide
// device so every caller shares one mixer; the first caller's rate wins and
// later callers are resampled onto it.
func NewSpeakerOutput(rate beep.SampleRate) (Output, error) {
	speakerMu.Lock()
	defer speakerMu.Unlock()

	if speakerOut == nil {
		if err := speaker.Init(rate, rate.N(time.Second/10)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoOutput, err)
		}
		speakerRate = rate
		speakerOut = &speakerOutput{}
		speaker.Play(speakerOut)
	}
	speakerOut.refs++

	mixer := &beep.Mixer{}
	return &speakerHandle{
		shared: speakerOut,
		rate:   rate,
		mixer:  mixer,
		ctrl:   &beep.Ctrl{Streamer: mixer},
	}, nil
}

// speakerOutput is the single streamer fed to the speaker. It mixes the
// handles opened against it.
type speakerOutput struct {
	mixer beep.Mixer
	refs  int
}

func (o *speakerOutput) Stream(samples [][2]float64) (int, bool) {
	return o.mixer.Stream(samples)
}

func (o *speakerOutput) Err() error { return nil }

type speakerHandle struct {
	shared *speakerOutput
	rate   beep.SampleRate
	mixer  *beep.Mixer
	ctrl   *beep.Ctrl
	closed bool
	added  bool
}

func (h *speakerHandle) SampleRate() beep.SampleRate { return h.rate }

func (h *speakerHandle) Lock()   { speaker.Lock() }
func (h *speakerHandle) Unlock() { speaker.Unlock() }

// Play must be called with the lock held.
func (h *speakerHandle) Play(s beep.Streamer) {
	if h.closed {
		return
	}
	if !h.added {
		var root beep.Streamer = h.ctrl
		if h.rate != speakerRate {
			root = beep.Resample(4, h.rate, speakerRate, h.ctrl)
		}
		h.shared.mixer.Add(root)
		h.added = true
	}
	h.mixer.Add(s)
}

func (h *speakerHandle) Suspended() bool {
	speaker.Lock()
	defer speaker.Unlock()
	return h.ctrl.Paused
}

func (h *speakerHandle) Suspend() {
	speaker.Lock()
	h.ctrl.Paused = true
	speaker.Unlock()
}

func (h *speakerHandle) Resume() error {
	speaker.Lock()
	defer speaker.Unlock()
	if h.closed {
		return ErrNoOutput
	}
	h.ctrl.Paused = false
	return nil
}

// Close detaches the handle; the device itself is released with the last one.
func (h *speakerHandle) Close() error {
	speaker.Lock()
	if h.closed {
		speaker.Unlock()
		return nil
	}
	h.closed = true
	h.ctrl.Streamer = nil
	speaker.Unlock()

	speakerMu.Lock()
	defer speakerMu.Unlock()
	speakerOut.refs--
	if speakerOut.refs == 0 {
		speaker.Close()
		speakerOut = nil
	}
	return nil
}

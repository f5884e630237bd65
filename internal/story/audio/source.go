package audio

import (
	"errors"
	"sync"

	"github.com/faiface/beep"
)

var errAlreadyStopped = errors.New("source already stopped")

// source is one playing sound routed through a gain rail. Stream runs on the
// output's mixing goroutine under the output lock; stop must be called under
// the same lock.
type source struct {
	streamer beep.Streamer
	gain     *Rail
	stopped  bool
	ended    bool
	onEnd    func()
	once     sync.Once
}

func newSource(s beep.Streamer, gain *Rail, onEnd func()) *source {
	return &source{streamer: s, gain: gain, onEnd: onEnd}
}

func (s *source) Stream(samples [][2]float64) (int, bool) {
	if s.stopped || s.ended {
		return 0, false
	}
	n, ok := s.streamer.Stream(samples)
	s.gain.Apply(samples[:n])
	if !ok {
		s.ended = true
		s.once.Do(func() {
			if s.onEnd != nil {
				go s.onEnd()
			}
		})
	}
	return n, ok
}

func (s *source) Err() error { return s.streamer.Err() }

// stop silences the source. A stopped or finished source reports
// errAlreadyStopped, which callers are free to ignore.
func (s *source) stop() error {
	if s.stopped || s.ended {
		return errAlreadyStopped
	}
	s.stopped = true
	return nil
}

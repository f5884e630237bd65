package typewriter

import (
	"sort"
	"sync"
	"testing"
	"time"
)

type fakeTimer struct {
	clock   *fakeClock
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// fakeClock fires timers only when advanced.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Duration
	pending []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now + d, f: f}
	c.pending = append(c.pending, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	end := c.now + d
	c.mu.Unlock()

	for {
		c.mu.Lock()
		sort.SliceStable(c.pending, func(i, j int) bool { return c.pending[i].at < c.pending[j].at })
		var next *fakeTimer
		for len(c.pending) > 0 {
			t := c.pending[0]
			if t.stopped {
				c.pending = c.pending[1:]
				continue
			}
			if t.at <= end {
				next = t
				c.pending = c.pending[1:]
			}
			break
		}
		if next == nil {
			c.now = end
			c.mu.Unlock()
			return
		}
		c.now = next.at
		next.fired = true
		c.mu.Unlock()
		next.f()
	}
}

func (c *fakeClock) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.pending {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func TestRevealsAndFinishesOnce(t *testing.T) {
	clock := &fakeClock{}
	tw := New(WithClock(clock))

	finished := 0
	tw.Reset([]string{"Hi", "Bye"}, func() { finished++ })

	if s := tw.State(); s.LineIndex != 0 || s.Text != "" || s.AllFinished {
		t.Fatalf("initial state = %+v", s)
	}

	clock.Advance(DefaultCharInterval)
	if s := tw.State(); s.Text != "H" {
		t.Fatalf("after one tick text = %q, want H", s.Text)
	}

	clock.Advance(DefaultCharInterval)
	if s := tw.State(); s.LineIndex != 0 || s.Text != "Hi" {
		t.Fatalf("after line one state = %+v", s)
	}

	clock.Advance(DefaultLinePause - time.Millisecond)
	if s := tw.State(); s.LineIndex != 0 {
		t.Fatalf("advanced before line pause: %+v", s)
	}
	clock.Advance(time.Millisecond)
	if s := tw.State(); s.LineIndex != 1 || s.Text != "" {
		t.Fatalf("after line pause state = %+v", s)
	}

	clock.Advance(10 * time.Second)
	s := tw.State()
	if !s.AllFinished {
		t.Fatalf("not finished: %+v", s)
	}
	if s.LineIndex != 1 || s.Text != "Bye" {
		t.Errorf("final state = %+v", s)
	}
	if finished != 1 {
		t.Errorf("onFinished fired %d times, want 1", finished)
	}

	clock.Advance(10 * time.Second)
	tw.Skip()
	if finished != 1 {
		t.Errorf("onFinished fired %d times after finish, want 1", finished)
	}
}

func TestResetCancelsPendingReveal(t *testing.T) {
	clock := &fakeClock{}
	tw := New(WithClock(clock))

	var first, second int
	tw.Reset([]string{"A long first line"}, func() { first++ })
	clock.Advance(5 * DefaultCharInterval)
	if s := tw.State(); s.Text != "A lon" {
		t.Fatalf("text = %q", s.Text)
	}

	tw.Reset([]string{"Next"}, func() { second++ })
	if s := tw.State(); s.LineIndex != 0 || s.Text != "" || s.AllFinished {
		t.Fatalf("state after reset = %+v", s)
	}
	if n := clock.Active(); n != 1 {
		t.Fatalf("active timers = %d, want 1", n)
	}

	clock.Advance(time.Minute)
	if first != 0 {
		t.Errorf("stale callback fired %d times", first)
	}
	if second != 1 {
		t.Errorf("callback fired %d times, want 1", second)
	}
	if s := tw.State(); s.Text != "Next" {
		t.Errorf("text = %q, want Next", s.Text)
	}
}

func TestSkip(t *testing.T) {
	clock := &fakeClock{}
	var states []State
	tw := New(WithClock(clock), OnChange(func(s State) { states = append(states, s) }))

	finished := 0
	tw.Reset([]string{"One", "Two"}, func() { finished++ })
	clock.Advance(DefaultCharInterval)
	tw.Skip()

	s := tw.State()
	if !s.AllFinished || s.LineIndex != 1 || s.Text != "Two" {
		t.Errorf("state after skip = %+v", s)
	}
	if finished != 1 {
		t.Errorf("onFinished fired %d times, want 1", finished)
	}
	if clock.Active() != 0 {
		t.Error("timers still pending after skip")
	}
	if last := states[len(states)-1]; !last.AllFinished {
		t.Errorf("last emitted state = %+v", last)
	}
}

func TestEmptyLinesFinishImmediately(t *testing.T) {
	tw := New(WithClock(&fakeClock{}))
	finished := 0
	tw.Reset(nil, func() { finished++ })
	if !tw.State().AllFinished || finished != 1 {
		t.Errorf("finished=%d state=%+v", finished, tw.State())
	}
}

func TestMultibyteText(t *testing.T) {
	clock := &fakeClock{}
	tw := New(WithClock(clock), WithIntervals(time.Millisecond, time.Millisecond))
	tw.Reset([]string{"🚀ok"}, nil)
	clock.Advance(time.Millisecond)
	if s := tw.State(); s.Text != "🚀" {
		t.Errorf("text = %q", s.Text)
	}
}

func TestStop(t *testing.T) {
	clock := &fakeClock{}
	tw := New(WithClock(clock))
	finished := 0
	tw.Reset([]string{"Hi"}, func() { finished++ })
	tw.Stop()
	clock.Advance(time.Minute)
	if finished != 0 || tw.State().Text != "" {
		t.Errorf("reveal continued after Stop: %+v", tw.State())
	}
}

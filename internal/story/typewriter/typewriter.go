// Package typewriter reveals script lines one character at a time.
package typewriter

import (
	"sync"
	"time"
)

const (
	DefaultCharInterval = 30 * time.Millisecond
	DefaultLinePause    = 600 * time.Millisecond
)

// Timer is a pending callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks. The default uses time.AfterFunc.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// State is what the reader sees: the line being revealed, how much of it is
// visible, and whether every line is done.
type State struct {
	LineIndex   int
	Text        string
	AllFinished bool
}

type Option func(*Typewriter)

func WithClock(c Clock) Option {
	return func(t *Typewriter) { t.clock = c }
}

func WithIntervals(char, line time.Duration) Option {
	return func(t *Typewriter) {
		t.charInterval = char
		t.linePause = line
	}
}

// OnChange registers a callback invoked after every state change. It runs
// on the timer goroutine without the typewriter lock held.
func OnChange(fn func(State)) Option {
	return func(t *Typewriter) { t.onChange = fn }
}

type Typewriter struct {
	mu           sync.Mutex
	clock        Clock
	charInterval time.Duration
	linePause    time.Duration
	onChange     func(State)

	lines      [][]rune
	line, char int
	finished   bool
	onFinished func()
	gen        uint64
	timer      Timer
}

func New(opts ...Option) *Typewriter {
	t := &Typewriter{
		clock:        realClock{},
		charInterval: DefaultCharInterval,
		linePause:    DefaultLinePause,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Reset cancels any reveal in progress and starts over with lines.
// onFinished fires exactly once, after the last line is fully shown.
func (t *Typewriter) Reset(lines []string, onFinished func()) {
	t.mu.Lock()
	t.cancelLocked()
	t.lines = make([][]rune, len(lines))
	for i, l := range lines {
		t.lines[i] = []rune(l)
	}
	t.line, t.char = 0, 0
	t.finished = false
	t.onFinished = onFinished
	gen := t.gen

	if len(t.lines) == 0 {
		done := t.finishLocked()
		state := t.stateLocked()
		t.mu.Unlock()
		t.emit(state, done)
		return
	}
	t.scheduleLocked(t.charInterval, gen)
	state := t.stateLocked()
	t.mu.Unlock()
	t.emit(state, nil)
}

func (t *Typewriter) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateLocked()
}

// Skip reveals everything at once.
func (t *Typewriter) Skip() {
	t.mu.Lock()
	if t.finished || t.lines == nil {
		t.mu.Unlock()
		return
	}
	t.cancelLocked()
	done := t.finishLocked()
	state := t.stateLocked()
	t.mu.Unlock()
	t.emit(state, done)
}

// Stop cancels pending timers without finishing.
func (t *Typewriter) Stop() {
	t.mu.Lock()
	t.cancelLocked()
	t.mu.Unlock()
}

func (t *Typewriter) cancelLocked() {
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *Typewriter) scheduleLocked(d time.Duration, gen uint64) {
	t.timer = t.clock.AfterFunc(d, func() { t.tick(gen) })
}

func (t *Typewriter) tick(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.finished {
		t.mu.Unlock()
		return
	}

	var done func()
	current := t.lines[t.line]
	switch {
	case t.char < len(current):
		t.char++
		if t.char < len(current) {
			t.scheduleLocked(t.charInterval, gen)
		} else {
			t.scheduleLocked(t.linePause, gen)
		}
	case t.line+1 < len(t.lines):
		t.line++
		t.char = 0
		t.scheduleLocked(t.charInterval, gen)
	default:
		done = t.finishLocked()
	}
	state := t.stateLocked()
	t.mu.Unlock()
	t.emit(state, done)
}

// finishLocked marks the set finished and hands back the completion
// callback, which the caller runs after unlocking.
func (t *Typewriter) finishLocked() func() {
	t.finished = true
	if n := len(t.lines); n > 0 {
		t.line = n - 1
		t.char = len(t.lines[n-1])
	}
	t.timer = nil
	done := t.onFinished
	t.onFinished = nil
	return done
}

func (t *Typewriter) stateLocked() State {
	s := State{LineIndex: t.line, AllFinished: t.finished}
	if t.line < len(t.lines) {
		s.Text = string(t.lines[t.line][:t.char])
	}
	return s
}

func (t *Typewriter) emit(s State, done func()) {
	if t.onChange != nil {
		t.onChange(s)
	}
	if done != nil {
		done()
	}
}

package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"wondertales/internal/domain/story"
)

// SpeechSource produces the dialogue payload for a page. An empty payload
// with a nil error means "no audio".
type SpeechSource interface {
	Synthesize(ctx context.Context, req story.SpeechRequest) (string, error)
}

type Config struct {
	SampleRate     beep.SampleRate
	AmbientVolume  float64
	DialogueVolume float64
	FadeIn         time.Duration
	Ramp           time.Duration
	SettleDelay    time.Duration
}

func DefaultConfig() Config {
	return Config{
		SampleRate:     SampleRate,
		AmbientVolume:  0.2,
		DialogueVolume: 1.0,
		FadeIn:         2 * time.Second,
		Ramp:           100 * time.Millisecond,
		SettleDelay:    500 * time.Millisecond,
	}
}

// Engine owns one output context for a session and multiplexes a looping
// ambient track with one-shot dialogue. Each track has its own gain rail.
type Engine struct {
	mu        sync.Mutex
	cfg       Config
	newOutput OutputFactory
	out       Output
	speech    SpeechSource
	dialogue  *cache.Cache

	ambientGain  *Rail
	dialogueGain *Rail
	ambientVol   float64
	dialogueVol  float64

	ambientSrc  *source
	dialogueSrc *source
	playing     bool

	page     *story.Page
	profile  story.Profile
	session  uint64
	pageGen  uint64
	playGen  uint64
	settle   *time.Timer
	onEnd    func()
	onChange func(playing bool)

	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

type Option func(*Engine)

// WithDialogueEnded registers a callback fired each time dialogue finishes
// on its own.
func WithDialogueEnded(fn func()) Option {
	return func(e *Engine) { e.onEnd = fn }
}

// WithPlayingChanged registers a callback for every change of the playing flag.
func WithPlayingChanged(fn func(playing bool)) Option {
	return func(e *Engine) { e.onChange = fn }
}

// NewEngine creates an engine. No output context is opened until the first
// playback attempt.
func NewEngine(cfg Config, newOutput OutputFactory, speech SpeechSource, opts ...Option) *Engine {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = SampleRate
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:          cfg,
		newOutput:    newOutput,
		speech:       speech,
		dialogue:     cache.New(cache.NoExpiration, 0),
		ambientVol:   clamp01(cfg.AmbientVolume),
		dialogueVol:  clamp01(cfg.DialogueVolume),
		ambientGain:  NewRail(cfg.SampleRate, 0),
		dialogueGain: NewRail(cfg.SampleRate, cfg.DialogueVolume),
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// outputLocked lazily creates the output and resumes it if suspended.
func (e *Engine) outputLocked() (Output, error) {
	if e.closed {
		return nil, ErrNoOutput
	}
	if e.out == nil {
		if e.newOutput == nil {
			return nil, ErrNoOutput
		}
		out, err := e.newOutput(e.cfg.SampleRate)
		if err != nil {
			return nil, err
		}
		e.out = out
		logrus.WithField("sample_rate", int(e.cfg.SampleRate)).Debug("Opened audio output")
	}
	if e.out.Suspended() {
		if err := e.out.Resume(); err != nil {
			return nil, fmt.Errorf("failed to resume audio output: %w", err)
		}
	}
	return e.out, nil
}

// SetPage reacts to a page change: swaps the ambience when the page brings
// its own, stops dialogue from the previous page and schedules dialogue
// auto-play after the settle delay. Without a new ambience the current loop
// keeps playing. Every call is a page change.
func (e *Engine) SetPage(page story.Page, profile story.Profile) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}

	p := page
	e.page = &p
	e.profile = profile
	e.pageGen++
	e.playGen++
	stopped := e.stopDialogueLocked()
	if e.playing {
		// speech for the previous page was still being generated
		e.playing = false
		stopped = true
	}

	if page.HasAmbientAudio() {
		if err := e.playAmbientLocked(page.AmbientAudioData); err != nil {
			logrus.WithError(err).WithField("page", page.PageNumber).Error("AudioEngine: ambient playback error")
		}
	}

	if e.settle != nil {
		e.settle.Stop()
	}
	gen := e.pageGen
	e.settle = time.AfterFunc(e.cfg.SettleDelay, func() {
		e.mu.Lock()
		current := gen == e.pageGen && !e.closed
		e.mu.Unlock()
		if current {
			e.PlayDialogue(e.ctx)
		}
	})
	e.mu.Unlock()

	if stopped {
		e.notify(false)
	}
}

// ResetSession ends the current session: every source stops, the pending
// auto-play is cancelled and cached dialogue is forgotten, so the next
// session's pages are synthesized afresh. The output stays open.
func (e *Engine) ResetSession() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	if e.settle != nil {
		e.settle.Stop()
		e.settle = nil
	}
	e.session++
	e.pageGen++
	e.playGen++
	e.page = nil
	stopped := e.stopDialogueLocked()
	wasPlaying := e.playing || stopped
	e.playing = false

	if e.ambientSrc != nil && e.out != nil {
		e.out.Lock()
		_ = e.ambientSrc.stop()
		e.out.Unlock()
	}
	e.ambientSrc = nil
	e.dialogue.Flush()
	e.mu.Unlock()

	logrus.Debug("AudioEngine: session reset")
	if wasPlaying {
		e.notify(false)
	}
}

func (e *Engine) playAmbientLocked(payload string) error {
	out, err := e.outputLocked()
	if err != nil {
		return err
	}
	buf, err := Decode(payload)
	if err != nil {
		return err
	}
	if buf.Len() == 0 {
		return errors.New("empty ambient payload")
	}

	streamer := e.adapt(beep.Loop(-1, buf.Streamer()), buf.SampleRate, out)
	src := newSource(streamer, e.ambientGain, nil)

	out.Lock()
	if e.ambientSrc != nil {
		_ = e.ambientSrc.stop()
	}
	e.ambientGain.FadeIn(e.ambientVol, e.cfg.FadeIn)
	out.Play(src)
	out.Unlock()

	e.ambientSrc = src
	logrus.WithField("duration", buf.Duration()).Debug("AudioEngine: ambient loop started")
	return nil
}

// PlayDialogue reads the current page aloud, stopping any dialogue already
// playing. Speech is generated once per page and cached until the session
// is reset. Failures are logged and reset the playing flag.
func (e *Engine) PlayDialogue(ctx context.Context) {
	e.mu.Lock()
	if e.closed || e.page == nil {
		e.mu.Unlock()
		return
	}
	if _, err := e.outputLocked(); err != nil {
		e.mu.Unlock()
		logrus.WithError(err).Error("AudioEngine: playback error")
		e.setPlaying(false)
		return
	}
	stopped := e.stopDialogueLocked()
	started := !e.playing && !stopped
	e.playing = true
	e.playGen++
	gen := e.playGen
	key := fmt.Sprintf("%d/%d", e.session, e.page.PageNumber)
	page := *e.page
	profile := e.profile
	e.mu.Unlock()

	if started {
		e.notify(true)
	}

	payload, err := e.speechFor(ctx, key, page, profile)
	if err != nil {
		logrus.WithError(err).WithField("page", page.PageNumber).Error("AudioEngine: speech error")
		e.finishAttempt(gen)
		return
	}
	if payload == "" {
		e.finishAttempt(gen)
		return
	}

	buf, err := Decode(payload)
	if err != nil {
		logrus.WithError(err).WithField("page", page.PageNumber).Error("AudioEngine: playback error")
		e.finishAttempt(gen)
		return
	}

	e.mu.Lock()
	if gen != e.playGen || e.closed {
		e.mu.Unlock()
		return
	}
	out, err := e.outputLocked()
	if err != nil {
		e.playing = false
		e.mu.Unlock()
		logrus.WithError(err).Error("AudioEngine: playback error")
		e.notify(false)
		return
	}

	var src *source
	src = newSource(e.adapt(buf.Streamer(), buf.SampleRate, out), e.dialogueGain, func() {
		e.dialogueEnded(src)
	})

	out.Lock()
	if e.dialogueSrc != nil {
		_ = e.dialogueSrc.stop()
	}
	e.dialogueGain.Set(e.dialogueVol)
	out.Play(src)
	out.Unlock()
	e.dialogueSrc = src
	e.mu.Unlock()
}

// speechFor returns the cached dialogue for key, synthesizing it on a miss.
// Keys combine the session and the page number.
func (e *Engine) speechFor(ctx context.Context, key string, page story.Page, profile story.Profile) (string, error) {
	if cached, ok := e.dialogue.Get(key); ok {
		return cached.(string), nil
	}
	if e.speech == nil {
		return "", nil
	}

	payload, err := e.speech.Synthesize(ctx, story.NewSpeechRequest(page, profile))
	if err != nil || payload == "" {
		return "", err
	}
	if err := e.dialogue.Add(key, payload, cache.NoExpiration); err != nil {
		// Another attempt stored first; keep the first payload.
		if cached, ok := e.dialogue.Get(key); ok {
			return cached.(string), nil
		}
	}
	return payload, nil
}

func (e *Engine) finishAttempt(gen uint64) {
	e.mu.Lock()
	current := gen == e.playGen
	e.mu.Unlock()
	if current {
		e.setPlaying(false)
	}
}

func (e *Engine) dialogueEnded(src *source) {
	e.mu.Lock()
	if e.dialogueSrc != src {
		e.mu.Unlock()
		return
	}
	e.dialogueSrc = nil
	e.playing = false
	onEnd := e.onEnd
	e.mu.Unlock()

	e.notify(false)
	if onEnd != nil {
		onEnd()
	}
}

// stopDialogueLocked stops the current dialogue source without firing the
// end callback. It reports whether the playing flag dropped; the caller
// notifies after unlocking.
func (e *Engine) stopDialogueLocked() bool {
	if e.dialogueSrc == nil || e.out == nil {
		return false
	}
	e.out.Lock()
	err := e.dialogueSrc.stop()
	e.out.Unlock()
	if err != nil {
		logrus.WithError(err).Debug("AudioEngine: dialogue stop ignored")
	}
	e.dialogueSrc = nil
	if !e.playing {
		return false
	}
	e.playing = false
	return true
}

func (e *Engine) setPlaying(playing bool) {
	e.mu.Lock()
	changed := e.playing != playing
	e.playing = playing
	e.mu.Unlock()
	if changed {
		e.notify(playing)
	}
}

func (e *Engine) notify(playing bool) {
	if e.onChange != nil {
		e.onChange(playing)
	}
}

func (e *Engine) adapt(s beep.Streamer, from beep.SampleRate, out Output) beep.Streamer {
	if to := out.SampleRate(); to != from {
		return beep.Resample(4, from, to, s)
	}
	return s
}

// IsPlayingDialogue reports whether dialogue is being generated or played.
func (e *Engine) IsPlayingDialogue() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

func (e *Engine) AmbientVolume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ambientVol
}

func (e *Engine) DialogueVolume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dialogueVol
}

// SetAmbientVolume ramps the ambient rail to v (clamped to [0, 1]).
func (e *Engine) SetAmbientVolume(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ambientVol = clamp01(v)
	e.ambientGain.RampTo(e.ambientVol, e.cfg.Ramp)
}

// SetDialogueVolume ramps the dialogue rail to v (clamped to [0, 1]).
func (e *Engine) SetDialogueVolume(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dialogueVol = clamp01(v)
	e.dialogueGain.RampTo(e.dialogueVol, e.cfg.Ramp)
}

// Close stops every source and releases the output. Safe to call twice.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.cancel()
	if e.settle != nil {
		e.settle.Stop()
	}
	e.playGen++
	e.playing = false

	if e.out == nil {
		return nil
	}
	e.out.Lock()
	for _, src := range []*source{e.ambientSrc, e.dialogueSrc} {
		if src != nil {
			_ = src.stop()
		}
	}
	e.out.Unlock()
	e.ambientSrc = nil
	e.dialogueSrc = nil

	err := e.out.Close()
	e.out = nil
	return err
}

package generator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"wondertales/internal/domain/story"
)

// DefaultHistoryWindow is how many recent pages the script step sees.
const DefaultHistoryWindow = 3

var ErrNoScriptWriter = errors.New("no script writer configured")

// Orchestrator builds one complete page per call: the script step runs
// first, then the illustration and the ambience run concurrently.
type Orchestrator struct {
	script   ScriptWriter
	image    Illustrator
	ambience AmbienceComposer
	window   int
}

type OrchestratorOption func(*Orchestrator)

// WithHistoryWindow bounds the number of history pages passed to the script
// step. Values below one keep the default.
func WithHistoryWindow(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.window = n
		}
	}
}

// WithIllustrator overrides the illustrator taken from the generator.
func WithIllustrator(i Illustrator) OrchestratorOption {
	return func(o *Orchestrator) { o.image = i }
}

// WithAmbienceComposer overrides the composer taken from the generator.
func WithAmbienceComposer(a AmbienceComposer) OrchestratorOption {
	return func(o *Orchestrator) { o.ambience = a }
}

func NewOrchestrator(g Generator, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{window: DefaultHistoryWindow}
	if g != nil {
		o.script, o.image, o.ambience = g, g, g
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Window returns the last n pages of history in chronological order.
func Window(history []story.Page, n int) []story.Page {
	if n <= 0 || len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

// GenerateSegment produces the next page. Failures of the individual
// generative calls never surface: a failed script becomes the fallback
// script, a failed illustration a placeholder reference, and a failed
// ambience simply leaves the page without one. An error is returned only
// when no page can be built at all.
func (o *Orchestrator) GenerateSegment(ctx context.Context, profile story.Profile, history []story.Page, choice, audio string) (story.Page, error) {
	if err := ctx.Err(); err != nil {
		return story.Page{}, err
	}
	if o.script == nil {
		return story.Page{}, ErrNoScriptWriter
	}

	number := len(history) + 1
	log := logrus.WithFields(logrus.Fields{
		"page":  number,
		"voice": audio != "",
	})

	req := ScriptRequest{
		Profile: profile,
		History: Window(history, o.window),
		Choice:  choice,
		Audio:   audio,
	}
	script := o.writeScript(ctx, req, log)
	if err := ctx.Err(); err != nil {
		return story.Page{}, err
	}

	var (
		imageURL string
		ambient  string
		g        errgroup.Group
	)
	g.Go(func() error {
		imageURL = o.illustrate(ctx, script.ImagePrompt, profile, log)
		return nil
	})
	g.Go(func() error {
		ambient = o.compose(ctx, script.AmbientSound, log)
		return nil
	})
	_ = g.Wait()

	page := script.Page(number)
	page.ImageURL = imageURL
	page.AmbientAudioData = ambient
	log.WithFields(logrus.Fields{
		"title":   page.Title,
		"ambient": page.HasAmbientAudio(),
	}).Info("Story page generated")
	return page, nil
}

func (o *Orchestrator) writeScript(ctx context.Context, req ScriptRequest, log *logrus.Entry) (script story.Script) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("StoryAI: script generation panicked")
			script = Fallback(req.Profile)
		}
	}()

	s, err := o.script.WriteScript(ctx, req)
	if err == nil {
		err = Normalize(&s, req.Profile)
	}
	if err != nil {
		log.WithError(err).Warn("StoryAI: script generation failed, using fallback")
		return Fallback(req.Profile)
	}
	return s
}

func (o *Orchestrator) illustrate(ctx context.Context, scene string, profile story.Profile, log *logrus.Entry) (ref string) {
	defer func() {
		if r := recover(); r != nil {
			log.WithError(fmt.Errorf("panic: %v", r)).Error("MediaAI: image generation panicked")
			ref = PlaceholderImage()
		}
	}()

	if o.image == nil {
		return PlaceholderImage()
	}
	ref, err := o.image.Illustrate(ctx, scene, profile)
	if err != nil || ref == "" {
		if err != nil {
			log.WithError(err).Warn("MediaAI: image generation failed, using placeholder")
		}
		return PlaceholderImage()
	}
	return ref
}

func (o *Orchestrator) compose(ctx context.Context, mood string, log *logrus.Entry) (payload string) {
	defer func() {
		if r := recover(); r != nil {
			log.WithError(fmt.Errorf("panic: %v", r)).Error("MediaAI: ambient generation panicked")
			payload = ""
		}
	}()

	if o.ambience == nil || mood == "" {
		return ""
	}
	payload, err := o.ambience.Compose(ctx, mood)
	if err != nil {
		log.WithError(err).Warn("MediaAI: ambient generation failed")
		return ""
	}
	return payload
}

// PlaceholderImage is a remote image reference that is always usable.
func PlaceholderImage() string {
	return "https://picsum.photos/800/600?random=" + uuid.NewString()
}

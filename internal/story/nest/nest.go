package nest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/sirupsen/logrus"

	"wondertales/internal/domain/session"
	"wondertales/internal/domain/story"
	"wondertales/internal/story/store"
)

// ErrorMessage is shown when a page could not be produced at all.
const ErrorMessage = "The story magic needs a moment. Please try again!"

var (
	// ErrBusy is returned when a generation cycle is already in flight.
	ErrBusy = errors.New("a page is already being written")

	// ErrNoStory is returned by actions that need at least one page.
	ErrNoStory = errors.New("no story in progress")

	// ErrIncompleteProfile is returned by Start when the profile has no name.
	ErrIncompleteProfile = errors.New("profile needs a name")
)

// Segmenter produces the next page of a story.
type Segmenter interface {
	GenerateSegment(ctx context.Context, profile story.Profile, history []story.Page, choice, audio string) (story.Page, error)
}

// Loader reads the last saved snapshot.
type Loader interface {
	Load(ctx context.Context) (session.Snapshot, error)
}

// Coordinator drives the session machine around the generation orchestrator:
// it dispatches loading, awaits the page and commits the result. Only one
// generation cycle runs at a time.
type Coordinator struct {
	machine   *session.Machine
	loader    Loader
	segmenter Segmenter
	busy      atomic.Bool
}

// NewCoordinator wires a machine persisting to st. st may be nil for a
// session that is never saved.
func NewCoordinator(st store.Store, segmenter Segmenter) *Coordinator {
	c := &Coordinator{segmenter: segmenter}
	if st != nil {
		c.machine = session.NewMachine(st)
		c.loader = st
	} else {
		c.machine = session.NewMachine(nil)
	}
	return c
}

func (c *Coordinator) State() session.State {
	return c.machine.State()
}

// Subscribe forwards to the underlying machine.
func (c *Coordinator) Subscribe(l session.Listener) {
	c.machine.Subscribe(l)
}

// Busy reports whether a page is being written.
func (c *Coordinator) Busy() bool {
	return c.busy.Load()
}

// Hydrate restores the saved session. A missing snapshot leaves the session
// in setup; a session already past setup is left alone.
func (c *Coordinator) Hydrate(ctx context.Context) (session.State, error) {
	if c.loader == nil || c.State().Status != session.StatusSetup {
		return c.State(), nil
	}
	snap, err := c.loader.Load(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return c.State(), nil
	}
	if err != nil {
		return c.State(), fmt.Errorf("failed to load session: %w", err)
	}
	st, err := c.machine.Dispatch(ctx, session.Hydrate{Snapshot: snap})
	if err != nil {
		return st, err
	}
	logrus.WithFields(logrus.Fields{
		"status": st.Status,
		"pages":  len(st.Pages),
	}).Info("Restored story session")
	return st, nil
}

func (c *Coordinator) SetProfile(ctx context.Context, p story.Profile) (session.State, error) {
	return c.machine.Dispatch(ctx, session.SetProfile{Profile: p})
}

// Start begins a new story for profile, discarding any previous history.
func (c *Coordinator) Start(ctx context.Context, p story.Profile) (session.State, error) {
	if !p.Complete() {
		return c.State(), ErrIncompleteProfile
	}
	if c.Busy() {
		return c.State(), ErrBusy
	}
	if _, err := c.machine.Dispatch(ctx, session.Reset{}); err != nil {
		return c.State(), err
	}
	if _, err := c.SetProfile(ctx, p); err != nil {
		return c.State(), err
	}
	return c.generate(ctx, "", "")
}

// MakeChoice continues the story with a picked choice, free text or a
// captured voice recording.
func (c *Coordinator) MakeChoice(ctx context.Context, choice, audio string) (session.State, error) {
	if len(c.State().Pages) == 0 {
		return c.State(), ErrNoStory
	}
	return c.generate(ctx, choice, audio)
}

// TryAgain leaves the error screen and returns to the existing history.
func (c *Coordinator) TryAgain(ctx context.Context) (session.State, error) {
	return c.machine.Dispatch(ctx, session.ClearError{})
}

// Reset wipes the session and its saved snapshot.
func (c *Coordinator) Reset(ctx context.Context) (session.State, error) {
	if c.Busy() {
		return c.State(), ErrBusy
	}
	return c.machine.Dispatch(ctx, session.Reset{})
}

// Continue resumes reading at the last page without generating anything.
func (c *Coordinator) Continue(ctx context.Context) (session.State, error) {
	st, err := c.machine.Dispatch(ctx, session.Continue{})
	if errors.Is(err, session.ErrInvalidTransition) {
		return st, ErrNoStory
	}
	return st, err
}

func (c *Coordinator) generate(ctx context.Context, choice, audio string) (session.State, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return c.State(), ErrBusy
	}
	defer c.busy.Store(false)

	// Commits must land even when the caller gives up on the request.
	commit := context.WithoutCancel(ctx)

	st, err := c.machine.Dispatch(commit, session.StartLoading{})
	if err != nil {
		return st, err
	}

	log := logrus.WithFields(logrus.Fields{
		"page":   len(st.Pages) + 1,
		"choice": choice,
		"voice":  audio != "",
	})
	start := time.Now()
	page, err := c.segmenter.GenerateSegment(ctx, st.Profile, st.Pages, choice, audio)
	if err != nil {
		log.WithError(err).Error("Failed to generate page")
		return c.machine.Dispatch(commit, session.SetError{Message: ErrorMessage})
	}

	next, err := c.machine.Dispatch(commit, session.AddPage{Page: page})
	if err != nil {
		log.WithError(err).Error("Failed to append page")
		return c.machine.Dispatch(commit, session.SetError{Message: ErrorMessage})
	}
	log.WithFields(logrus.Fields{
		"title":    page.Title,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Info("Page ready")
	return next, nil
}

// MatchChoice resolves typed input against the offered choices: by number,
// by exact text or by the closest spelling. Input that matches nothing is
// returned as is, with ok false, to be used as a free-form choice.
func MatchChoice(input string, choices []string) (choice string, ok bool) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", false
	}
	if n, err := strconv.Atoi(input); err == nil {
		if n >= 1 && n <= len(choices) {
			return choices[n-1], true
		}
		return input, false
	}

	lower := strings.ToLower(input)
	best, bestDist := -1, 0
	for i, c := range choices {
		cl := strings.ToLower(strings.TrimSpace(c))
		if cl == lower {
			return c, true
		}
		d := levenshtein.ComputeDistance(lower, cl)
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	if best >= 0 && bestDist <= tolerance(choices[best]) {
		return choices[best], true
	}
	return input, false
}

// tolerance allows roughly one typo per four letters.
func tolerance(choice string) int {
	n := len([]rune(choice)) / 4
	if n < 2 {
		return 2
	}
	return n
}

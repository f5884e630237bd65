package nest

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"wondertales/internal/domain/session"
	"wondertales/internal/domain/story"
	"wondertales/internal/story/generator"
	"wondertales/internal/story/store"
)

var mia = story.Profile{Name: "Mia", Age: 6, Theme: "space"}

type call struct {
	history []story.Page
	choice  string
	audio   string
}

// fakeSegmenter numbers pages like the orchestrator does and records calls.
type fakeSegmenter struct {
	mu    sync.Mutex
	calls []call
	err   error
	gate  chan struct{}
}

func (f *fakeSegmenter) GenerateSegment(ctx context.Context, profile story.Profile, history []story.Page, choice, audio string) (story.Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{history: history, choice: choice, audio: audio})
	gate, err := f.gate, f.err
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return story.Page{}, err
	}
	return testPage(len(history) + 1), nil
}

func testPage(n int) story.Page {
	return story.Page{
		PageNumber: n,
		Title:      "Page " + strconv.Itoa(n),
		Lines:      []story.ScriptLine{{Speaker: story.SpeakerNarrator, Text: "Once upon a time."}},
		Choices:    []string{"Go left", "Go right"},
	}
}

func seeded(t *testing.T, pages int) *store.MemoryStore {
	t.Helper()
	st := store.NewMemoryStore()
	snap := session.Snapshot{Status: session.StatusReading, Profile: mia, CurrentPageIndex: pages - 1}
	for i := 1; i <= pages; i++ {
		snap.Pages = append(snap.Pages, testPage(i))
	}
	if err := st.Save(context.Background(), snap); err != nil {
		t.Fatal(err)
	}
	return st
}

func TestStartProducesFirstPage(t *testing.T) {
	ctx := context.Background()
	c := NewCoordinator(store.NewMemoryStore(), generator.NewOrchestrator(generator.NewMock()))

	st, err := c.Start(ctx, mia)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if st.Status != session.StatusReading {
		t.Errorf("status = %s", st.Status)
	}
	if len(st.Pages) != 1 || st.Pages[0].PageNumber != 1 || st.CurrentPageIndex != 0 {
		t.Fatalf("pages = %+v, cursor %d", st.Pages, st.CurrentPageIndex)
	}
	if st.Pages[0].Title != "Mia and the Space Door" {
		t.Errorf("title = %q", st.Pages[0].Title)
	}
	if st.Profile != mia {
		t.Errorf("profile = %+v", st.Profile)
	}
}

func TestStartSendsEmptyHistory(t *testing.T) {
	seg := &fakeSegmenter{}
	c := NewCoordinator(seeded(t, 2), seg)
	ctx := context.Background()
	if _, err := c.Hydrate(ctx); err != nil {
		t.Fatal(err)
	}

	st, err := c.Start(ctx, mia)
	if err != nil {
		t.Fatal(err)
	}
	if len(seg.calls) != 1 || len(seg.calls[0].history) != 0 || seg.calls[0].choice != "" {
		t.Errorf("calls = %+v", seg.calls)
	}
	if len(st.Pages) != 1 || st.Pages[0].PageNumber != 1 {
		t.Errorf("pages = %+v", st.Pages)
	}
}

func TestStartNeedsName(t *testing.T) {
	c := NewCoordinator(nil, &fakeSegmenter{})
	if _, err := c.Start(context.Background(), story.Profile{Theme: "space"}); !errors.Is(err, ErrIncompleteProfile) {
		t.Errorf("err = %v", err)
	}
}

func TestChoiceAppendsFourthPage(t *testing.T) {
	ctx := context.Background()
	seg := &fakeSegmenter{}
	c := NewCoordinator(seeded(t, 3), seg)
	if _, err := c.Hydrate(ctx); err != nil {
		t.Fatal(err)
	}

	var transitions []session.Status
	c.Subscribe(func(_ session.Action, _, next session.State) {
		transitions = append(transitions, next.Status)
	})

	st, err := c.MakeChoice(ctx, "Go left", "")
	if err != nil {
		t.Fatalf("MakeChoice: %v", err)
	}
	if len(st.Pages) != 4 || st.Pages[3].PageNumber != 4 || st.CurrentPageIndex != 3 {
		t.Fatalf("pages = %d, cursor %d", len(st.Pages), st.CurrentPageIndex)
	}
	want := []session.Status{session.StatusLoading, session.StatusReading}
	if len(transitions) != 2 || transitions[0] != want[0] || transitions[1] != want[1] {
		t.Errorf("transitions = %v, want %v", transitions, want)
	}
	if got := seg.calls[0]; len(got.history) != 3 || got.choice != "Go left" {
		t.Errorf("call = %+v", got)
	}
}

func TestVoiceChoiceForwarded(t *testing.T) {
	seg := &fakeSegmenter{}
	c := NewCoordinator(seeded(t, 1), seg)
	ctx := context.Background()
	c.Hydrate(ctx)

	if _, err := c.MakeChoice(ctx, "", "UklGRg=="); err != nil {
		t.Fatal(err)
	}
	if seg.calls[0].audio != "UklGRg==" {
		t.Errorf("audio = %q", seg.calls[0].audio)
	}
}

func TestGenerationFailureSetsError(t *testing.T) {
	ctx := context.Background()
	seg := &fakeSegmenter{err: generator.ErrNoScriptWriter}
	st := seeded(t, 2)
	c := NewCoordinator(st, seg)
	c.Hydrate(ctx)

	got, err := c.MakeChoice(ctx, "Go right", "")
	if err != nil {
		t.Fatalf("MakeChoice: %v", err)
	}
	if got.Status != session.StatusError || got.Error != ErrorMessage {
		t.Errorf("state = %s %q", got.Status, got.Error)
	}
	if len(got.Pages) != 2 {
		t.Errorf("history lost: %d pages", len(got.Pages))
	}

	snap, err := st.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Status != session.StatusReading {
		t.Errorf("saved status = %s, want reading", snap.Status)
	}

	got, err = c.TryAgain(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != session.StatusReading || got.Error != "" || got.CurrentPageIndex != 1 {
		t.Errorf("after try again = %+v", got)
	}
}

func TestFailedFirstPageReturnsToSetup(t *testing.T) {
	ctx := context.Background()
	c := NewCoordinator(nil, &fakeSegmenter{err: context.Canceled})

	st, err := c.Start(ctx, mia)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != session.StatusError {
		t.Fatalf("status = %s", st.Status)
	}
	if st, _ = c.TryAgain(ctx); st.Status != session.StatusSetup {
		t.Errorf("status = %s, want setup", st.Status)
	}
}

func TestOneGenerationAtATime(t *testing.T) {
	ctx := context.Background()
	seg := &fakeSegmenter{gate: make(chan struct{})}
	c := NewCoordinator(seeded(t, 1), seg)
	c.Hydrate(ctx)

	done := make(chan session.State)
	go func() {
		st, _ := c.MakeChoice(ctx, "Go left", "")
		done <- st
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !c.Busy() {
		if time.Now().After(deadline) {
			t.Fatal("generation never started")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := c.MakeChoice(ctx, "Go right", ""); !errors.Is(err, ErrBusy) {
		t.Errorf("second choice err = %v, want ErrBusy", err)
	}
	if _, err := c.Reset(ctx); !errors.Is(err, ErrBusy) {
		t.Errorf("reset err = %v, want ErrBusy", err)
	}

	close(seg.gate)
	if st := <-done; len(st.Pages) != 2 {
		t.Errorf("pages = %d", len(st.Pages))
	}
	if len(seg.calls) != 1 {
		t.Errorf("orchestrator called %d times", len(seg.calls))
	}
}

func TestHydrate(t *testing.T) {
	ctx := context.Background()

	t.Run("missing snapshot", func(t *testing.T) {
		c := NewCoordinator(store.NewMemoryStore(), &fakeSegmenter{})
		st, err := c.Hydrate(ctx)
		if err != nil || st.Status != session.StatusSetup {
			t.Errorf("state = %s, %v", st.Status, err)
		}
	})

	t.Run("interrupted without history", func(t *testing.T) {
		ms := store.NewMemoryStore()
		ms.Save(ctx, session.Snapshot{Status: session.StatusLoading, Profile: mia})
		c := NewCoordinator(ms, &fakeSegmenter{})
		st, err := c.Hydrate(ctx)
		if err != nil || st.Status != session.StatusSetup || st.Profile.Name != "Mia" {
			t.Errorf("state = %+v, %v", st, err)
		}
	})

	t.Run("interrupted with history", func(t *testing.T) {
		ms := seeded(t, 2)
		snap, _ := ms.Load(ctx)
		snap.Status = session.StatusError
		ms.Save(ctx, snap)
		c := NewCoordinator(ms, &fakeSegmenter{})
		st, err := c.Hydrate(ctx)
		if err != nil || st.Status != session.StatusReading || st.CurrentPageIndex != 1 {
			t.Errorf("state = %+v, %v", st, err)
		}
	})
}

func TestResetErasesSnapshot(t *testing.T) {
	ctx := context.Background()
	ms := seeded(t, 2)
	c := NewCoordinator(ms, &fakeSegmenter{})
	c.Hydrate(ctx)

	st, err := c.Reset(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != session.StatusSetup || len(st.Pages) != 0 {
		t.Errorf("state = %+v", st)
	}
	if _, err := ms.Load(ctx); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("load after reset err = %v", err)
	}

	fresh := NewCoordinator(ms, &fakeSegmenter{})
	if st, _ := fresh.Hydrate(ctx); st.Status != session.StatusSetup || len(st.Pages) != 0 {
		t.Errorf("rehydrated = %+v", st)
	}
}

func TestContinue(t *testing.T) {
	ctx := context.Background()

	c := NewCoordinator(store.NewMemoryStore(), &fakeSegmenter{})
	if _, err := c.Continue(ctx); !errors.Is(err, ErrNoStory) {
		t.Errorf("empty continue err = %v", err)
	}
	if _, err := c.MakeChoice(ctx, "Go left", ""); !errors.Is(err, ErrNoStory) {
		t.Errorf("choice without story err = %v", err)
	}

	seg := &fakeSegmenter{}
	c = NewCoordinator(seeded(t, 3), seg)
	c.Hydrate(ctx)
	st, err := c.Continue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != session.StatusReading || st.CurrentPageIndex != 2 {
		t.Errorf("state = %+v", st)
	}
	if len(seg.calls) != 0 {
		t.Error("continue must not generate")
	}
}

func TestMatchChoice(t *testing.T) {
	choices := []string{"Step through the door", "Knock three times"}
	tests := []struct {
		input  string
		want   string
		wantOK bool
	}{
		{input: "1", want: "Step through the door", wantOK: true},
		{input: " 2 ", want: "Knock three times", wantOK: true},
		{input: "3", want: "3", wantOK: false},
		{input: "knock three times", want: "Knock three times", wantOK: true},
		{input: "Knok thre times", want: "Knock three times", wantOK: true},
		{input: "step thru the door", want: "Step through the door", wantOK: true},
		{input: "Fly to the moon", want: "Fly to the moon", wantOK: false},
		{input: "   ", want: "", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := MatchChoice(tt.input, choices)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("MatchChoice(%q) = %q, %v; want %q, %v", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

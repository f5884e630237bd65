package nest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/faiface/beep"
	"github.com/fatih/color"

	"wondertales/internal/domain/session"
	"wondertales/internal/domain/story"
	"wondertales/internal/story/audio"
	"wondertales/internal/story/generator"
	"wondertales/internal/story/store"
	"wondertales/internal/story/typewriter"
)

func init() {
	color.NoColor = true
}

type fakePlayer struct {
	mu       sync.Mutex
	pages    []int
	reads    int
	resets   int
	playing  bool
	ambient  float64
	dialogue float64
}

func (p *fakePlayer) SetPage(page story.Page, _ story.Profile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pages = append(p.pages, page.PageNumber)
}

func (p *fakePlayer) PlayDialogue(context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reads++
}

func (p *fakePlayer) IsPlayingDialogue() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *fakePlayer) ResetSession() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets++
	p.playing = false
}

func (p *fakePlayer) AmbientVolume() float64     { return p.ambient }
func (p *fakePlayer) DialogueVolume() float64    { return p.dialogue }
func (p *fakePlayer) SetAmbientVolume(v float64)  { p.ambient = v }
func (p *fakePlayer) SetDialogueVolume(v float64) { p.dialogue = v }

type fakeSounds struct {
	mu     sync.Mutex
	played []audio.Sound
}

func (s *fakeSounds) Play(sound audio.Sound) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.played = append(s.played, sound)
}

func (s *fakeSounds) count(sound audio.Sound) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.played {
		if p == sound {
			n++
		}
	}
	return n
}

// syncBuffer is written by typewriter timers and the loop.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestReader(c *Coordinator) (*Reader, *fakePlayer, *fakeSounds, *syncBuffer) {
	player := &fakePlayer{ambient: 0.2, dialogue: 1.0}
	sounds := &fakeSounds{}
	out := &syncBuffer{}
	r := NewReader(c, player, sounds, out, typewriter.WithIntervals(time.Microsecond, time.Microsecond))
	return r, player, sounds, out
}

func TestReaderPlaysThroughChoices(t *testing.T) {
	ctx := context.Background()
	c := NewCoordinator(store.NewMemoryStore(), generator.NewOrchestrator(generator.NewMock()))
	if _, err := c.Start(ctx, mia); err != nil {
		t.Fatal(err)
	}
	r, player, sounds, out := newTestReader(c)

	// each page starts with a blank line, consumed either as a skip of the
	// reveal or as an empty command
	input := strings.Join([]string{
		"",
		"1",
		"",
		"climb the giggling hil",
		"",
		"r",
		"a+",
		"d-",
		"q",
	}, "\n") + "\n"
	if err := r.Run(ctx, strings.NewReader(input)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	st := c.State()
	if len(st.Pages) != 3 || st.Status != session.StatusReading {
		t.Fatalf("state = %s with %d pages", st.Status, len(st.Pages))
	}
	if !strings.HasPrefix(st.Pages[1].Lines[0].Text, "Mia decided to step through the door") {
		t.Errorf("page 2 opens with %q", st.Pages[1].Lines[0].Text)
	}
	if !strings.HasPrefix(st.Pages[2].Lines[0].Text, "Mia decided to climb the giggling hill") {
		t.Errorf("page 3 opens with %q", st.Pages[2].Lines[0].Text)
	}

	player.mu.Lock()
	pages := append([]int(nil), player.pages...)
	player.mu.Unlock()
	if len(pages) != 3 || pages[0] != 1 || pages[2] != 3 {
		t.Errorf("player pages = %v", pages)
	}
	if player.ambient < 0.29 || player.dialogue > 0.91 {
		t.Errorf("volumes = %.2f / %.2f", player.ambient, player.dialogue)
	}
	if sounds.count(audio.SoundPageTurn) != 3 || sounds.count(audio.SoundSuccess) != 2 {
		t.Errorf("sounds = %v", sounds.played)
	}

	text := out.String()
	for _, want := range []string{
		"Page 1: Mia and the Space Door",
		"One bright morning, Mia found a tiny glowing door in a space world.",
		"Rusty the Robot: Hello, Mia!",
		"Page 3: Scene 3",
		"1. Follow the sparkly trail",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestReaderRecoversFromError(t *testing.T) {
	ctx := context.Background()
	seg := &fakeSegmenter{}
	c := NewCoordinator(seeded(t, 1), seg)
	c.Hydrate(ctx)
	c.Continue(ctx)
	seg.err = generator.ErrNoScriptWriter

	r, _, sounds, out := newTestReader(c)
	if err := r.Run(ctx, strings.NewReader("\n2\nt\nq\n")); err != nil {
		t.Fatal(err)
	}

	st := c.State()
	if st.Status != session.StatusReading || len(st.Pages) != 1 {
		t.Errorf("state = %s with %d pages", st.Status, len(st.Pages))
	}
	if !strings.Contains(out.String(), ErrorMessage) {
		t.Error("error message not shown")
	}
	if sounds.count(audio.SoundError) != 1 {
		t.Errorf("sounds = %v", sounds.played)
	}
	if seg.calls[0].choice != "Go right" {
		t.Errorf("choice = %q", seg.calls[0].choice)
	}
}

func TestReaderVoiceRecording(t *testing.T) {
	ctx := context.Background()
	seg := &fakeSegmenter{}
	c := NewCoordinator(seeded(t, 1), seg)
	c.Hydrate(ctx)

	path := filepath.Join(t.TempDir(), "answer.wav")
	if err := os.WriteFile(path, []byte("RIFF"), 0644); err != nil {
		t.Fatal(err)
	}

	r, _, _, out := newTestReader(c)
	input := "\n@" + filepath.Join(t.TempDir(), "missing.wav") + "\n@" + path + "\n\nq\n"
	if err := r.Run(ctx, strings.NewReader(input)); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Could not read recording") {
		t.Error("missing file not reported")
	}
	if len(seg.calls) != 1 || seg.calls[0].audio != "UklGRg==" || seg.calls[0].choice != "" {
		t.Errorf("calls = %+v", seg.calls)
	}
}

func TestReaderStartOverResetsAudio(t *testing.T) {
	ctx := context.Background()
	seg := &fakeSegmenter{}
	c := NewCoordinator(store.NewMemoryStore(), seg)
	if _, err := c.Start(ctx, mia); err != nil {
		t.Fatal(err)
	}
	r, player, _, _ := newTestReader(c)

	if err := r.Run(ctx, strings.NewReader("\nn\n\nq\n")); err != nil {
		t.Fatal(err)
	}

	player.mu.Lock()
	defer player.mu.Unlock()
	if player.resets != 1 {
		t.Errorf("player resets = %d, want 1", player.resets)
	}
	if len(player.pages) != 2 || player.pages[0] != 1 || player.pages[1] != 1 {
		t.Errorf("player pages = %v, want page 1 of each story", player.pages)
	}
	if len(c.State().Pages) != 1 || len(seg.calls) != 2 {
		t.Errorf("pages = %d, calls = %d", len(c.State().Pages), len(seg.calls))
	}
}

func TestReaderAlreadyReading(t *testing.T) {
	ctx := context.Background()
	c := NewCoordinator(seeded(t, 1), &fakeSegmenter{})
	c.Hydrate(ctx)
	r, player, _, out := newTestReader(c)
	player.playing = true

	if err := r.Run(ctx, strings.NewReader("\nr\nq\n")); err != nil {
		t.Fatal(err)
	}
	player.mu.Lock()
	reads := player.reads
	player.mu.Unlock()
	if reads != 0 {
		t.Errorf("reads = %d while already reading", reads)
	}
	if !strings.Contains(out.String(), "Already reading aloud") {
		t.Error("no notice for a read-aloud in progress")
	}
}

// silentOutput accepts streams and never pulls them, so dialogue keeps
// playing until it is stopped.
type silentOutput struct{ mu sync.Mutex }

func (o *silentOutput) SampleRate() beep.SampleRate { return audio.SampleRate }
func (o *silentOutput) Play(beep.Streamer)          {}
func (o *silentOutput) Lock()                       { o.mu.Lock() }
func (o *silentOutput) Unlock()                     { o.mu.Unlock() }
func (o *silentOutput) Suspended() bool             { return false }
func (o *silentOutput) Suspend()                    {}
func (o *silentOutput) Resume() error               { return nil }
func (o *silentOutput) Close() error                { return nil }

type countingSpeech struct {
	mu    sync.Mutex
	calls int
}

func (s *countingSpeech) Synthesize(context.Context, story.SpeechRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return audio.Encode([]float64{0.1, 0.1, 0.1, 0.1}), nil
}

func (s *countingSpeech) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestReaderStartOverReadsNewStoryAloud(t *testing.T) {
	ctx := context.Background()
	c := NewCoordinator(store.NewMemoryStore(), &fakeSegmenter{})
	if _, err := c.Start(ctx, mia); err != nil {
		t.Fatal(err)
	}

	cfg := audio.DefaultConfig()
	cfg.SettleDelay = time.Hour
	speech := &countingSpeech{}
	engine := audio.NewEngine(cfg, func(beep.SampleRate) (audio.Output, error) {
		return &silentOutput{}, nil
	}, speech)
	defer engine.Close()

	out := &syncBuffer{}
	r := NewReader(c, engine, nil, out, typewriter.WithIntervals(time.Microsecond, time.Microsecond))

	pr, pw := io.Pipe()
	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx, pr) }()
	send := func(line string) {
		if _, err := io.WriteString(pw, line+"\n"); err != nil {
			t.Fatal(err)
		}
	}

	send("")
	send("r")
	eventually(t, "first read-aloud", func() bool { return speech.count() == 1 && engine.IsPlayingDialogue() })
	send("r")

	// both stories open with a page 1 titled "Page 1"
	send("n")
	send("")
	send("r")
	eventually(t, "read-aloud of the new story", func() bool { return speech.count() == 2 })
	send("q")

	select {
	case err := <-errc:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not stop")
	}
	pw.Close()

	if !strings.Contains(out.String(), "Already reading aloud") {
		t.Error("replay during read-aloud not refused")
	}
}

func TestReaderWithoutStory(t *testing.T) {
	c := NewCoordinator(store.NewMemoryStore(), &fakeSegmenter{})
	r, _, _, out := newTestReader(c)
	if err := r.Run(context.Background(), strings.NewReader("")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "No story yet") {
		t.Errorf("output = %q", out.String())
	}
}

func TestReaderStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := NewCoordinator(seeded(t, 1), &fakeSegmenter{})
	c.Hydrate(ctx)
	r, _, _, _ := newTestReader(c)

	pr, pw := io.Pipe()
	defer pw.Close()
	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx, pr) }()
	cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not stop")
	}
}

func TestPrinterSkip(t *testing.T) {
	out := &syncBuffer{}
	p := &printer{out: out}
	page := story.Page{
		PageNumber: 1,
		Lines: []story.ScriptLine{
			{Speaker: story.SpeakerNarrator, Text: "Hi"},
			{Speaker: "Mia", Text: "Bye"},
		},
	}
	p.reset(page, mia)
	p.update(typewriter.State{LineIndex: 0, Text: "H"})
	p.update(typewriter.State{LineIndex: 1, Text: "Bye", AllFinished: true})
	p.update(typewriter.State{LineIndex: 1, Text: "Bye", AllFinished: true})

	if got, want := out.String(), "Hi\nMia: Bye\n"; got != want {
		t.Errorf("printed %q, want %q", got, want)
	}
}

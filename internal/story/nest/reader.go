package nest

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"

	"wondertales/internal/cli/scheme/colours"
	"wondertales/internal/domain/session"
	"wondertales/internal/domain/story"
	"wondertales/internal/story/audio"
	"wondertales/internal/story/typewriter"
)

const volumeStep = 0.1

// Player is the audio engine as seen by the reader.
type Player interface {
	SetPage(page story.Page, profile story.Profile)
	PlayDialogue(ctx context.Context)
	IsPlayingDialogue() bool
	ResetSession()
	AmbientVolume() float64
	DialogueVolume() float64
	SetAmbientVolume(v float64)
	SetDialogueVolume(v float64)
}

// Sounds plays short interface cues.
type Sounds interface {
	Play(sound audio.Sound)
}

type silentPlayer struct{}

func (silentPlayer) SetPage(story.Page, story.Profile) {}
func (silentPlayer) PlayDialogue(context.Context)      {}
func (silentPlayer) IsPlayingDialogue() bool           { return false }
func (silentPlayer) ResetSession()                     {}
func (silentPlayer) AmbientVolume() float64            { return 0 }
func (silentPlayer) DialogueVolume() float64           { return 0 }
func (silentPlayer) SetAmbientVolume(float64)          {}
func (silentPlayer) SetDialogueVolume(float64)         {}

type silentSounds struct{}

func (silentSounds) Play(audio.Sound) {}

// Reader is the interactive terminal loop: it reveals each page with the
// typewriter, hands the page to the audio engine and turns typed commands
// into session actions.
type Reader struct {
	coord   *Coordinator
	player  Player
	sounds  Sounds
	out     io.Writer
	tw      *typewriter.Typewriter
	printer *printer
	shown   int
}

// NewReader creates a reader writing to out. player and sounds may be nil
// for a silent session. Every reset of coord's session also resets the
// player.
func NewReader(coord *Coordinator, player Player, sounds Sounds, out io.Writer, opts ...typewriter.Option) *Reader {
	if player == nil {
		player = silentPlayer{}
	}
	if sounds == nil {
		sounds = silentSounds{}
	}
	coord.Subscribe(func(action session.Action, _, _ session.State) {
		if action.Type() == session.ActionReset {
			player.ResetSession()
		}
	})
	p := &printer{out: out}
	return &Reader{
		coord:   coord,
		player:  player,
		sounds:  sounds,
		out:     out,
		tw:      typewriter.New(append(opts, typewriter.OnChange(p.update))...),
		printer: p,
	}
}

// Run reads commands from in until the user quits, input ends or ctx is
// cancelled.
func (r *Reader) Run(ctx context.Context, in io.Reader) error {
	done := make(chan struct{})
	defer close(done)
	defer r.tw.Stop()

	input := make(chan string)
	go func() {
		defer close(input)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case input <- scanner.Text():
			case <-done:
				return
			}
		}
	}()

	for {
		st := r.coord.State()
		switch st.Status {
		case session.StatusSetup:
			colours.Warning.Fprintln(r.out, "📭 No story yet. Run 'wondertales start' to begin one!")
			return nil

		case session.StatusError:
			r.sounds.Play(audio.SoundError)
			fmt.Fprintln(r.out)
			colours.Error.Fprintf(r.out, "❌ %s\n", st.Error)
			colours.Prompt.Fprint(r.out, "🔁 [t] try again  [s] start over  [q] quit: ")
			line, ok := next(ctx, input)
			if !ok {
				return ctx.Err()
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "t", "try":
				if _, err := r.coord.TryAgain(ctx); err != nil {
					return err
				}
			case "s", "start":
				if err := r.startOver(ctx); err != nil {
					return err
				}
			case "q", "quit":
				return nil
			}

		case session.StatusReading:
			page, _ := st.CurrentPage()
			if page.PageNumber != r.shown {
				if err := r.present(ctx, st.Profile, page, input); err != nil {
					return err
				}
			}
			r.showChoices(page)
			line, ok := next(ctx, input)
			if !ok {
				return ctx.Err()
			}
			quit, err := r.handle(ctx, page, line)
			if err != nil || quit {
				return err
			}

		default:
			return fmt.Errorf("unexpected session status %q", st.Status)
		}
	}
}

// next returns the next input line; ok is false once input ends or ctx is
// done.
func next(ctx context.Context, input <-chan string) (string, bool) {
	select {
	case <-ctx.Done():
		return "", false
	case line, ok := <-input:
		return line, ok
	}
}

// present shows a page: header, audio and the typewriter reveal. Any input
// during the reveal skips to the end of it.
func (r *Reader) present(ctx context.Context, profile story.Profile, page story.Page, input <-chan string) error {
	fmt.Fprintln(r.out)
	colours.Title.Fprintf(r.out, "📖 Page %d: %s\n", page.PageNumber, page.Title)
	if page.Sidekick != nil {
		colours.Sidekick.Fprintf(r.out, "   with %s %s\n", page.Sidekick.Emoji, page.Sidekick.Name)
	}
	if ref := describeImage(page.ImageURL); ref != "" {
		colours.Info.Fprintf(r.out, "   🖼️  %s\n", ref)
	}
	if page.SoundCue != "" {
		colours.SoundFX.Fprintf(r.out, "   🔊 %s\n", page.SoundCue)
	}
	fmt.Fprintln(r.out)

	r.sounds.Play(audio.SoundPageTurn)
	r.player.SetPage(page, profile)

	finished := make(chan struct{})
	r.printer.reset(page, profile)
	r.tw.Reset(lineTexts(page.Lines), func() { close(finished) })
	r.shown = page.PageNumber

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		r.tw.Stop()
		return ctx.Err()
	case <-input:
		r.tw.Skip()
		<-finished
		return nil
	}
}

func (r *Reader) showChoices(page story.Page) {
	fmt.Fprintln(r.out)
	colours.Prompt.Fprintln(r.out, "🌟 What happens next?")
	for i, c := range page.Choices {
		colours.Choice.Fprintf(r.out, "  %d. %s\n", i+1, c)
	}
	colours.Info.Fprintln(r.out, "  (type a number, your own idea, @file.wav to speak, or 'h' for help)")
	colours.Prompt.Fprint(r.out, "> ")
}

func (r *Reader) help() {
	colours.Info.Fprintln(r.out, "📋 Commands:")
	fmt.Fprintln(r.out, "  1, 2        pick a choice")
	fmt.Fprintln(r.out, "  <text>      take your own path")
	fmt.Fprintln(r.out, "  @file.wav   answer with a voice recording")
	fmt.Fprintln(r.out, "  r           read the page aloud again")
	fmt.Fprintln(r.out, "  a+ / a-     ambience louder / softer")
	fmt.Fprintln(r.out, "  d+ / d-     voices louder / softer")
	fmt.Fprintln(r.out, "  n           start a new adventure")
	fmt.Fprintln(r.out, "  q           quit (your story is saved)")
}

// handle runs one command typed on a page. quit is true when the loop
// should end.
func (r *Reader) handle(ctx context.Context, page story.Page, line string) (quit bool, err error) {
	cmd := strings.TrimSpace(line)
	switch strings.ToLower(cmd) {
	case "":
		return false, nil
	case "q", "quit", "exit":
		return true, nil
	case "h", "help", "?":
		r.help()
	case "r", "read":
		if r.player.IsPlayingDialogue() {
			colours.Warning.Fprintln(r.out, "🔈 Already reading aloud!")
			return false, nil
		}
		r.sounds.Play(audio.SoundPop)
		colours.Info.Fprintln(r.out, "🔈 Reading aloud...")
		go r.player.PlayDialogue(ctx)
	case "a+":
		r.player.SetAmbientVolume(r.player.AmbientVolume() + volumeStep)
		colours.Info.Fprintf(r.out, "🌊 Ambience volume %.0f%%\n", 100*r.player.AmbientVolume())
	case "a-":
		r.player.SetAmbientVolume(r.player.AmbientVolume() - volumeStep)
		colours.Info.Fprintf(r.out, "🌊 Ambience volume %.0f%%\n", 100*r.player.AmbientVolume())
	case "d+":
		r.player.SetDialogueVolume(r.player.DialogueVolume() + volumeStep)
		colours.Info.Fprintf(r.out, "🗣️  Voice volume %.0f%%\n", 100*r.player.DialogueVolume())
	case "d-":
		r.player.SetDialogueVolume(r.player.DialogueVolume() - volumeStep)
		colours.Info.Fprintf(r.out, "🗣️  Voice volume %.0f%%\n", 100*r.player.DialogueVolume())
	case "n", "new":
		r.sounds.Play(audio.SoundMagic)
		return false, r.startOver(ctx)
	default:
		r.sounds.Play(audio.SoundClick)
		if strings.HasPrefix(cmd, "@") {
			recording, err := loadRecording(strings.TrimPrefix(cmd, "@"))
			if err != nil {
				colours.Error.Fprintf(r.out, "❌ Could not read recording: %v\n", err)
				return false, nil
			}
			return false, r.choose(ctx, "", recording)
		}
		choice, ok := MatchChoice(cmd, page.Choices)
		if !ok {
			colours.Info.Fprintf(r.out, "✏️  Taking your own path: %q\n", choice)
		}
		return false, r.choose(ctx, choice, "")
	}
	return false, nil
}

func (r *Reader) choose(ctx context.Context, choice, recording string) error {
	colours.Info.Fprintln(r.out, "✨ Writing the next page...")
	st, err := r.coord.MakeChoice(ctx, choice, recording)
	if errors.Is(err, ErrBusy) {
		colours.Warning.Fprintln(r.out, "⏳ Still writing, hold on!")
		return nil
	}
	if err != nil {
		return err
	}
	if st.Status == session.StatusReading {
		r.sounds.Play(audio.SoundSuccess)
	}
	return nil
}

func (r *Reader) startOver(ctx context.Context) error {
	colours.Info.Fprintln(r.out, "✨ Starting a new adventure...")
	r.shown = 0
	_, err := r.coord.Start(ctx, r.coord.State().Profile)
	return err
}

// loadRecording reads a WAV file as a voice answer payload.
func loadRecording(path string) (string, error) {
	data, err := os.ReadFile(strings.TrimSpace(path))
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", errors.New("recording is empty")
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func describeImage(ref string) string {
	switch {
	case ref == "":
		return ""
	case strings.HasPrefix(ref, "data:"):
		return fmt.Sprintf("illustration ready (%d KB)", len(ref)*3/4/1024)
	default:
		return ref
	}
}

func lineTexts(lines []story.ScriptLine) []string {
	texts := make([]string, len(lines))
	for i, l := range lines {
		texts[i] = l.Text
	}
	return texts
}

// printer writes typewriter progress as it arrives, one coloured speaker
// prefix per line.
type printer struct {
	mu       sync.Mutex
	out      io.Writer
	lines    []story.ScriptLine
	req      story.SpeechRequest
	line     int
	written  int
	prefixed bool
	done     bool
}

func (p *printer) reset(page story.Page, profile story.Profile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lines = page.Lines
	p.req = story.NewSpeechRequest(page, profile)
	p.line, p.written = 0, 0
	p.prefixed, p.done = false, false
}

func (p *printer) update(s typewriter.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done || len(p.lines) == 0 {
		return
	}

	for p.line < s.LineIndex && p.line < len(p.lines) {
		p.writeLocked([]rune(p.lines[p.line].Text))
		fmt.Fprintln(p.out)
		p.line++
		p.written, p.prefixed = 0, false
	}
	if p.line < len(p.lines) {
		p.writeLocked([]rune(s.Text))
	}
	if s.AllFinished {
		fmt.Fprintln(p.out)
		p.done = true
	}
}

func (p *printer) writeLocked(text []rune) {
	l := p.lines[p.line]
	c := p.colour(l.Speaker)
	if !p.prefixed {
		if !l.IsNarrator() {
			c.Fprintf(p.out, "%s: ", l.Speaker)
		}
		p.prefixed = true
	}
	if len(text) > p.written {
		c.Fprint(p.out, string(text[p.written:]))
		p.written = len(text)
	}
}

func (p *printer) colour(speaker string) *color.Color {
	switch p.req.RoleOf(speaker) {
	case story.RoleNarrator:
		return colours.Narrator
	case story.RoleSoundFX:
		return colours.SoundFX
	case story.RoleSidekick:
		return colours.Sidekick
	default:
		return colours.Speaker
	}
}

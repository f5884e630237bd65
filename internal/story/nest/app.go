package nest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"wondertales/internal/cli/scheme/colours"
	"wondertales/internal/config"
	"wondertales/internal/domain/session"
	"wondertales/internal/domain/story"
	"wondertales/internal/story/audio"
	"wondertales/internal/story/gemini"
	"wondertales/internal/story/generator"
	"wondertales/internal/story/store"
	"wondertales/internal/story/tts"
	"wondertales/internal/story/typewriter"
)

// WonderTales is the CLI application: it owns the session services for the
// lifetime of the process.
type WonderTales struct {
	settings config.Settings
	store    store.Store
	speech   tts.Synthesizer
	engine   *audio.Engine
	sfx      *audio.SFX
	Coord    *Coordinator

	ctx    context.Context
	Cancel context.CancelFunc
}

func NewWonderTales(settings config.Settings) (*WonderTales, error) {
	ctx, cancel := context.WithCancel(context.Background())

	st, err := store.New(settings.Storage)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open story storage: %w", err)
	}

	gen, err := newGenerator(ctx, settings)
	if err != nil {
		cancel()
		st.Close()
		return nil, err
	}
	orchestrator := generator.NewOrchestrator(gen, generator.WithHistoryWindow(settings.HistoryWindow))

	wt := &WonderTales{
		settings: settings,
		store:    st,
		Coord:    NewCoordinator(st, orchestrator),
		ctx:      ctx,
		Cancel:   cancel,
	}

	speech, err := tts.NewEngine(ctx, settings.TTS, settings.Gemini)
	if err != nil {
		logrus.WithError(err).Warn("Speech engine unavailable, pages will not be read aloud")
	} else {
		wt.speech = speech
	}

	if settings.AudioEnabled {
		var source audio.SpeechSource
		if wt.speech != nil {
			source = wt.speech
		}
		wt.engine = audio.NewEngine(settings.Audio, audio.NewSpeakerOutput, source,
			audio.WithPlayingChanged(func(playing bool) {
				logrus.WithField("playing", playing).Debug("Read-aloud state changed")
			}),
			audio.WithDialogueEnded(func() {
				logrus.Debug("Finished reading the page aloud")
			}),
		)
		wt.sfx = audio.NewSFX(audio.NewSpeakerOutput, settings.Audio.SampleRate, settings.SFXVolume)
	}
	return wt, nil
}

func newGenerator(ctx context.Context, settings config.Settings) (generator.Generator, error) {
	switch settings.GeneratorType {
	case "mock":
		return generator.NewMock(), nil
	case "gemini":
		return newGemini(ctx, settings.Gemini)
	case "", "auto":
		if settings.Gemini.APIKey != "" {
			return newGemini(ctx, settings.Gemini)
		}
		logrus.Info("No Gemini API key configured, using the offline storyteller")
		return generator.NewMock(), nil
	default:
		return nil, fmt.Errorf("unsupported generator type: %s", settings.GeneratorType)
	}
}

func newGemini(ctx context.Context, cfg gemini.Config) (generator.Generator, error) {
	client, err := gemini.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return client, nil
}

// Close stops playback and releases every service.
func (wt *WonderTales) Close() {
	if wt.engine != nil {
		wt.engine.Close()
	}
	if wt.sfx != nil {
		wt.sfx.Close()
	}
	if wt.speech != nil {
		wt.speech.Close()
	}
	if err := wt.store.Close(); err != nil {
		logrus.WithError(err).Warn("Failed to close story storage")
	}
}

func (wt *WonderTales) ShowWelcome() {
	fmt.Println()
	colours.Title.Println("🌟 Welcome to WonderTales! 🌟")
	fmt.Println()
	colours.Info.Println("📚 Available commands:")
	fmt.Println("  • wondertales start    - Begin a brand new adventure")
	fmt.Println("  • wondertales continue - Pick up where you left off")
	fmt.Println("  • wondertales status   - See your story so far")
	fmt.Println("  • wondertales reset    - Forget the current story")
	fmt.Println("  • wondertales voices   - List the storytelling voices")
	fmt.Println()
	colours.Prompt.Println("✨ Ready for a magical story adventure? ✨")
}

// Interactive continues a saved story, or starts a new one when there is none.
func (wt *WonderTales) Interactive(cmd *cobra.Command, args []string) {
	st, err := wt.Coord.Hydrate(wt.ctx)
	if err != nil {
		colours.Error.Printf("❌ %v\n", err)
		return
	}
	if len(st.Pages) == 0 {
		wt.ShowWelcome()
		wt.StartStory(cmd, args)
		return
	}
	wt.ContinueStory(cmd, args)
}

// StartStory begins a new adventure with the profile from flags, asking for
// a name when none was given.
func (wt *WonderTales) StartStory(cmd *cobra.Command, args []string) {
	if _, err := wt.Coord.Hydrate(wt.ctx); err != nil {
		logrus.WithError(err).Warn("Ignoring saved session")
	}
	profile := profileFromFlags(cmd, wt.Coord.State().Profile)
	if !profile.Complete() {
		colours.Prompt.Print("🧒 What's the hero's name? ")
		name, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		profile.Name = strings.TrimSpace(name)
	}
	if !profile.Complete() {
		colours.Warning.Println("👋 Every story needs a hero. Maybe next time! 🌙")
		return
	}

	fmt.Println()
	colours.Info.Printf("✨ Writing a %s story for %s %s...\n", profile.Theme, profile.Avatar, profile.Name)
	if wt.sfx != nil {
		wt.sfx.Play(audio.SoundMagic)
	}
	if _, err := wt.Coord.Start(wt.ctx, profile); err != nil {
		colours.Error.Printf("❌ Error: %v\n", err)
		return
	}
	wt.read()
}

// ContinueStory resumes the saved story at its last page.
func (wt *WonderTales) ContinueStory(cmd *cobra.Command, args []string) {
	if _, err := wt.Coord.Hydrate(wt.ctx); err != nil {
		colours.Error.Printf("❌ %v\n", err)
		return
	}
	if _, err := wt.Coord.Continue(wt.ctx); err != nil {
		if errors.Is(err, ErrNoStory) {
			colours.Warning.Println("📭 No saved story yet. Run 'wondertales start' to begin one!")
			return
		}
		colours.Error.Printf("❌ Error: %v\n", err)
		return
	}
	colours.Success.Println("📖 Welcome back! Let's keep reading...")
	wt.read()
}

func (wt *WonderTales) read() {
	var player Player
	if wt.engine != nil {
		player = wt.engine
	}
	var sounds Sounds
	if wt.sfx != nil {
		sounds = wt.sfx
	}
	reader := NewReader(wt.Coord, player, sounds, os.Stdout,
		typewriter.WithIntervals(wt.settings.CharInterval, wt.settings.LinePause))

	if err := reader.Run(wt.ctx, os.Stdin); err != nil && !errors.Is(err, context.Canceled) {
		colours.Error.Printf("❌ Error: %v\n", err)
		return
	}
	colours.Prompt.Println("😴 Your story is saved. Sleep tight! 🌙")
}

func (wt *WonderTales) ResetStory(cmd *cobra.Command, args []string) {
	if _, err := wt.Coord.Hydrate(wt.ctx); err != nil {
		logrus.WithError(err).Warn("Ignoring saved session")
	}
	if _, err := wt.Coord.Reset(wt.ctx); err != nil {
		colours.Error.Printf("❌ Error: %v\n", err)
		return
	}
	colours.Success.Println("🧹 Story cleared. A fresh adventure awaits!")
}

// ShowStatus prints the saved session.
func (wt *WonderTales) ShowStatus(cmd *cobra.Command, args []string) {
	st, err := wt.Coord.Hydrate(wt.ctx)
	if err != nil {
		colours.Error.Printf("❌ %v\n", err)
		return
	}

	fmt.Println()
	colours.Title.Println("📊 Story Status")
	fmt.Println()
	p := st.Profile
	if p.Complete() {
		fmt.Printf("  %s %s, age %d | 🎭 Theme: %s | 📄 Format: %s | 🎬 Animation: %s\n",
			p.Avatar, p.Name, p.Age, p.Theme, p.Format, p.AnimationStyle)
	}
	colours.Info.Printf("  Status: %s\n", st.Status)

	if st.Status == session.StatusSetup || len(st.Pages) == 0 {
		colours.Warning.Println("  📭 No pages yet")
		return
	}
	fmt.Println()
	for i, page := range st.Pages {
		marker := "  "
		if i == st.CurrentPageIndex {
			marker = "👉"
		}
		fmt.Printf("%s %d. ", marker, page.PageNumber)
		colours.Title.Printf("%s", page.Title)
		if page.Sidekick != nil {
			fmt.Printf("  with %s %s", page.Sidekick.Emoji, page.Sidekick.Name)
		}
		fmt.Println()
	}
	fmt.Println()
	colours.Success.Printf("✨ %d pages so far! ✨\n", len(st.Pages))
}

// ListVoices shows the speech engines usable here and the voices of the
// configured one.
func (wt *WonderTales) ListVoices(cmd *cobra.Command, args []string) {
	fmt.Println()
	colours.Title.Println("🎤 Storytelling Voices")
	fmt.Println()

	engines := tts.GetAvailableEngines(wt.settings.Gemini)
	names := make([]string, len(engines))
	for i, e := range engines {
		names[i] = e.String()
	}
	colours.Info.Printf("🔧 Available engines: %s\n\n", strings.Join(names, ", "))

	if wt.speech == nil {
		colours.Warning.Println("⚠️ No speech engine configured")
		return
	}

	voices, err := wt.speech.GetAvailableVoices(wt.ctx)
	if err != nil {
		colours.Error.Printf("❌ Failed to list voices: %v\n", err)
		return
	}
	for _, v := range voices {
		fmt.Printf("  • %s", v.Name)
		if v.Role != "" {
			colours.Speaker.Printf(" [%s]", v.Role)
		}
		if v.LanguageCode != "" || v.Gender != "" {
			fmt.Printf(" (%s %s)", v.LanguageCode, v.Gender)
		}
		if v.Description != "" {
			fmt.Printf(" - %s", v.Description)
		}
		fmt.Println()
	}

	cacheable, ok := wt.speech.(tts.CacheableSynthesizer)
	if !ok {
		return
	}
	if clear, _ := cmd.Flags().GetBool("clear-cache"); clear {
		if err := cacheable.ClearCache(); err != nil {
			colours.Error.Printf("❌ Failed to clear cache: %v\n", err)
			return
		}
		colours.Success.Println("🧹 Speech cache cleared")
	}
	if stats, err := cacheable.GetCacheStats(); err == nil {
		fmt.Println()
		colours.Info.Printf("📁 Cache: %v (%v files, %.2f MB)\n",
			stats["cache_directory"], stats["cached_files"], stats["total_size_mb"])
	}
}

// AddProfileFlags registers the profile flags on cmd.
func AddProfileFlags(cmd *cobra.Command) {
	d := story.DefaultProfile()
	cmd.Flags().StringP("name", "n", "", "Hero's name")
	cmd.Flags().IntP("age", "a", d.Age, "Hero's age")
	cmd.Flags().String("avatar", d.Avatar, "Avatar emoji")
	cmd.Flags().StringP("theme", "t", "enchanted forest", "Story theme, e.g. space, ocean, dinosaurs")
	cmd.Flags().StringP("format", "f", string(d.Format), "Story format: digital, single-pages or printable-book")
	cmd.Flags().String("animation", d.AnimationStyle, "Animation style")
}

// profileFromFlags overlays explicitly set flags on base. Unset flags keep
// base values, falling back to the flag defaults when base is empty.
func profileFromFlags(cmd *cobra.Command, base story.Profile) story.Profile {
	flags := cmd.Flags()
	pick := func(name, current string) string {
		if flags.Lookup(name) == nil {
			return current
		}
		v, _ := flags.GetString(name)
		if flags.Changed(name) || current == "" {
			return v
		}
		return current
	}

	p := base
	p.Name = pick("name", p.Name)
	p.Avatar = pick("avatar", p.Avatar)
	p.Theme = pick("theme", p.Theme)
	p.Format = story.Format(pick("format", string(p.Format)))
	p.AnimationStyle = pick("animation", p.AnimationStyle)
	if flags.Lookup("age") != nil && (flags.Changed("age") || p.Age == 0) {
		p.Age, _ = flags.GetInt("age")
	}
	return p
}

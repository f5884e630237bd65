package story

import "strings"

// Reserved speakers
const (
	SpeakerNarrator = "Narrator"
	SpeakerSoundFX  = "SoundFX"
)

// Format is how the finished story is meant to be consumed.
type Format string

const (
	FormatDigital       Format = "digital"
	FormatSinglePages   Format = "single-pages"
	FormatPrintableBook Format = "printable-book"
)

// Profile describes the child the story is written for. It is fixed for the
// duration of a generation cycle and only replaced through SET_PROFILE.
type Profile struct {
	Name           string `json:"name"`
	Age            int    `json:"age"`
	Avatar         string `json:"avatar"`
	Theme          string `json:"theme"`
	Format         Format `json:"format"`
	AnimationStyle string `json:"animationStyle"`
}

// DefaultProfile is the empty profile a fresh session starts with.
func DefaultProfile() Profile {
	return Profile{
		Age:            7,
		Avatar:         "🧒",
		Format:         FormatDigital,
		AnimationStyle: "gentle",
	}
}

// Complete reports whether the profile carries enough to start a story.
func (p Profile) Complete() bool {
	return strings.TrimSpace(p.Name) != ""
}

type ScriptLine struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

func (l ScriptLine) IsNarrator() bool { return l.Speaker == SpeakerNarrator }
func (l ScriptLine) IsSoundFX() bool  { return l.Speaker == SpeakerSoundFX }

type Sidekick struct {
	Name  string `json:"name"`
	Emoji string `json:"emoji"`
}

// Page is one generated scene. PageNumber is 1-based and contiguous across a
// session's history.
type Page struct {
	PageNumber       int          `json:"pageNumber"`
	Title            string       `json:"title"`
	Lines            []ScriptLine `json:"lines"`
	Choices          []string     `json:"choices"`
	ImagePrompt      string       `json:"imagePrompt"`
	ImageURL         string       `json:"imageUrl,omitempty"`
	SoundCue         string       `json:"soundCue,omitempty"`
	AmbientSound     string       `json:"ambientSound,omitempty"`
	AmbientAudioData string       `json:"ambientAudioData,omitempty"`
	Sidekick         *Sidekick    `json:"sidekick,omitempty"`
}

// HasAmbientAudio reports whether the page supplies its own ambience payload.
func (p Page) HasAmbientAudio() bool {
	return p.AmbientAudioData != ""
}

// Script is the structured result of the script step, before media is attached.
type Script struct {
	Title        string       `json:"title"`
	Lines        []ScriptLine `json:"lines"`
	Choices      []string     `json:"choices"`
	ImagePrompt  string       `json:"imagePrompt"`
	SoundCue     string       `json:"soundCue"`
	AmbientSound string       `json:"ambientSound"`
	Sidekick     *Sidekick    `json:"sidekick,omitempty"`
}

// Page builds the page for the given number from the script; media fields are
// left for the caller to fill in.
func (s Script) Page(number int) Page {
	return Page{
		PageNumber:   number,
		Title:        s.Title,
		Lines:        s.Lines,
		Choices:      s.Choices,
		ImagePrompt:  s.ImagePrompt,
		SoundCue:     s.SoundCue,
		AmbientSound: s.AmbientSound,
		Sidekick:     s.Sidekick,
	}
}

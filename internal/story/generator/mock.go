package generator

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"wondertales/internal/domain/story"
	"wondertales/internal/story/audio"
)

// Mock writes simple, deterministic stories without any network access.
type Mock struct{}

func NewMock() *Mock { return &Mock{} }

var mockSidekicks = []struct {
	keywords []string
	sidekick story.Sidekick
}{
	{[]string{"space", "rocket", "robot", "star"}, story.Sidekick{Name: "Rusty the Robot", Emoji: "🤖"}},
	{[]string{"mermaid", "ocean", "sea", "pirate"}, story.Sidekick{Name: "Bubbles the Crab", Emoji: "🦀"}},
	{[]string{"dino", "jungle", "dragon"}, story.Sidekick{Name: "Pip the Baby Dragon", Emoji: "🐉"}},
	{[]string{"candy", "cake", "sweet"}, story.Sidekick{Name: "Gumdrop the Bear", Emoji: "🧸"}},
}

func mockSidekick(theme string) story.Sidekick {
	t := strings.ToLower(theme)
	for _, m := range mockSidekicks {
		for _, k := range m.keywords {
			if strings.Contains(t, k) {
				return m.sidekick
			}
		}
	}
	return story.Sidekick{Name: "Sparkle the Firefly", Emoji: "✨"}
}

func (m *Mock) WriteScript(ctx context.Context, req ScriptRequest) (story.Script, error) {
	if err := ctx.Err(); err != nil {
		return story.Script{}, err
	}
	p := req.Profile
	sk := mockSidekick(p.Theme)
	theme := p.Theme
	if theme == "" {
		theme = "magical"
	}
	scene := len(req.History) + 1
	if len(req.History) > 0 {
		scene = req.History[len(req.History)-1].PageNumber + 1
	}

	if req.IsStart() {
		return story.Script{
			Title: fmt.Sprintf("%s and the %s Door", p.Name, titleCase(theme)),
			Lines: []story.ScriptLine{
				{Speaker: story.SpeakerNarrator, Text: fmt.Sprintf("One bright morning, %s found a tiny glowing door in a %s world.", p.Name, theme)},
				{Speaker: story.SpeakerSoundFX, Text: "*Creeeak*"},
				{Speaker: sk.Name, Text: fmt.Sprintf("Hello, %s! I'm %s. I've been waiting for you!", p.Name, sk.Name)},
				{Speaker: p.Name, Text: "Wow! Where does this door go?"},
			},
			Choices:      []string{"Step through the door", "Knock three times"},
			ImagePrompt:  fmt.Sprintf("%s meeting %s at a glowing door in a %s world", p.Name, sk.Name, theme),
			SoundCue:     "Creaky Door",
			AmbientSound: "Soft chimes and a gentle breeze",
			Sidekick:     &sk,
		}, nil
	}

	choice := req.Choice
	if req.Audio != "" {
		choice = "shout a happy hello"
	}
	if choice == "" {
		choice = "look around"
	}
	return story.Script{
		Title: fmt.Sprintf("Scene %d: A Brave Choice", scene),
		Lines: []story.ScriptLine{
			{Speaker: story.SpeakerNarrator, Text: fmt.Sprintf("%s decided to %s.", p.Name, strings.ToLower(strings.TrimSuffix(choice, ".")))},
			{Speaker: story.SpeakerSoundFX, Text: "*Whoosh*"},
			{Speaker: sk.Name, Text: "That was amazing! What should we do next?"},
		},
		Choices:      []string{"Follow the sparkly trail", "Climb the giggling hill"},
		ImagePrompt:  fmt.Sprintf("%s and %s after they %s", p.Name, sk.Name, choice),
		SoundCue:     "Whoosh",
		AmbientSound: "Playful flute music with chirping birds",
		Sidekick:     &sk,
	}, nil
}

func (m *Mock) Illustrate(ctx context.Context, scene string, _ story.Profile) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "https://picsum.photos/seed/" + url.PathEscape(slug(scene)) + "/800/600", nil
}

// Compose returns a quiet two-note drone.
func (m *Mock) Compose(ctx context.Context, mood string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if mood == "" {
		return "", nil
	}
	low := audio.Tone(220, 2*time.Second, 0.15, audio.SampleRate)
	high := audio.Tone(330, 2*time.Second, 0.1, audio.SampleRate)
	for i := range low.Samples {
		low.Samples[i] += high.Samples[i]
	}
	return audio.Encode(low.Samples), nil
}

var roleTones = map[story.Role]float64{
	story.RoleNarrator: 392,
	story.RoleHero:     523,
	story.RoleSidekick: 659,
	story.RoleSoundFX:  196,
}

// Synthesize plays a short tone per line, pitched by voice role.
func (m *Mock) Synthesize(ctx context.Context, req story.SpeechRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(req.Lines) == 0 {
		return "", nil
	}
	parts := make([]*audio.Buffer, 0, 2*len(req.Lines))
	for _, l := range req.Lines {
		d := time.Duration(len([]rune(l.Text))) * 20 * time.Millisecond
		d = min(max(d, 200*time.Millisecond), 2*time.Second)
		parts = append(parts,
			audio.Tone(roleTones[req.RoleOf(l.Speaker)], d, 0.3, audio.SampleRate),
			audio.Silence(150*time.Millisecond, audio.SampleRate),
		)
	}
	return audio.Encode(audio.Concat(audio.SampleRate, parts...).Samples), nil
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		words[i] = strings.ToUpper(string(r[0])) + string(r[1:])
	}
	return strings.Join(words, " ")
}

func slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case b.Len() > 0 && !strings.HasSuffix(b.String(), "-"):
			b.WriteByte('-')
		}
		if b.Len() >= 48 {
			break
		}
	}
	if out := strings.Trim(b.String(), "-"); out != "" {
		return out
	}
	return "story"
}

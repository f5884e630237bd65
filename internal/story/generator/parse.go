package generator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"wondertales/internal/domain/story"
)

var ErrMalformedScript = errors.New("malformed script")

// ParseScript decodes a script from model output. Markdown fences and any
// chatter around the JSON object are ignored.
func ParseScript(raw string) (story.Script, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		text = text[start : end+1]
	}

	var s story.Script
	if err := json.Unmarshal([]byte(text), &s); err != nil {
		return story.Script{}, fmt.Errorf("%w: %v", ErrMalformedScript, err)
	}
	return s, nil
}

// Normalize cleans a script in place and rejects one the reader could not
// use: no spoken lines or fewer than two choices. Extra choices are dropped.
func Normalize(s *story.Script, p story.Profile) error {
	lines := make([]story.ScriptLine, 0, len(s.Lines))
	for _, l := range s.Lines {
		l.Text = strings.TrimSpace(l.Text)
		l.Speaker = strings.TrimSpace(l.Speaker)
		if l.Text == "" {
			continue
		}
		if l.Speaker == "" {
			l.Speaker = story.SpeakerNarrator
		}
		lines = append(lines, l)
	}
	if len(lines) == 0 {
		return fmt.Errorf("%w: no lines", ErrMalformedScript)
	}
	s.Lines = lines

	choices := make([]string, 0, 2)
	for _, c := range s.Choices {
		if c = strings.TrimSpace(c); c != "" {
			choices = append(choices, c)
		}
	}
	if len(choices) < 2 {
		return fmt.Errorf("%w: %d choices", ErrMalformedScript, len(choices))
	}
	s.Choices = choices[:2]

	s.Title = strings.TrimSpace(s.Title)
	if s.Title == "" {
		s.Title = "A New Adventure"
	}
	if strings.TrimSpace(s.ImagePrompt) == "" {
		s.ImagePrompt = fmt.Sprintf("%s exploring a %s world", p.Name, p.Theme)
	}
	s.AmbientSound = strings.TrimSpace(s.AmbientSound)
	if s.Sidekick != nil && strings.TrimSpace(s.Sidekick.Name) == "" {
		s.Sidekick = nil
	}
	return nil
}

// Fallback is the script used when the script step fails. It always has one
// narrator line and two choices.
func Fallback(p story.Profile) story.Script {
	theme := p.Theme
	if theme == "" {
		theme = "magical"
	}
	return story.Script{
		Title: "The Magic Paused",
		Lines: []story.ScriptLine{
			{Speaker: story.SpeakerNarrator, Text: "Hmm, the magic ink is replenishing. Let's try that again!"},
		},
		Choices:      []string{"Try again", "Start a new adventure"},
		ImagePrompt:  fmt.Sprintf("A magical pause in a %s world", theme),
		SoundCue:     "Silence",
		AmbientSound: "Quiet reflection",
	}
}

package gemini

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"

	"wondertales/internal/domain/story"
)

// Voices maps each voice role to a prebuilt Gemini voice.
var Voices = map[story.Role]string{
	story.RoleNarrator: "Kore",
	story.RoleHero:     "Puck",
	story.RoleSidekick: "Fenrir",
	story.RoleSoundFX:  "Charon",
}

// The multi-speaker voice config accepts exactly this many speakers.
const maxSpeakers = 2

var roleLabels = map[story.Role]string{
	story.RoleNarrator: "Narrator",
	story.RoleHero:     "Hero",
	story.RoleSidekick: "Sidekick",
	story.RoleSoundFX:  "SoundFX",
}

// Synthesize voices a page. Pages with two voice roles use the multi-speaker
// config with one voice per role; anything else, or a failed multi-speaker
// request, is read by a single voice.
func (c *Client) Synthesize(ctx context.Context, req story.SpeechRequest) (string, error) {
	if len(req.Lines) == 0 {
		return "", nil
	}

	roles := req.Roles()
	if len(roles) == maxSpeakers {
		payload, err := c.speak(ctx, roleTranscript(req), multiSpeaker(roles))
		if err == nil {
			return payload, nil
		}
		logrus.WithError(err).Warn("MediaAI: multi-speaker TTS failed, falling back to a single voice")
	}

	voice := Voices[story.RoleNarrator]
	if len(roles) == 1 {
		voice = Voices[roles[0]]
	}
	return c.speak(ctx, plainText(req), &genai.SpeechConfig{VoiceConfig: prebuilt(voice)})
}

func (c *Client) speak(ctx context.Context, text string, speech *genai.SpeechConfig) (string, error) {
	resp, err := c.generate(ctx, c.cfg.SpeechModel, genai.Text(text), &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig:       speech,
	})
	if err != nil {
		return "", err
	}
	blob := firstInline(resp)
	if blob == nil {
		return "", nil
	}
	return base64.StdEncoding.EncodeToString(blob.Data), nil
}

func multiSpeaker(roles []story.Role) *genai.SpeechConfig {
	configs := make([]*genai.SpeakerVoiceConfig, 0, len(roles))
	for _, r := range roles {
		configs = append(configs, &genai.SpeakerVoiceConfig{
			Speaker:     roleLabels[r],
			VoiceConfig: prebuilt(Voices[r]),
		})
	}
	return &genai.SpeechConfig{
		MultiSpeakerVoiceConfig: &genai.MultiSpeakerVoiceConfig{SpeakerVoiceConfigs: configs},
	}
}

func prebuilt(voice string) *genai.VoiceConfig {
	return &genai.VoiceConfig{PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice}}
}

// roleTranscript labels every line with its role so the speaker names in the
// text match the voice config.
func roleTranscript(req story.SpeechRequest) string {
	rows := make([]string, 0, len(req.Lines))
	for _, l := range req.Lines {
		rows = append(rows, roleLabels[req.RoleOf(l.Speaker)]+": "+l.Text)
	}
	return strings.Join(rows, "\n")
}

func plainText(req story.SpeechRequest) string {
	texts := make([]string, 0, len(req.Lines))
	for _, l := range req.Lines {
		texts = append(texts, l.Text)
	}
	return strings.Join(texts, " ")
}

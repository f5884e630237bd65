// Cross-platform eSpeak implementation
package tts

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"wondertales/internal/domain/story"
	"wondertales/internal/story/audio"
)

// eSpeak voice variants per role.
var espeakVariants = map[story.Role]string{
	story.RoleNarrator: "en+f3",
	story.RoleHero:     "en+m3",
	story.RoleSidekick: "en+croak",
	story.RoleSoundFX:  "en+whisper",
}

type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// ESpeakEngine renders speech with eSpeak/eSpeak-NG writing WAV to stdout.
type ESpeakEngine struct {
	config Config
	path   string
	run    commandRunner
}

// newESpeakEngine creates a new eSpeak TTS engine
func newESpeakEngine(config Config) (*ESpeakEngine, error) {
	espeakPath, err := findESpeakExecutable()
	if err != nil {
		return nil, fmt.Errorf("eSpeak not found: %w", err)
	}
	return newESpeakWithRunner(config, espeakPath, runCommand), nil
}

func newESpeakWithRunner(config Config, path string, run commandRunner) *ESpeakEngine {
	if config.Speed <= 0 || config.Speed > 3.0 {
		config.Speed = 1.0
	}
	if config.Volume <= 0 || config.Volume > 2.0 {
		config.Volume = 1.0
	}
	return &ESpeakEngine{config: config, path: path, run: run}
}

func (e *ESpeakEngine) args(voice, text string) []string {
	if e.config.Voice != "" && e.config.Voice != "default" {
		voice = e.config.Voice
	}
	return []string{
		"--stdout",
		"-v", voice,
		// words per minute, default is 175
		"-s", strconv.Itoa(int(175 * e.config.Speed)),
		// amplitude 0-200, default is 100
		"-a", strconv.Itoa(int(100 * e.config.Volume)),
		text,
	}
}

func (e *ESpeakEngine) Synthesize(ctx context.Context, req story.SpeechRequest) (string, error) {
	lines := make([]*audio.Buffer, 0, len(req.Lines))
	for i, l := range req.Lines {
		if strings.TrimSpace(l.Text) == "" {
			continue
		}
		out, err := e.run(ctx, e.path, e.args(espeakVariants[req.RoleOf(l.Speaker)], l.Text)...)
		if err != nil {
			return "", fmt.Errorf("eSpeak failed on line %d: %w", i, err)
		}
		buf, err := decodeWAV(out)
		if err != nil {
			return "", fmt.Errorf("line %d: %w", i, err)
		}
		lines = append(lines, buf)
	}
	return joinLines(lines), nil
}

func (e *ESpeakEngine) GetAvailableVoices(ctx context.Context) ([]VoiceInfo, error) {
	output, err := e.run(ctx, e.path, "--voices=en")
	if err != nil {
		return nil, err
	}
	return parseESpeakVoices(string(output)), nil
}

func (e *ESpeakEngine) Close() error { return nil }

func parseESpeakVoices(output string) []VoiceInfo {
	lines := strings.Split(output, "\n")
	voices := make([]VoiceInfo, 0)

	for i, line := range lines {
		// Skip header line
		if i == 0 || strings.TrimSpace(line) == "" {
			continue
		}

		// Parse voice line: Pty Language Age/Gender VoiceName          File          Other Languages
		fields := strings.Fields(line)
		if len(fields) >= 4 {
			gender := ""
			if parts := strings.Split(fields[2], "/"); len(parts) == 2 {
				gender = map[string]string{"M": "male", "F": "female"}[parts[1]]
			}
			info := VoiceInfo{
				Name:         fields[3],
				LanguageCode: fields[1],
				Gender:       gender,
				Description:  "eSpeak voice",
			}
			if len(fields) >= 5 {
				info.Description = "eSpeak voice " + fields[4]
			}
			voices = append(voices, info)
		}
	}
	return voices
}

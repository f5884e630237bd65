package tts

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"

	"github.com/sirupsen/logrus"

	"wondertales/internal/domain/story"
	"wondertales/internal/story/gemini"
)

type EngineType string

const (
	EngineTypeMock          EngineType = "mock"
	EngineTypeESpeak        EngineType = "espeak"
	EngineTypeGoogleClassic EngineType = "googleclassic"
	EngineTypeGemini        EngineType = "gemini"
	EngineTypeAuto          EngineType = "auto" // Automatically choose best available
)

func (e EngineType) String() string {
	return string(e)
}

// NewEngine creates a synthesizer for config.Type. The gemini backend needs
// geminiCfg.APIKey.
func NewEngine(ctx context.Context, config Config, geminiCfg gemini.Config) (Synthesizer, error) {
	if config.Type == "" || config.Type == EngineTypeAuto.String() {
		config.Type = getBestEngine(geminiCfg).String()
		logrus.WithField("engine", config.Type).Debug("Selected speech engine")
	}

	switch config.Type {
	case EngineTypeMock.String():
		return NewMockTTSEngine(config), nil

	case EngineTypeGemini.String():
		client, err := gemini.New(ctx, geminiCfg)
		if err != nil {
			return nil, err
		}
		return &geminiEngine{client: client}, nil

	case EngineTypeGoogleClassic.String():
		return newGoogleClassicTTSEngine(ctx, config.CachePath)

	case EngineTypeESpeak.String():
		return newESpeakEngine(config)

	default:
		return nil, fmt.Errorf("unsupported TTS engine type: %s", config.Type)
	}
}

// getBestEngine prefers the richest backend that is configured.
func getBestEngine(geminiCfg gemini.Config) EngineType {
	switch {
	case geminiCfg.APIKey != "":
		return EngineTypeGemini
	case hasGoogleCredentials():
		return EngineTypeGoogleClassic
	case hasESpeak():
		return EngineTypeESpeak
	default:
		return EngineTypeMock
	}
}

// GetAvailableEngines returns the engines usable in this environment
func GetAvailableEngines(geminiCfg gemini.Config) []EngineType {
	engines := []EngineType{EngineTypeMock}
	if hasESpeak() {
		engines = append(engines, EngineTypeESpeak)
	}
	if hasGoogleCredentials() {
		engines = append(engines, EngineTypeGoogleClassic)
	}
	if geminiCfg.APIKey != "" {
		engines = append(engines, EngineTypeGemini)
	}
	return engines
}

// hasGoogleCredentials checks if Google Cloud credentials are available
func hasGoogleCredentials() bool {
	// Check for service account key file
	return os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != ""
}

func hasESpeak() bool {
	_, err := findESpeakExecutable()
	return err == nil
}

func findESpeakExecutable() (string, error) {
	for _, candidate := range []string{"espeak-ng", "espeak"} {
		if path, err := exec.LookPath(candidate); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("eSpeak executable not found in PATH")
}

type geminiEngine struct {
	client *gemini.Client
}

func (g *geminiEngine) Synthesize(ctx context.Context, req story.SpeechRequest) (string, error) {
	return g.client.Synthesize(ctx, req)
}

func (g *geminiEngine) GetAvailableVoices(context.Context) ([]VoiceInfo, error) {
	voices := make([]VoiceInfo, 0, len(gemini.Voices))
	for role, name := range gemini.Voices {
		voices = append(voices, VoiceInfo{
			Name:        name,
			Natural:     true,
			Description: "Gemini prebuilt voice",
			Role:        role,
		})
	}
	sort.Slice(voices, func(i, j int) bool { return voices[i].Name < voices[j].Name })
	return voices, nil
}

func (g *geminiEngine) Close() error { return nil }

// internal/story/tts/tts.go
package tts

import (
	"context"

	"wondertales/internal/domain/story"
)

type Config struct {
	Type      string
	Speed     float64
	Volume    float64
	Voice     string
	CachePath string
}

// Synthesizer voices a page. The result is base64 16-bit little-endian mono
// PCM at 24 kHz, or "" when there is nothing to say.
type Synthesizer interface {
	Synthesize(ctx context.Context, req story.SpeechRequest) (string, error)
	GetAvailableVoices(ctx context.Context) ([]VoiceInfo, error)
	Close() error
}

// CacheableSynthesizer keeps synthesized audio on disk between sessions.
type CacheableSynthesizer interface {
	Synthesizer
	GetCacheStats() (map[string]interface{}, error)
	ClearCache() error
}

// VoiceInfo provides detailed information about available voices
type VoiceInfo struct {
	Name         string     `json:"name"`
	LanguageCode string     `json:"language_code"`
	Gender       string     `json:"gender"`
	Natural      bool       `json:"natural"`
	Description  string     `json:"description"`
	Role         story.Role `json:"role,omitempty"`
}

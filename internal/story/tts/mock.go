package tts

import (
	"context"

	"wondertales/internal/domain/story"
	"wondertales/internal/story/generator"
)

// MockTTSEngine renders a tone per line, pitched by voice role, so playback
// can be exercised without any speech service.
type MockTTSEngine struct {
	mock *generator.Mock
}

func NewMockTTSEngine(Config) *MockTTSEngine {
	return &MockTTSEngine{mock: generator.NewMock()}
}

func (m *MockTTSEngine) Synthesize(ctx context.Context, req story.SpeechRequest) (string, error) {
	return m.mock.Synthesize(ctx, req)
}

func (m *MockTTSEngine) GetAvailableVoices(context.Context) ([]VoiceInfo, error) {
	return []VoiceInfo{{Name: "mock-voice", LanguageCode: "en-US", Description: "Synthesized tones"}}, nil
}

func (m *MockTTSEngine) Close() error { return nil }

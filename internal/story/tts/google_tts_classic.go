package tts

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"cloud.google.com/go/texttospeech/apiv1"
	"github.com/sirupsen/logrus"
	texttospeechpb "google.golang.org/genproto/googleapis/cloud/texttospeech/v1"

	"wondertales/internal/domain/story"
	"wondertales/internal/story/audio"
)

// Chirp 3 HD voices matching the Gemini prebuilt voice per role.
var classicVoices = map[story.Role]string{
	story.RoleNarrator: "en-US-Chirp3-HD-Kore",
	story.RoleHero:     "en-US-Chirp3-HD-Puck",
	story.RoleSidekick: "en-US-Chirp3-HD-Fenrir",
	story.RoleSoundFX:  "en-US-Chirp3-HD-Charon",
}

// speechClient is the part of the Cloud TTS client used here.
type speechClient interface {
	synthesize(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest) (*texttospeechpb.SynthesizeSpeechResponse, error)
	listVoices(ctx context.Context) (*texttospeechpb.ListVoicesResponse, error)
	Close() error
}

type cloudClient struct {
	client *texttospeech.Client
}

func (c cloudClient) synthesize(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest) (*texttospeechpb.SynthesizeSpeechResponse, error) {
	return c.client.SynthesizeSpeech(ctx, req)
}

func (c cloudClient) listVoices(ctx context.Context) (*texttospeechpb.ListVoicesResponse, error) {
	return c.client.ListVoices(ctx, &texttospeechpb.ListVoicesRequest{LanguageCode: "en-US"})
}

func (c cloudClient) Close() error { return c.client.Close() }

// GoogleClassicTTSEngine voices each line with Cloud Text-to-Speech and keeps
// the rendered WAV files on disk keyed by voice and text.
type GoogleClassicTTSEngine struct {
	client       speechClient
	mu           sync.Mutex
	cacheRootDir string
}

func newGoogleClassicTTSEngine(ctx context.Context, cacheDir string) (*GoogleClassicTTSEngine, error) {
	client, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create TTS client: %w", err)
	}
	engine, err := newGoogleClassicWithClient(cloudClient{client: client}, cacheDir)
	if err != nil {
		client.Close()
		return nil, err
	}
	return engine, nil
}

func newGoogleClassicWithClient(client speechClient, cacheDir string) (*GoogleClassicTTSEngine, error) {
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "wondertales-tts")
	}
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	return &GoogleClassicTTSEngine{client: client, cacheRootDir: cacheDir}, nil
}

func (g *GoogleClassicTTSEngine) Synthesize(ctx context.Context, req story.SpeechRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	lines := make([]*audio.Buffer, 0, len(req.Lines))
	for i, l := range req.Lines {
		if strings.TrimSpace(l.Text) == "" {
			continue
		}
		voice := classicVoices[req.RoleOf(l.Speaker)]
		data, err := g.lineAudio(ctx, voice, l.Text)
		if err != nil {
			return "", fmt.Errorf("failed to synthesize line %d: %w", i, err)
		}
		buf, err := decodeWAV(data)
		if err != nil {
			return "", fmt.Errorf("line %d: %w", i, err)
		}
		lines = append(lines, buf)
	}
	return joinLines(lines), nil
}

// lineAudio returns the cached WAV for voice and text, synthesizing it first
// when missing.
func (g *GoogleClassicTTSEngine) lineAudio(ctx context.Context, voice, text string) ([]byte, error) {
	path := filepath.Join(g.cacheRootDir, md5Sum(voice+"|"+text)[:16]+".wav")
	if data, err := os.ReadFile(path); err == nil {
		logrus.WithField("path", path).Debug("Using cached speech")
		return data, nil
	}

	resp, err := g.client.synthesize(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: "en-US",
			Name:         voice,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding:   texttospeechpb.AudioEncoding_LINEAR16,
			SampleRateHertz: int32(audio.SampleRate),
		},
	})
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(path, resp.AudioContent, 0644); err != nil {
		logrus.WithError(err).WithField("path", path).Warn("Failed to cache speech")
	}
	return resp.AudioContent, nil
}

func (g *GoogleClassicTTSEngine) GetAvailableVoices(ctx context.Context) ([]VoiceInfo, error) {
	resp, err := g.client.listVoices(ctx)
	if err != nil {
		return nil, err
	}
	roles := make(map[string]story.Role, len(classicVoices))
	for role, name := range classicVoices {
		roles[name] = role
	}

	voices := []VoiceInfo{}
	for _, v := range resp.Voices {
		info := VoiceInfo{
			Name:    v.Name,
			Gender:  strings.ToLower(v.SsmlGender.String()),
			Natural: strings.Contains(v.Name, "Chirp") || strings.Contains(v.Name, "Neural"),
			Role:    roles[v.Name],
		}
		if len(v.LanguageCodes) > 0 {
			info.LanguageCode = v.LanguageCodes[0]
		}
		voices = append(voices, info)
	}
	return voices, nil
}

// GetCacheStats returns cache statistics for the current engine
func (g *GoogleClassicTTSEngine) GetCacheStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var totalFiles int64
	var totalSize int64

	err := filepath.Walk(g.cacheRootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Continue walking despite errors
		}
		if !info.IsDir() && strings.HasSuffix(strings.ToLower(info.Name()), ".wav") {
			totalFiles++
			totalSize += info.Size()
		}
		return nil
	})
	if err != nil {
		return stats, err
	}

	stats["cache_directory"] = g.cacheRootDir
	stats["cached_files"] = totalFiles
	stats["total_size_mb"] = float64(totalSize) / (1024 * 1024)
	return stats, nil
}

// ClearCache removes all cached files
func (g *GoogleClassicTTSEngine) ClearCache() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := os.RemoveAll(g.cacheRootDir); err != nil {
		return err
	}
	return os.MkdirAll(g.cacheRootDir, 0755)
}

func (g *GoogleClassicTTSEngine) Close() error {
	return g.client.Close()
}

func md5Sum(s string) string {
	h := md5.New()
	io.WriteString(h, s)
	return fmt.Sprintf("%x", h.Sum(nil))
}

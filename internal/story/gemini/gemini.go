// Package gemini implements the story generators on top of the Gemini API.
package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"wondertales/internal/domain/story"
	"wondertales/internal/story/generator"
)

var (
	ErrNoAPIKey     = errors.New("gemini API key not configured")
	ErrNoInlineData = errors.New("response carried no inline data")
)

// Config selects the models used for each generative call.
type Config struct {
	APIKey            string
	ScriptModel       string
	ImageModel        string
	AmbientModel      string
	SpeechModel       string
	RequestsPerMinute int
	ThinkingBudget    int32
}

func DefaultConfig() Config {
	return Config{
		ScriptModel:       "gemini-3-pro-preview",
		ImageModel:        "gemini-3-pro-image-preview",
		AmbientModel:      "gemini-2.5-flash-native-audio-preview-09-2025",
		SpeechModel:       "gemini-2.5-flash-preview-tts",
		RequestsPerMinute: 30,
		ThinkingBudget:    1024,
	}
}

// ContentGenerator is the slice of the genai client this package uses.
// *genai.Models satisfies it.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client generates scripts, illustrations, ambience and speech. Every call
// waits on a shared rate limiter first.
type Client struct {
	models  ContentGenerator
	cfg     Config
	limiter *rate.Limiter
}

// New connects to the Gemini API with cfg.APIKey.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return NewWithModels(client.Models, cfg), nil
}

// NewWithModels builds a client around an existing content generator.
func NewWithModels(models ContentGenerator, cfg Config) *Client {
	def := DefaultConfig()
	if cfg.ScriptModel == "" {
		cfg.ScriptModel = def.ScriptModel
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = def.ImageModel
	}
	if cfg.AmbientModel == "" {
		cfg.AmbientModel = def.AmbientModel
	}
	if cfg.SpeechModel == "" {
		cfg.SpeechModel = def.SpeechModel
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}
	return &Client{
		models:  models,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 2),
	}
}

func (c *Client) generate(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := c.models.GenerateContent(ctx, model, contents, config)
	log := logrus.WithFields(logrus.Fields{
		"model":    model,
		"duration": time.Since(start).Round(time.Millisecond),
	})
	if err != nil {
		log.WithError(err).Debug("Gemini request failed")
		return nil, fmt.Errorf("gemini %s: %w", model, err)
	}
	log.Debug("Gemini request completed")
	return resp, nil
}

var scriptSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"title": {Type: genai.TypeString, Description: "A fun, short title for this scene"},
		"lines": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"speaker": {Type: genai.TypeString, Description: "Speaker name. Use 'SoundFX' for sound effects."},
					"text":    {Type: genai.TypeString, Description: "Dialogue or sound effect description (e.g. 'WHOOSH!')"},
				},
				Required: []string{"speaker", "text"},
			},
		},
		"imagePrompt": {Type: genai.TypeString, Description: "Detailed visual description for the illustration"},
		"choices": {
			Type:        genai.TypeArray,
			Items:       &genai.Schema{Type: genai.TypeString},
			Description: "Two distinct, engaging choices for the child",
		},
		"soundCue":     {Type: genai.TypeString, Description: "Short text for a visual sound badge (e.g. 'Magical Sparkles')"},
		"ambientSound": {Type: genai.TypeString, Description: "Description of the background ambient sound loop (e.g. 'Soft wind in the trees')"},
		"sidekick": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"name":  {Type: genai.TypeString},
				"emoji": {Type: genai.TypeString},
			},
		},
	},
	Required: []string{"title", "lines", "imagePrompt", "choices", "ambientSound", "soundCue"},
}

// WriteScript asks the script model for the next scene as schema-bound JSON.
// A captured voice answer is sent inline as WAV next to the text prompt.
func (c *Client) WriteScript(ctx context.Context, req generator.ScriptRequest) (story.Script, error) {
	parts := []*genai.Part{}
	if req.Audio != "" {
		raw, err := base64.StdEncoding.DecodeString(req.Audio)
		if err != nil {
			return story.Script{}, fmt.Errorf("invalid voice input: %w", err)
		}
		parts = append(parts, genai.NewPartFromBytes(raw, "audio/wav"))
	}
	parts = append(parts, genai.NewPartFromText(generator.UserPrompt(req)))

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(generator.SystemInstruction(req.Profile), genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    scriptSchema,
	}
	if c.cfg.ThinkingBudget > 0 {
		config.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: genai.Ptr(c.cfg.ThinkingBudget)}
	}

	resp, err := c.generate(ctx, c.cfg.ScriptModel, []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, config)
	if err != nil {
		return story.Script{}, err
	}
	return generator.ParseScript(resp.Text())
}

// Illustrate returns the first inline image as a data URI.
func (c *Client) Illustrate(ctx context.Context, scene string, profile story.Profile) (string, error) {
	resp, err := c.generate(ctx, c.cfg.ImageModel, genai.Text(generator.ImagePrompt(scene, profile)), nil)
	if err != nil {
		return "", err
	}
	blob := firstInline(resp)
	if blob == nil {
		return "", ErrNoInlineData
	}
	mime := blob.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(blob.Data), nil
}

// Compose returns a base64 PCM ambience loop for mood.
func (c *Client) Compose(ctx context.Context, mood string) (string, error) {
	if mood == "" {
		return "", nil
	}
	resp, err := c.generate(ctx, c.cfg.AmbientModel, genai.Text(generator.AmbientPrompt(mood)), &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
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

func firstInline(resp *genai.GenerateContentResponse) *genai.Blob {
	if resp == nil {
		return nil
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData
			}
		}
	}
	return nil
}

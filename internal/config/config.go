package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/faiface/beep"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"wondertales/internal/story/audio"
	"wondertales/internal/story/gemini"
	"wondertales/internal/story/store"
	"wondertales/internal/story/tts"
	"wondertales/internal/story/typewriter"
)

// Settings is the typed view of the configuration.
type Settings struct {
	LogLevel      string
	GeneratorType string
	HistoryWindow int
	Gemini        gemini.Config
	TTS           tts.Config
	Audio         audio.Config
	AudioEnabled  bool
	SFXVolume     float64
	CharInterval  time.Duration
	LinePause     time.Duration
	Storage       store.Config
}

// SetDefaults registers every key with its default value.
func SetDefaults() {
	g := gemini.DefaultConfig()
	a := audio.DefaultConfig()

	viper.SetDefault("log.level", "info")
	viper.SetDefault("generator.type", "auto") // gemini with an API key, mock otherwise

	viper.SetDefault("gemini.api_key", "")
	viper.SetDefault("gemini.models.script", g.ScriptModel)
	viper.SetDefault("gemini.models.image", g.ImageModel)
	viper.SetDefault("gemini.models.ambient", g.AmbientModel)
	viper.SetDefault("gemini.models.speech", g.SpeechModel)
	viper.SetDefault("gemini.requests_per_minute", g.RequestsPerMinute)
	viper.SetDefault("gemini.thinking_budget", g.ThinkingBudget)

	viper.SetDefault("story.history_window", 3)

	viper.SetDefault("tts.type", "auto") // Auto-select best engine
	viper.SetDefault("tts.voice", "default")
	viper.SetDefault("tts.speed", 1.0)
	viper.SetDefault("tts.volume", 1.0)
	viper.SetDefault("tts.cache_path", "")

	viper.SetDefault("audio.enabled", true)
	viper.SetDefault("audio.sample_rate", int(a.SampleRate))
	viper.SetDefault("audio.ambient_volume", a.AmbientVolume)
	viper.SetDefault("audio.dialogue_volume", a.DialogueVolume)
	viper.SetDefault("audio.sfx_volume", 0.5)
	viper.SetDefault("audio.fade_in", a.FadeIn)
	viper.SetDefault("audio.ramp", a.Ramp)
	viper.SetDefault("audio.settle_delay", a.SettleDelay)

	viper.SetDefault("typewriter.char_interval", typewriter.DefaultCharInterval)
	viper.SetDefault("typewriter.line_pause", typewriter.DefaultLinePause)

	viper.SetDefault("storage.type", string(store.TypeFile))
	viper.SetDefault("storage.path", "")
}

// Init sets up defaults, config file discovery and environment overrides,
// then reads the config file if there is one. file overrides discovery.
func Init(file string) error {
	SetDefaults()

	if file != "" {
		viper.SetConfigFile(file)
	} else {
		viper.SetConfigName("wondertales")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("$HOME/.wondertales")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("WONDERTALES")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	if err := viper.BindEnv("gemini.api_key", "WONDERTALES_GEMINI_API_KEY", "GEMINI_API_KEY", "API_KEY"); err != nil {
		return err
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
		logrus.Debug("No config file found, using defaults")
	} else {
		logrus.WithField("file", viper.ConfigFileUsed()).Debug("Loaded config file")
	}
	return nil
}

// Load reads the current configuration into Settings.
func Load() Settings {
	return Settings{
		LogLevel:      viper.GetString("log.level"),
		GeneratorType: viper.GetString("generator.type"),
		HistoryWindow: viper.GetInt("story.history_window"),
		Gemini: gemini.Config{
			APIKey:            viper.GetString("gemini.api_key"),
			ScriptModel:       viper.GetString("gemini.models.script"),
			ImageModel:        viper.GetString("gemini.models.image"),
			AmbientModel:      viper.GetString("gemini.models.ambient"),
			SpeechModel:       viper.GetString("gemini.models.speech"),
			RequestsPerMinute: viper.GetInt("gemini.requests_per_minute"),
			ThinkingBudget:    viper.GetInt32("gemini.thinking_budget"),
		},
		TTS: tts.Config{
			Type:      viper.GetString("tts.type"),
			Voice:     viper.GetString("tts.voice"),
			Speed:     viper.GetFloat64("tts.speed"),
			Volume:    viper.GetFloat64("tts.volume"),
			CachePath: viper.GetString("tts.cache_path"),
		},
		Audio: audio.Config{
			SampleRate:     audioRate(viper.GetInt("audio.sample_rate")),
			AmbientVolume:  viper.GetFloat64("audio.ambient_volume"),
			DialogueVolume: viper.GetFloat64("audio.dialogue_volume"),
			FadeIn:         viper.GetDuration("audio.fade_in"),
			Ramp:           viper.GetDuration("audio.ramp"),
			SettleDelay:    viper.GetDuration("audio.settle_delay"),
		},
		AudioEnabled: viper.GetBool("audio.enabled"),
		SFXVolume:    viper.GetFloat64("audio.sfx_volume"),
		CharInterval: viper.GetDuration("typewriter.char_interval"),
		LinePause:    viper.GetDuration("typewriter.line_pause"),
		Storage: store.Config{
			Type: store.Type(viper.GetString("storage.type")),
			Path: viper.GetString("storage.path"),
		},
	}
}

// ApplyLogLevel configures logrus from the settings.
func (s Settings) ApplyLogLevel() {
	level, err := logrus.ParseLevel(s.LogLevel)
	if err != nil {
		logrus.WithError(err).WithField("level", s.LogLevel).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

func audioRate(hz int) beep.SampleRate {
	if hz <= 0 {
		return audio.SampleRate
	}
	return beep.SampleRate(hz)
}

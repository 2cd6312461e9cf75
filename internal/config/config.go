package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string `toml:"api_port"`
	WorkerEnabled      bool   `toml:"worker_enabled"`
	BackendAPIKey      string `toml:"backend_api_key"`      // empty = no auth, dev mode
	CorsAllowedOrigins string `toml:"cors_allowed_origins"` // comma-separated, empty = *

	// Runs
	RunsDir           string `toml:"runs_dir"` // one sub-directory per run id
	MaxConcurrentRuns int    `toml:"max_concurrent_runs"`

	// Dispatch (empty = in-process goroutines). A Redis queue is consumed by
	// the same process that accepted the run; one replica per queue.
	RedisURL string `toml:"redis_url"`

	// Archive of finished runs (optional)
	DatabaseURL string `toml:"database_url"`

	// Supabase publishing of finished renders (optional)
	SupabaseURL           string `toml:"supabase_url"`
	SupabaseServiceKey    string `toml:"supabase_service_key"`
	SupabaseStorageBucket string `toml:"supabase_storage_bucket"`

	// Narration
	TTSEngine             string  `toml:"tts_engine"` // elevenlabs | cartesia | openai | gemini | ""
	TTSLanguage           string  `toml:"tts_language"`
	TTSConcurrency        int     `toml:"tts_concurrency"`
	TTSRequestsPerSecond  float64 `toml:"tts_requests_per_second"`
	EspeakFallbackEnabled bool    `toml:"espeak_fallback_enabled"`

	ElevenLabsKey     string `toml:"elevenlabs_api_key"`
	ElevenLabsVoiceID string `toml:"elevenlabs_voice_id"`

	CartesiaKey     string `toml:"cartesia_api_key"`
	CartesiaURL     string `toml:"cartesia_api_url"`
	CartesiaVoiceID string `toml:"cartesia_voice_id"`

	OpenAIKey      string `toml:"openai_api_key"`
	OpenAITTSModel string `toml:"openai_tts_model"`

	GeminiKey         string `toml:"gemini_api_key"`
	GeminiTTSModel    string `toml:"gemini_tts_model"`
	GeminiEmbedModel  string `toml:"gemini_embed_model"`
	StyleDocumentsDir string `toml:"style_documents_dir"` // markdown brand guidelines for style hints

	// Rendering
	FFmpegPath      string `toml:"ffmpeg_path"`
	FFprobePath     string `toml:"ffprobe_path"`
	CaptionsEnabled bool   `toml:"captions_enabled"`
	CaptionFontFile string `toml:"caption_font_file"` // empty = fontconfig default
	RenderWorkers   int    `toml:"render_workers"`
	MusicBedEnabled bool   `toml:"music_bed_enabled"`

	// Observability
	LogLevel          string `toml:"log_level"`
	OtelStdoutEnabled bool   `toml:"otel_stdout_enabled"`
	ServiceName       string `toml:"service_name"`
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:               getEnv("API_PORT", "8080"),
		WorkerEnabled:         getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:         getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins:    getEnv("CORS_ALLOWED_ORIGINS", ""),
		RunsDir:               getEnv("RUNS_DIR", "./uploads"),
		MaxConcurrentRuns:     getEnvInt("MAX_CONCURRENT_RUNS", 2),
		RedisURL:              getEnv("REDIS_URL", ""),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		SupabaseURL:           getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:    getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBucket: getEnv("SUPABASE_STORAGE_BUCKET", "ad-renders"),
		TTSEngine:             strings.ToLower(getEnv("TTS_ENGINE", "")),
		TTSLanguage:           getEnv("TTS_LANGUAGE", "en"),
		TTSConcurrency:        getEnvInt("TTS_CONCURRENCY", 2),
		TTSRequestsPerSecond:  getEnvFloat("TTS_REQUESTS_PER_SECOND", 2),
		EspeakFallbackEnabled: getEnvBool("ESPEAK_FALLBACK_ENABLED", true),
		ElevenLabsKey:         getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID:     getEnv("ELEVENLABS_VOICE_ID", ""),
		CartesiaKey:           getEnv("CARTESIA_API_KEY", ""),
		CartesiaURL:           getEnv("CARTESIA_API_URL", "https://api.cartesia.ai"),
		CartesiaVoiceID:       getEnv("CARTESIA_VOICE_ID", ""),
		OpenAIKey:             getEnv("OPENAI_API_KEY", ""),
		OpenAITTSModel:        getEnv("OPENAI_TTS_MODEL", "tts-1"),
		GeminiKey:             getEnv("GEMINI_API_KEY", ""),
		GeminiTTSModel:        getEnv("GEMINI_TTS_MODEL", "gemini-2.5-flash-preview-tts"),
		GeminiEmbedModel:      getEnv("GEMINI_EMBED_MODEL", "text-embedding-004"),
		StyleDocumentsDir:     getEnv("STYLE_DOCUMENTS_DIR", ""),
		FFmpegPath:            getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:           getEnv("FFPROBE_PATH", "ffprobe"),
		CaptionsEnabled:       getEnvBool("CAPTIONS_ENABLED", true),
		CaptionFontFile:       getEnv("CAPTION_FONT_FILE", ""),
		RenderWorkers:         getEnvInt("RENDER_WORKERS", 2),
		MusicBedEnabled:       getEnvBool("MUSIC_BED_ENABLED", false),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		OtelStdoutEnabled:     getEnvBool("OTEL_STDOUT_ENABLED", false),
		ServiceName:           getEnv("SERVICE_NAME", "adforge"),
	}

	// Optional TOML overlay; explicitly set env vars still win.
	if path := os.Getenv("ADFORGE_CONFIG"); path != "" {
		if err := applyOverlay(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.RunsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create runs dir %s: %w", cfg.RunsDir, err)
	}

	return cfg, nil
}

// Validate checks engine selection and its credentials.
func (c *Config) Validate() error {
	if c.RunsDir == "" {
		return fmt.Errorf("RUNS_DIR is required")
	}

	switch c.TTSEngine {
	case "":
	case "elevenlabs":
		if c.ElevenLabsKey == "" {
			return fmt.Errorf("ELEVENLABS_API_KEY is required when TTS_ENGINE=elevenlabs")
		}
	case "cartesia":
		if c.CartesiaKey == "" {
			return fmt.Errorf("CARTESIA_API_KEY is required when TTS_ENGINE=cartesia")
		}
	case "openai":
		if c.OpenAIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when TTS_ENGINE=openai")
		}
	case "gemini":
		if c.GeminiKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when TTS_ENGINE=gemini")
		}
	default:
		return fmt.Errorf("unsupported TTS_ENGINE %q (allowed: elevenlabs, cartesia, openai, gemini)", c.TTSEngine)
	}

	// Run status lives in this process, so queued runs must be consumed here.
	if c.RedisURL != "" && !c.WorkerEnabled {
		return fmt.Errorf("REDIS_URL requires WORKER_ENABLED=true: run status is tracked in-process")
	}

	if (c.SupabaseURL == "") != (c.SupabaseServiceKey == "") {
		return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY must be set together")
	}

	if c.MaxConcurrentRuns < 1 {
		c.MaxConcurrentRuns = 1
	}
	if c.TTSConcurrency < 1 {
		c.TTSConcurrency = 1
	}
	if c.RenderWorkers < 1 {
		c.RenderWorkers = 1
	}

	return nil
}

// applyOverlay decodes a TOML file on top of cfg. Every toml key mirrors its
// env var in upper case; keys whose env var is set keep the env value.
func applyOverlay(cfg *Config, path string) error {
	overlay := *cfg
	meta, err := toml.DecodeFile(path, &overlay)
	if err != nil {
		return fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("config file %s: unknown keys %v", path, undecoded)
	}

	dst := reflect.ValueOf(cfg).Elem()
	src := reflect.ValueOf(&overlay).Elem()
	fields := dst.Type()

	for i := 0; i < fields.NumField(); i++ {
		key := fields.Field(i).Tag.Get("toml")
		if key == "" || !meta.IsDefined(key) {
			continue
		}
		if os.Getenv(strings.ToUpper(key)) != "" {
			continue
		}
		dst.Field(i).Set(src.Field(i))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

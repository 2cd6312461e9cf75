package services

import (
	"context"
	"strings"

	"golang.org/x/time/rate"
)

// ---------------------------------------------------------------------------
// TTSService is the common interface for text-to-speech providers.
// ElevenLabs, Cartesia, OpenAI and Gemini implement it so narration can use
// whichever is configured without knowing the underlying provider.
// ---------------------------------------------------------------------------

// SpeechRequest describes one narration line.
type SpeechRequest struct {
	Text     string
	Voice    string // provider voice id or name; "" or "default" = provider default
	Language string // ISO 639-1 code, e.g. "en"
	Style    string // free-form delivery hint, e.g. "confident"
}

// TTSResponse is the common response type from any TTS provider.
type TTSResponse struct {
	AudioData  []byte
	Format     string // "mp3", "wav", "pcm", ...
	SampleRate int    // set for raw PCM responses
}

// TTSService is the interface that any TTS provider must implement.
type TTSService interface {
	GenerateSpeech(ctx context.Context, req SpeechRequest) (*TTSResponse, error)
}

// voiceOr returns the requested voice unless it is the generic default.
func voiceOr(voice, fallback string) string {
	v := strings.TrimSpace(voice)
	if v == "" || strings.EqualFold(v, "default") {
		return fallback
	}
	return v
}

// RateLimitedTTS throttles requests to a provider.
type RateLimitedTTS struct {
	next    TTSService
	limiter *rate.Limiter
}

// NewRateLimitedTTS wraps next with a token bucket of rps requests per second.
// A non-positive rps disables limiting.
func NewRateLimitedTTS(next TTSService, rps float64) *RateLimitedTTS {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &RateLimitedTTS{next: next, limiter: rate.NewLimiter(limit, 1)}
}

func (r *RateLimitedTTS) GenerateSpeech(ctx context.Context, req SpeechRequest) (*TTSResponse, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.next.GenerateSpeech(ctx, req)
}

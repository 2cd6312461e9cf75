package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	CartesiaAPIVersion     = "2024-06-10"
	cartesiaDefaultVoiceID = "a0e99841-438c-4a64-b679-ae501e7d6091"
	cartesiaSampleRate     = 24000
)

type CartesiaService struct {
	apiKey         string
	apiURL         string
	apiVersion     string
	defaultVoiceID string
	client         *http.Client
}

var _ TTSService = (*CartesiaService)(nil)

func NewCartesiaService(apiKey, apiURL, voiceID string) *CartesiaService {
	if voiceID == "" {
		voiceID = cartesiaDefaultVoiceID
	}
	return &CartesiaService{
		apiKey:         apiKey,
		apiURL:         strings.TrimRight(apiURL, "/"),
		apiVersion:     CartesiaAPIVersion,
		defaultVoiceID: voiceID,
		client:         &http.Client{Timeout: 60 * time.Second},
	}
}

type CartesiaRequest struct {
	ModelID      string                    `json:"model_id"`
	Transcript   string                    `json:"transcript"`
	Voice        CartesiaVoiceSpecifier    `json:"voice"`
	Language     *string                   `json:"language,omitempty"`
	OutputFormat CartesiaOutputFormat      `json:"output_format"`
	Config       *CartesiaGenerationConfig `json:"generation_config,omitempty"`
}

type CartesiaVoiceSpecifier struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type CartesiaOutputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding,omitempty"`
	SampleRate int    `json:"sample_rate"`
}

type CartesiaGenerationConfig struct {
	Speed   *float64 `json:"speed,omitempty"`
	Emotion *string  `json:"emotion,omitempty"`
}

// GenerateSpeech requests WAV output at the narration sample rate so the
// result needs no resampling.
func (s *CartesiaService) GenerateSpeech(ctx context.Context, req SpeechRequest) (*TTSResponse, error) {
	model := "sonic-english"
	if req.Language != "" && req.Language != "en" {
		model = "sonic-multilingual"
	}

	reqBody := CartesiaRequest{
		ModelID:    model,
		Transcript: req.Text,
		Voice: CartesiaVoiceSpecifier{
			Mode: "id",
			ID:   voiceOr(req.Voice, s.defaultVoiceID),
		},
		OutputFormat: CartesiaOutputFormat{
			Container:  "wav",
			Encoding:   "pcm_s16le",
			SampleRate: cartesiaSampleRate,
		},
	}
	if req.Language != "" {
		lang := req.Language
		reqBody.Language = &lang
	}
	if emotion := emotionForStyle(req.Style); emotion != "" {
		reqBody.Config = &CartesiaGenerationConfig{Emotion: &emotion}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+"/tts/bytes", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Cartesia-Version", s.apiVersion)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("cartesia returned status %d: %s", resp.StatusCode, string(body))
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	if len(audioData) == 0 {
		return nil, fmt.Errorf("cartesia returned empty audio")
	}

	return &TTSResponse{
		AudioData:  audioData,
		Format:     "wav",
		SampleRate: cartesiaSampleRate,
	}, nil
}

// emotionForStyle maps an ad tone onto a Cartesia emotion tag.
func emotionForStyle(style string) string {
	switch strings.ToLower(style) {
	case "confident":
		return "positivity"
	case "friendly", "playful":
		return "positivity:high"
	case "urgent":
		return "surprise"
	case "luxury", "informative":
		return "curiosity:low"
	}
	return ""
}

package services

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const (
	geminiDefaultVoice       = "Kore"
	geminiTTSSampleRate      = 24000
	defaultGeminiSpeechModel = "gemini-2.5-flash-preview-tts"
)

// GeminiTTSService synthesizes speech through the Gemini audio modality.
// Responses are raw 16-bit PCM at 24 kHz mono.
type GeminiTTSService struct {
	client *genai.Client
	model  string
}

var _ TTSService = (*GeminiTTSService)(nil)

func NewGeminiTTSService(ctx context.Context, apiKey, model string) (*GeminiTTSService, error) {
	if model == "" {
		model = defaultGeminiSpeechModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiTTSService{client: client, model: model}, nil
}

func (s *GeminiTTSService) GenerateSpeech(ctx context.Context, req SpeechRequest) (*TTSResponse, error) {
	prompt := req.Text
	if req.Style != "" {
		prompt = fmt.Sprintf("Say in a %s tone: %s", req.Style, req.Text)
	}

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{
					VoiceName: voiceOr(req.Voice, geminiDefaultVoice),
				},
			},
		},
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(prompt), config)
	if err != nil {
		return nil, fmt.Errorf("gemini speech request failed: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini returned no candidates")
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return &TTSResponse{
				AudioData:  part.InlineData.Data,
				Format:     "pcm",
				SampleRate: geminiTTSSampleRate,
			}, nil
		}
	}
	return nil, fmt.Errorf("gemini response carried no audio")
}

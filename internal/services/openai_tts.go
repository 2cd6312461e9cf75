package services

import (
	"context"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const openAIDefaultVoice = openai.VoiceAlloy

// OpenAITTSService synthesizes speech with the OpenAI audio API.
type OpenAITTSService struct {
	client *openai.Client
	model  string
}

var _ TTSService = (*OpenAITTSService)(nil)

func NewOpenAITTSService(apiKey, model string) *OpenAITTSService {
	if model == "" {
		model = string(openai.TTSModel1)
	}
	return &OpenAITTSService{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// GenerateSpeech requests WAV output. The API infers language from the text.
func (s *OpenAITTSService) GenerateSpeech(ctx context.Context, req SpeechRequest) (*TTSResponse, error) {
	voice := openai.SpeechVoice(strings.ToLower(voiceOr(req.Voice, string(openAIDefaultVoice))))

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.model),
		Input:          req.Text,
		Voice:          voice,
		ResponseFormat: openai.SpeechResponseFormatWav,
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech request failed: %w", err)
	}
	defer resp.Close()

	audioData, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read openai speech: %w", err)
	}
	if len(audioData) == 0 {
		return nil, fmt.Errorf("openai returned empty audio")
	}

	return &TTSResponse{
		AudioData: audioData,
		Format:    "wav",
	}, nil
}

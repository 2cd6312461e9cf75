package narration

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/bobarin/adforge/internal/services"
)

// Utterance is one line to speak and how to deliver it.
type Utterance struct {
	Text     string
	Voice    string
	Language string
	Style    string // run tone, e.g. "urgent"; engines may ignore it
}

// Engine is one speech synthesis strategy. Setup reports availability and is
// evaluated once per Synthesize call; Synthesize writes one WAV file at
// SampleRate.
type Engine interface {
	Name() string
	Setup(ctx context.Context) error
	Synthesize(ctx context.Context, u Utterance, outPath string) error
}

// Transcoder converts arbitrary audio into mono PCM WAV.
type Transcoder interface {
	TranscodeToWAV(ctx context.Context, inputPath, inputFormat string, inputRate int, outputPath string, sampleRate int) error
}

// binaryLocator is implemented by transcoders that shell out to a binary.
type binaryLocator interface {
	Available() (ffmpeg, ffprobe bool)
}

var (
	errNoTranscoder          = errors.New("no audio transcoder configured")
	errTranscoderUnavailable = errors.New("audio transcoder binary not found")
)

// checkTranscoder fails when t is missing or its binary cannot be found.
func checkTranscoder(t Transcoder) error {
	if t == nil {
		return errNoTranscoder
	}
	if p, ok := t.(binaryLocator); ok {
		if ffmpeg, _ := p.Available(); !ffmpeg {
			return errTranscoderUnavailable
		}
	}
	return nil
}

// SilenceEngine is the terminal strategy: a fixed-length silent clip per line.
type SilenceEngine struct {
	Seconds float64
}

func (SilenceEngine) Name() string { return "silence" }

func (SilenceEngine) Setup(context.Context) error { return nil }

func (e SilenceEngine) Synthesize(_ context.Context, _ Utterance, outPath string) error {
	seconds := e.Seconds
	if seconds <= 0 {
		seconds = SilenceSeconds
	}
	return WriteSilence(outPath, seconds, SampleRate)
}

// EspeakEngine runs the espeak formant synthesizer and resamples its output.
type EspeakEngine struct {
	transcoder Transcoder
}

func NewEspeakEngine(transcoder Transcoder) *EspeakEngine {
	return &EspeakEngine{transcoder: transcoder}
}

func (e *EspeakEngine) Name() string { return "espeak" }

func (e *EspeakEngine) Setup(context.Context) error {
	if err := checkTranscoder(e.transcoder); err != nil {
		return err
	}
	_, err := services.LocateEspeak()
	return err
}

func (e *EspeakEngine) Synthesize(ctx context.Context, u Utterance, outPath string) error {
	espeak, err := services.LocateEspeak()
	if err != nil {
		return err
	}

	raw := outPath + ".espeak.wav"
	defer os.Remove(raw)

	if err := espeak.SynthesizeToFile(ctx, u.Text, espeakVoice(u.Voice), u.Language, raw); err != nil {
		return err
	}
	return e.transcoder.TranscodeToWAV(ctx, raw, "", 0, outPath, SampleRate)
}

// espeakVoice drops provider-style voice ids that espeak cannot interpret.
func espeakVoice(voice string) string {
	if len(voice) > 12 {
		return ""
	}
	return voice
}

// ProviderEngine adapts a hosted TTS provider to the Engine contract. The
// provider's output format is only known per response, so a working
// transcoder is required up front.
type ProviderEngine struct {
	name       string
	tts        services.TTSService
	transcoder Transcoder
}

func NewProviderEngine(name string, tts services.TTSService, transcoder Transcoder) *ProviderEngine {
	return &ProviderEngine{name: name, tts: tts, transcoder: transcoder}
}

func (e *ProviderEngine) Name() string { return e.name }

func (e *ProviderEngine) Setup(context.Context) error {
	if e.tts == nil {
		return fmt.Errorf("%s provider is not configured", e.name)
	}
	if err := checkTranscoder(e.transcoder); err != nil {
		return fmt.Errorf("%s provider: %w", e.name, err)
	}
	return nil
}

func (e *ProviderEngine) Synthesize(ctx context.Context, u Utterance, outPath string) error {
	resp, err := e.tts.GenerateSpeech(ctx, services.SpeechRequest{
		Text:     u.Text,
		Voice:    u.Voice,
		Language: u.Language,
		Style:    u.Style,
	})
	if err != nil {
		return err
	}
	if len(resp.AudioData) == 0 {
		return fmt.Errorf("%s returned no audio", e.name)
	}

	// Raw PCM at the target rate needs no transcoding.
	if resp.Format == "pcm" && resp.SampleRate == SampleRate {
		return WritePCM(outPath, resp.AudioData, SampleRate)
	}

	if e.transcoder == nil {
		return errNoTranscoder
	}

	src := fmt.Sprintf("%s.%s", outPath, resp.Format)
	if err := os.WriteFile(src, resp.AudioData, 0o644); err != nil {
		return fmt.Errorf("failed to stage provider audio: %w", err)
	}
	defer os.Remove(src)

	inputFormat := ""
	if resp.Format == "pcm" {
		inputFormat = "s16le"
	}
	return e.transcoder.TranscodeToWAV(ctx, src, inputFormat, resp.SampleRate, outPath, SampleRate)
}

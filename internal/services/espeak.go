package services

import (
	"context"
	"fmt"
	"os/exec"
)

// espeakBinaries are tried in order.
var espeakBinaries = []string{"espeak-ng", "espeak"}

// EspeakService drives the espeak formant synthesizer as an external process.
type EspeakService struct {
	binary string
}

// LocateEspeak finds an installed espeak binary.
func LocateEspeak() (*EspeakService, error) {
	for _, name := range espeakBinaries {
		if path, err := exec.LookPath(name); err == nil {
			return &EspeakService{binary: path}, nil
		}
	}
	return nil, fmt.Errorf("espeak executable not found (tried %v)", espeakBinaries)
}

func (s *EspeakService) Binary() string {
	return s.binary
}

// SynthesizeToFile writes the spoken text to a WAV file at espeak's native
// sample rate. voice is an espeak voice name; when empty the language code is
// used as the voice.
func (s *EspeakService) SynthesizeToFile(ctx context.Context, text, voice, lang, outPath string) error {
	v := voiceOr(voice, lang)
	if v == "" {
		v = "en"
	}

	args := []string{"-v", v, "-s", "160", "-w", outPath, "--", text}
	if _, err := runCommand(ctx, s.binary, args...); err != nil {
		return fmt.Errorf("espeak failed (voice=%s): %w", v, err)
	}
	return nil
}

package narration

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobarin/adforge/internal/models"
	"github.com/bobarin/adforge/internal/services"
)

// fakeEngine writes one-second tones for lines not listed in failLines.
type fakeEngine struct {
	name      string
	setupErr  error
	failLines map[string]bool

	mu     sync.Mutex
	setups int
	calls  []string
	styles []string
}

func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) Setup(context.Context) error {
	f.mu.Lock()
	f.setups++
	f.mu.Unlock()
	return f.setupErr
}

func (f *fakeEngine) Synthesize(_ context.Context, u Utterance, outPath string) error {
	f.mu.Lock()
	f.calls = append(f.calls, u.Text)
	f.styles = append(f.styles, u.Style)
	f.mu.Unlock()
	if f.failLines[u.Text] {
		return errors.New("provider rejected line")
	}
	pcm := make([]byte, SampleRate*2)
	for i := range pcm {
		pcm[i] = byte(i)
	}
	return WritePCM(outPath, pcm, SampleRate)
}

func assertClips(t *testing.T, res *Result, n int) {
	t.Helper()
	require.Len(t, res.Paths, n)
	for i, p := range res.Paths {
		info, err := os.Stat(p)
		require.NoError(t, err, "clip %d", i)
		assert.Greater(t, info.Size(), int64(wavHeaderSize), "clip %d", i)
	}
}

func TestSynthesizeMuteVoiceIsSilent(t *testing.T) {
	dir := t.TempDir()
	primary := &fakeEngine{name: "primary"}
	s := NewSynthesizer(2, primary)

	res, err := s.Synthesize(context.Background(), []string{"a", "b", "c"}, "MUTE", "en", dir)
	require.NoError(t, err)

	assertClips(t, res, 3)
	assert.Equal(t, "silence", res.Engine)
	assert.Zero(t, primary.setups, "mute must not touch engines")
	for i, p := range res.Paths {
		assert.Equal(t, filepath.Join(dir, AudioDir, []string{"line_01.wav", "line_02.wav", "line_03.wav"}[i]), p)
		d, err := Duration(p)
		require.NoError(t, err)
		assert.InDelta(t, 2.0, d, 1e-9)
	}
}

func TestSynthesizeTotalEngineFailure(t *testing.T) {
	dir := t.TempDir()
	down := &fakeEngine{name: "primary", setupErr: errors.New("no api key")}
	alsoDown := &fakeEngine{name: "secondary", setupErr: errors.New("not installed")}

	lines := []string{"one", "two", "three", "four", "five", "six"}
	res, err := NewSynthesizer(3, down, alsoDown).Synthesize(context.Background(), lines, "default", "en", dir)
	require.NoError(t, err)

	assertClips(t, res, len(lines))
	assert.Equal(t, "silence", res.Engine)
	assert.Equal(t, 1, down.setups)
	assert.Equal(t, 1, alsoDown.setups)
}

func TestSynthesizeSetupFallsThroughOncePerCall(t *testing.T) {
	dir := t.TempDir()
	down := &fakeEngine{name: "primary", setupErr: errors.New("unreachable")}
	up := &fakeEngine{name: "secondary"}

	res, err := NewSynthesizer(1, down, up).Synthesize(context.Background(), []string{"a", "b", "c"}, "default", "en", dir)
	require.NoError(t, err)

	assert.Equal(t, "secondary", res.Engine)
	assert.Equal(t, 1, down.setups, "setup is evaluated once per call, not per line")
	assert.Empty(t, down.calls)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, up.calls)
	assertClips(t, res, 3)
}

func TestSynthesizePerLineFailureBecomesSilence(t *testing.T) {
	dir := t.TempDir()
	flaky := &fakeEngine{name: "primary", failLines: map[string]bool{"bad": true}}

	res, err := NewSynthesizer(2, flaky).Synthesize(context.Background(), []string{"good", "bad", "fine"}, "default", "en", dir)
	require.NoError(t, err)

	assertClips(t, res, 3)
	assert.Equal(t, 1, res.Placeholders)

	d, err := Duration(res.Paths[1])
	require.NoError(t, err)
	assert.InDelta(t, SilenceSeconds, d, 1e-9)

	d, err = Duration(res.Paths[0])
	require.NoError(t, err)
	assert.InDelta(t, 1.0, d, 1e-9)
}

func TestSynthesizeBlankLineIsSilence(t *testing.T) {
	engine := &fakeEngine{name: "primary"}
	res, err := NewSynthesizer(1, engine).Synthesize(context.Background(), []string{"  "}, "default", "en", t.TempDir())
	require.NoError(t, err)
	assertClips(t, res, 1)
	assert.Empty(t, engine.calls)
}

func TestSynthesizeMissingEspeakIsSilent(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	transcoder := services.NewFFmpegService("", "")
	res, err := NewSynthesizer(2, NewEspeakEngine(transcoder)).Synthesize(context.Background(), []string{"hello", "world"}, "default", "en", t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "silence", res.Engine)
	assertClips(t, res, 2)
}

// recordingProvider returns raw PCM at the target rate and records requests.
type recordingProvider struct {
	mu   sync.Mutex
	reqs []services.SpeechRequest
}

func (p *recordingProvider) GenerateSpeech(_ context.Context, req services.SpeechRequest) (*services.TTSResponse, error) {
	p.mu.Lock()
	p.reqs = append(p.reqs, req)
	p.mu.Unlock()
	return &services.TTSResponse{AudioData: make([]byte, SampleRate), Format: "pcm", SampleRate: SampleRate}, nil
}

// stubTranscoder is never reached on the raw PCM path.
type stubTranscoder struct{}

func (stubTranscoder) TranscodeToWAV(context.Context, string, string, int, string, int) error {
	return errors.New("unexpected transcode")
}

func TestSynthesizePassesToneToEngine(t *testing.T) {
	engine := &fakeEngine{name: "primary"}
	_, err := NewSynthesizer(2, engine).Synthesize(context.Background(), []string{"a", "b"}, "default", "en", t.TempDir(),
		WithTone(models.ToneUrgent))
	require.NoError(t, err)
	assert.Equal(t, []string{"urgent", "urgent"}, engine.styles)
}

func TestProviderReceivesRunTone(t *testing.T) {
	provider := &recordingProvider{}
	s := NewSynthesizer(1, NewProviderEngine("cartesia", provider, stubTranscoder{}))

	res, err := s.Synthesize(context.Background(), []string{"Fresh coffee", "Order today"}, "narrator-1", "de", t.TempDir(),
		WithTone(models.ToneLuxury))
	require.NoError(t, err)
	assert.Equal(t, "cartesia", res.Engine)
	assert.Zero(t, res.Placeholders)

	require.Len(t, provider.reqs, 2)
	for _, req := range provider.reqs {
		assert.Equal(t, "luxury", req.Style)
		assert.Equal(t, "narrator-1", req.Voice)
		assert.Equal(t, "de", req.Language)
	}
}

func TestProviderEngineWritesRawPCMDirectly(t *testing.T) {
	out := filepath.Join(t.TempDir(), "line_01.wav")
	engine := NewProviderEngine("gemini", &recordingProvider{}, stubTranscoder{})

	require.NoError(t, engine.Setup(context.Background()))
	require.NoError(t, engine.Synthesize(context.Background(), Utterance{Text: "hi", Voice: "default", Language: "en"}, out))

	d, err := Duration(out)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, d, 1e-9)
}

func TestProviderEngineWithoutServiceFailsSetup(t *testing.T) {
	assert.Error(t, NewProviderEngine("openai", nil, stubTranscoder{}).Setup(context.Background()))
}

func TestProviderEngineNeedsWorkingTranscoder(t *testing.T) {
	err := NewProviderEngine("elevenlabs", &recordingProvider{}, nil).Setup(context.Background())
	assert.ErrorIs(t, err, errNoTranscoder)

	missing := services.NewFFmpegService("adforge-missing-ffmpeg", "adforge-missing-ffprobe")
	err = NewProviderEngine("elevenlabs", &recordingProvider{}, missing).Setup(context.Background())
	assert.ErrorIs(t, err, errTranscoderUnavailable)
}

func TestSynthesizeFallsBackWhenProviderCannotTranscode(t *testing.T) {
	provider := &recordingProvider{}
	next := &fakeEngine{name: "espeak"}
	missing := services.NewFFmpegService("adforge-missing-ffmpeg", "adforge-missing-ffprobe")

	res, err := NewSynthesizer(1, NewProviderEngine("openai", provider, missing), next).
		Synthesize(context.Background(), []string{"hello"}, "default", "en", t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "espeak", res.Engine)
	assert.Empty(t, provider.reqs)
	assert.Equal(t, []string{"hello"}, next.calls)
}

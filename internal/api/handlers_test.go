package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobarin/adforge/internal/models"
	"github.com/bobarin/adforge/internal/narration"
	"github.com/bobarin/adforge/internal/pipeline"
	"github.com/bobarin/adforge/internal/render"
	"github.com/bobarin/adforge/internal/worker"
)

type stubRenderer struct{}

func (stubRenderer) Render(_ context.Context, _ string, _ models.Storyboard, _ []string, aspect models.Aspect, runDir string, _ ...render.RenderOption) (*render.Result, error) {
	out := filepath.Join(runDir, render.OutputFile)
	if err := os.WriteFile(out, []byte("fake mp4"), 0644); err != nil {
		return nil, err
	}
	w, h, _ := aspect.Dimensions()
	return &render.Result{Path: out, Width: w, Height: h, Duration: 4, Built: 2}, nil
}

type stubAuditor struct{}

func (stubAuditor) Audit(_ context.Context, outPath, _ string, _ models.Storyboard, _ *render.Result, _ models.Aspect, _ string) models.QAReport {
	return models.QAReport{Status: models.QAStatusOK, Path: outPath, FileExists: true, FileSize: 8}
}

type stubTools struct{}

func (stubTools) Available() (bool, bool) { return true, false }

type stubLinks struct{ err error }

func (s stubLinks) DownloadURL(_ context.Context, runID, name string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "https://cdn.example.com/" + runID + "/" + name + "?token=t", nil
}

type testServer struct {
	*httptest.Server
	orch       *pipeline.Orchestrator
	dispatcher *worker.LocalDispatcher
	runsDir    string
}

func newTestServer(t *testing.T, apiKey string, links DownloadLinker) *testServer {
	t.Helper()
	runsDir := t.TempDir()
	orch := pipeline.New(pipeline.Options{RunsDir: runsDir}, pipeline.Stages{
		Narrator: narration.NewSynthesizer(1),
		Renderer: stubRenderer{},
		Auditor:  stubAuditor{},
	})
	dispatcher := worker.NewLocalDispatcher(context.Background(), orch, 2)

	h := NewHandler(orch, dispatcher, links, stubTools{}, func() bool { return true })
	srv := httptest.NewServer(NewRouter(h, RouterConfig{BackendAPIKey: apiKey}))
	t.Cleanup(func() {
		srv.Close()
		dispatcher.Wait()
	})
	return &testServer{Server: srv, orch: orch, dispatcher: dispatcher, runsDir: runsDir}
}

func upload(t *testing.T, srv *testServer, files map[string]string) map[string]any {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/api/upload", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func postJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func waitForStatus(t *testing.T, srv *testServer, runID string, want models.OverallStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		return srv.orch.Status(runID).OverallStatus == want
	}, 5*time.Second, 10*time.Millisecond)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, "secret", nil)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusOK, resp.StatusCode, "health is public")
	assert.Equal(t, map[string]any{"status": "ok", "ffmpeg": true, "ffprobe": false, "espeak": true}, body)
}

func TestUploadRunStatusDownload(t *testing.T) {
	srv := newTestServer(t, "", nil)

	up := upload(t, srv, map[string]string{
		"hero.png":        "img",
		"../../escape.md": "brief text",
	})
	runID := up["run_id"].(string)
	assert.Equal(t, float64(2), up["total_files"])
	assert.ElementsMatch(t, []any{"hero.png", "escape.md"}, up["files"])
	assert.FileExists(t, filepath.Join(srv.runsDir, runID, "escape.md"))

	resp := postJSON(t, srv.URL+"/api/run", map[string]any{"run_id": runID, "target_length": 12, "voice": "mute", "aspect": "1:1"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var started map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&started))
	assert.Equal(t, "started", started["status"])
	assert.Equal(t, "confident", started["parameters"].(map[string]any)["tone"])

	waitForStatus(t, srv, runID, models.OverallSuccess)

	statusResp, err := http.Get(srv.URL + "/api/status/" + runID)
	require.NoError(t, err)
	defer statusResp.Body.Close()
	var status models.RunStatus
	require.NoError(t, json.NewDecoder(statusResp.Body).Decode(&status))
	assert.Equal(t, models.OverallSuccess, status.OverallStatus)
	assert.Len(t, status.Steps, len(models.Stages))

	dl, err := http.Get(srv.URL + "/api/download/" + runID)
	require.NoError(t, err)
	defer dl.Body.Close()
	assert.Equal(t, http.StatusOK, dl.StatusCode)
	assert.Equal(t, "video/mp4", dl.Header.Get("Content-Type"))
	assert.Contains(t, dl.Header.Get("Content-Disposition"), runID+".mp4")

	runs, err := http.Get(srv.URL + "/api/runs")
	require.NoError(t, err)
	defer runs.Body.Close()
	var list models.StatusList
	require.NoError(t, json.NewDecoder(runs.Body).Decode(&list))
	assert.Equal(t, models.StatusCounters{Total: 1, Succeeded: 1}, list.Counters)
}

func TestRunAcceptsFormFields(t *testing.T) {
	srv := newTestServer(t, "", nil)
	runID := upload(t, srv, map[string]string{"a.png": "x"})["run_id"].(string)

	form := url.Values{"run_id": {runID}, "target_length": {"20"}, "tone": {"Playful"}, "voice": {"none"}}
	resp, err := http.PostForm(srv.URL+"/api/run", form)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	waitForStatus(t, srv, runID, models.OverallSuccess)
	assert.Equal(t, models.TonePlayful, srv.orch.Status(runID).Params.Tone)
}

func TestRunErrors(t *testing.T) {
	srv := newTestServer(t, "", nil)
	runID := upload(t, srv, map[string]string{"a.png": "x"})["run_id"].(string)

	tests := []struct {
		name string
		body map[string]any
		code int
	}{
		{"unknown run", map[string]any{"run_id": "does-not-exist"}, http.StatusNotFound},
		{"missing run id", map[string]any{}, http.StatusBadRequest},
		{"bad tone", map[string]any{"run_id": runID, "tone": "angry"}, http.StatusBadRequest},
		{"bad aspect", map[string]any{"run_id": runID, "aspect": "4:3"}, http.StatusBadRequest},
		{"length out of range", map[string]any{"run_id": runID, "target_length": 1000}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, srv.URL+"/api/run", tt.body)
			defer resp.Body.Close()
			assert.Equal(t, tt.code, resp.StatusCode)
		})
	}

	resp, err := http.PostForm(srv.URL+"/api/run", url.Values{"run_id": {runID}, "target_length": {"ten"}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatusNotFound(t *testing.T) {
	srv := newTestServer(t, "", nil)

	resp, err := http.Get(srv.URL + "/api/status/ghost")
	require.NoError(t, err)
	defer resp.Body.Close()

	var status models.RunStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, models.OverallNotFound, status.OverallStatus)
	assert.Equal(t, "ghost", status.RunID)
}

func TestDownloadNotReady(t *testing.T) {
	srv := newTestServer(t, "", nil)

	resp, err := http.Get(srv.URL + "/api/download/ghost")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Not ready", body["error"])
}

func TestDownloadRedirectsWhenPublished(t *testing.T) {
	srv := newTestServer(t, "", stubLinks{})
	runID := upload(t, srv, map[string]string{"a.png": "x"})["run_id"].(string)
	resp := postJSON(t, srv.URL+"/api/run", map[string]any{"run_id": runID, "voice": "mute"})
	resp.Body.Close()
	waitForStatus(t, srv, runID, models.OverallSuccess)

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	dl, err := client.Get(srv.URL + "/api/download/" + runID)
	require.NoError(t, err)
	defer dl.Body.Close()
	assert.Equal(t, http.StatusTemporaryRedirect, dl.StatusCode)
	assert.Equal(t, fmt.Sprintf("https://cdn.example.com/%s/ad_final.mp4?token=t", runID), dl.Header.Get("Location"))
}

func TestDownloadFallsBackToLocalFile(t *testing.T) {
	srv := newTestServer(t, "", stubLinks{err: errors.New("bucket offline")})
	runID := upload(t, srv, map[string]string{"a.png": "x"})["run_id"].(string)
	resp := postJSON(t, srv.URL+"/api/run", map[string]any{"run_id": runID, "voice": "mute"})
	resp.Body.Close()
	waitForStatus(t, srv, runID, models.OverallSuccess)

	dl, err := http.Get(srv.URL + "/api/download/" + runID)
	require.NoError(t, err)
	defer dl.Body.Close()
	assert.Equal(t, http.StatusOK, dl.StatusCode)
}

func TestAPIKeyAuth(t *testing.T) {
	srv := newTestServer(t, "secret", nil)

	resp, err := http.Get(srv.URL + "/api/runs")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/runs", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/api/runs", nil)
	req.Header.Set("X-API-Key", "secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/runs?api_key=secret")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/run?api_key=secret", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "query key only counts for GET")
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"photo.png":             "photo.png",
		"../../etc/passwd":      "passwd",
		`C:\Users\me\brief.txt`: "brief.txt",
		".hidden.png":           "hidden.png",
		"..":                    "",
		"   ":                   "",
		"dir/":                  "dir",
		"spaced name.jpg":       "spaced name.jpg",
	}
	for in, want := range tests {
		assert.Equal(t, want, sanitizeFilename(in), in)
	}
	assert.False(t, strings.Contains(sanitizeFilename("a/b/c.png"), "/"))
}

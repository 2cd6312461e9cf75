package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bobarin/adforge/internal/models"
	"github.com/bobarin/adforge/internal/pipeline"
	"github.com/bobarin/adforge/internal/render"
	"github.com/bobarin/adforge/internal/worker"
)

const (
	maxUploadBytes  = 512 << 20
	multipartMemory = 32 << 20
)

// Runs is the orchestrator surface the HTTP layer needs.
type Runs interface {
	Submit(params models.RunParams) (models.RunParams, error)
	Status(runID string) models.RunStatus
	ListStatuses() models.StatusList
	RunDir(runID string) string
}

// DownloadLinker issues links to published renders.
type DownloadLinker interface {
	DownloadURL(ctx context.Context, runID, name string) (string, error)
}

// ToolProbe reports which external binaries are usable.
type ToolProbe interface {
	Available() (ffmpeg, ffprobe bool)
}

type Handler struct {
	runs       Runs
	dispatcher worker.Dispatcher
	links      DownloadLinker
	tools      ToolProbe
	espeak     func() bool
	logger     *slog.Logger
}

// NewHandler wires the HTTP handlers. links and tools may be nil.
func NewHandler(runs Runs, dispatcher worker.Dispatcher, links DownloadLinker, tools ToolProbe, espeak func() bool) *Handler {
	if espeak == nil {
		espeak = func() bool { return false }
	}
	return &Handler{
		runs:       runs,
		dispatcher: dispatcher,
		links:      links,
		tools:      tools,
		espeak:     espeak,
		logger:     slog.Default().With("component", "api"),
	}
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	var ffmpeg, ffprobe bool
	if h.tools != nil {
		ffmpeg, ffprobe = h.tools.Available()
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"ffmpeg":  ffmpeg,
		"ffprobe": ffprobe,
		"espeak":  h.espeak(),
	})
}

// Upload handles POST /api/upload. Every call creates a new run directory.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart upload")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		respondError(w, http.StatusBadRequest, "At least one file is required in field 'files'")
		return
	}

	runID := uuid.New().String()
	runDir := h.runs.RunDir(runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		h.logger.Error("failed to create run dir", "run_id", runID, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to create run directory")
		return
	}

	saved := make([]string, 0, len(headers))
	for _, fh := range headers {
		name := sanitizeFilename(fh.Filename)
		if name == "" {
			h.logger.Warn("skipping upload with unusable name", "run_id", runID, "name", fh.Filename)
			continue
		}

		src, err := fh.Open()
		if err != nil {
			respondError(w, http.StatusBadRequest, "Failed to read uploaded file")
			return
		}
		err = saveFile(filepath.Join(runDir, name), src)
		src.Close()
		if err != nil {
			h.logger.Error("failed to store upload", "run_id", runID, "file", name, "error", err)
			respondError(w, http.StatusInternalServerError, "Failed to store uploaded file")
			return
		}
		saved = append(saved, name)
	}

	h.logger.Info("files uploaded", "run_id", runID, "count", len(saved))
	respondJSON(w, http.StatusOK, map[string]any{
		"run_id":      runID,
		"files":       saved,
		"total_files": len(saved),
	})
}

func saveFile(dest string, src io.Reader) error {
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// sanitizeFilename keeps the base name of an upload and drops leading dots
// so nothing lands outside the run directory or hides from the classifier.
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = filepath.Base(name)
	name = strings.TrimLeft(name, ".")
	name = strings.TrimSpace(name)
	if name == "" || name == "/" {
		return ""
	}
	return name
}

// Run handles POST /api/run. Accepts JSON or form fields.
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	params, err := decodeRunParams(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	params, err = h.runs.Submit(params)
	switch {
	case errors.Is(err, models.ErrInvalidParams):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, pipeline.ErrRunDirMissing):
		respondError(w, http.StatusNotFound, "Run not found. Upload files first")
		return
	case errors.Is(err, pipeline.ErrRunActive):
		respondError(w, http.StatusConflict, "Run is already in progress")
		return
	case err != nil:
		h.logger.Error("failed to submit run", "run_id", params.RunID, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to submit run")
		return
	}

	if err := h.dispatcher.Dispatch(r.Context(), params); err != nil {
		h.logger.Error("failed to dispatch run", "run_id", params.RunID, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to dispatch run")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]any{
		"run_id":     params.RunID,
		"status":     "started",
		"parameters": params,
	})
}

func decodeRunParams(r *http.Request) (models.RunParams, error) {
	var params models.RunParams

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			return params, errors.New("invalid request body")
		}
		return params, nil
	}

	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return params, errors.New("invalid form body")
		}
	} else if err := r.ParseForm(); err != nil {
		return params, errors.New("invalid form body")
	}

	params.RunID = r.FormValue("run_id")
	params.Tone = models.Tone(r.FormValue("tone"))
	params.Voice = r.FormValue("voice")
	params.Aspect = models.Aspect(r.FormValue("aspect"))
	params.Language = r.FormValue("language")
	if v := strings.TrimSpace(r.FormValue("target_length")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return params, errors.New("target_length must be an integer")
		}
		params.TargetLength = n
	}
	return params, nil
}

// Status handles GET /api/status/{runID}
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	status := h.runs.Status(chi.URLParam(r, "runID"))
	code := http.StatusOK
	if status.OverallStatus == models.OverallNotFound {
		code = http.StatusNotFound
	}
	respondJSON(w, code, status)
}

// ListRuns handles GET /api/runs
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.runs.ListStatuses())
}

// Download handles GET /api/download/{runID}. Published renders redirect to
// a signed URL; otherwise the local file is streamed.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if runID == "" || runID == "." || runID == ".." || strings.ContainsAny(runID, `/\`) {
		respondError(w, http.StatusBadRequest, "Invalid run ID")
		return
	}

	if h.links != nil && h.runs.Status(runID).OverallStatus == models.OverallSuccess {
		url, err := h.links.DownloadURL(r.Context(), runID, render.OutputFile)
		if err == nil {
			http.Redirect(w, r, url, http.StatusTemporaryRedirect)
			return
		}
		h.logger.Warn("signed URL unavailable, serving local file", "run_id", runID, "error", err)
	}

	path := filepath.Join(h.runs.RunDir(runID), render.OutputFile)
	f, err := os.Open(path)
	if err != nil {
		respondError(w, http.StatusNotFound, "Not ready")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		respondError(w, http.StatusNotFound, "Not ready")
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.mp4"`, runID))
	http.ServeContent(w, r, render.OutputFile, info.ModTime(), f)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/huntgest/internal/chunker"
	"github.com/dgallion1/huntgest/internal/parser"
	"github.com/dgallion1/huntgest/internal/pipeline"
	"github.com/dgallion1/huntgest/internal/report"
	"github.com/dgallion1/huntgest/internal/source"
)

// maxHypotheses bounds the per-request hypothesis count.
const maxHypotheses = 20

// submitRequest is the JSON body accepted by the submit endpoints.
type submitRequest struct {
	Source       string `json:"source"`
	Selector     string `json:"selector"`
	Hypotheses   int    `json:"hypotheses"`
	ABLE         bool   `json:"able"`
	ChunkSize    int    `json:"chunk_size"`
	ChunkOverlap *int   `json:"chunk_overlap"`
}

// errBadRequest marks request validation failures.
var errBadRequest = errors.New("bad request")

func (s *Server) handleSubmit(kind pipeline.JobKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Limit total request size.
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

		req, data, err := s.decodeSubmission(r)
		if err != nil {
			jsonError(w, err.Error(), statusFor(err))
			return
		}
		req.Kind = kind

		if err := s.validateSubmission(req); err != nil {
			jsonError(w, err.Error(), statusFor(err))
			return
		}

		job := pipeline.NewJob(req)
		if data != nil {
			job.SetFileData(data)
		}
		if err := s.orchestrator.Submit(job); err != nil {
			jsonError(w, err.Error(), http.StatusServiceUnavailable)
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]any{
			"job_id":     job.ID,
			"kind":       kind,
			"status":     pipeline.StatusQueued,
			"poll_url":   fmt.Sprintf("/api/jobs/%s", job.ID),
			"result_url": fmt.Sprintf("/api/jobs/%s/result", job.ID),
		})
	}
}

// decodeSubmission reads either a JSON body naming a URL or a multipart
// upload with a "file" part.
func (s *Server) decodeSubmission(r *http.Request) (pipeline.JobRequest, []byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var body submitRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return pipeline.JobRequest{}, nil, fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
		}
		return pipeline.JobRequest{
			Source:       strings.TrimSpace(body.Source),
			Selector:     body.Selector,
			Hypotheses:   body.Hypotheses,
			ABLE:         body.ABLE,
			ChunkSize:    body.ChunkSize,
			ChunkOverlap: body.ChunkOverlap,
		}, nil, nil
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return pipeline.JobRequest{}, nil, fmt.Errorf("%w: invalid multipart form: %v", errBadRequest, err)
	}
	defer r.MultipartForm.RemoveAll()

	req := pipeline.JobRequest{
		Source:   strings.TrimSpace(r.FormValue("source")),
		Selector: r.FormValue("selector"),
		ABLE:     r.FormValue("able") == "true",
	}
	var err error
	if req.Hypotheses, err = formInt(r, "hypotheses"); err != nil {
		return req, nil, err
	}
	if req.ChunkSize, err = formInt(r, "chunk_size"); err != nil {
		return req, nil, err
	}
	if v := r.FormValue("chunk_overlap"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, nil, fmt.Errorf("%w: chunk_overlap must be an integer", errBadRequest)
		}
		req.ChunkOverlap = &n
	}

	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil, nil
	}
	if err != nil {
		return req, nil, fmt.Errorf("%w: file: %v", errBadRequest, err)
	}
	defer file.Close()

	req.Filename = sanitizeFilename(header.Filename)
	if !parser.IsSupportedExtension(req.Filename) {
		return req, nil, fmt.Errorf("%w: %s", source.ErrUnsupportedFormat, filepath.Ext(req.Filename))
	}

	// Read file data.
	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return req, nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		return req, nil, &tooLargeError{limit: s.cfg.MaxUploadBytes}
	}
	return req, data, nil
}

func (s *Server) validateSubmission(req pipeline.JobRequest) error {
	if req.Filename == "" {
		if req.Source == "" {
			return fmt.Errorf("%w: source or file is required", errBadRequest)
		}
		if !source.IsURL(req.Source) {
			return fmt.Errorf("%w: source must be an http(s) URL", errBadRequest)
		}
	}
	if req.Hypotheses < 0 || req.Hypotheses > maxHypotheses {
		return fmt.Errorf("%w: hypotheses must be between 0 and %d", errBadRequest, maxHypotheses)
	}
	return req.ChunkParams(s.cfg.ChunkParams()).Validate()
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job := s.orchestrator.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

// handleJobResult returns the finished run output. format=csv renders the
// indicators and format=markdown the report.
func (s *Server) handleJobResult(w http.ResponseWriter, r *http.Request) {
	job := s.orchestrator.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	snap := job.Snapshot()
	switch snap.Status {
	case pipeline.StatusFailed, pipeline.StatusCancelled:
		err := job.Failure()
		if err == nil {
			err = errors.New(strings.Join(snap.Progress.Errors, "; "))
		}
		writeJSON(w, statusFor(err), map[string]any{"error": err.Error(), "job": snap})
		return
	case pipeline.StatusCompleted, pipeline.StatusPartial:
	default:
		writeJSON(w, http.StatusAccepted, snap)
		return
	}

	switch res := job.Result().(type) {
	case *pipeline.IntelResult:
		switch r.URL.Query().Get("format") {
		case "csv":
			w.Header().Set("Content-Type", "text/csv")
			res.Intel.WriteCSV(w)
		case "markdown":
			w.Header().Set("Content-Type", "text/markdown")
			report.WriteIntelMarkdown(w, snap.Source, res.Intel)
		default:
			writeJSON(w, http.StatusOK, map[string]any{"job": snap, "result": res})
		}
	case *pipeline.HuntResult:
		switch r.URL.Query().Get("format") {
		case "csv":
			w.Header().Set("Content-Type", "text/csv")
			res.Intel.WriteCSV(w)
		case "markdown":
			w.Header().Set("Content-Type", "text/markdown")
			report.WritePlanMarkdown(w, res.Plan, res.Intel)
		default:
			writeJSON(w, http.StatusOK, map[string]any{"job": snap, "result": res})
		}
	default:
		jsonError(w, "job has no result", http.StatusInternalServerError)
	}
}

type tooLargeError struct{ limit int64 }

func (e *tooLargeError) Error() string {
	return fmt.Sprintf("file exceeds max size (%d bytes)", e.limit)
}

// statusFor maps pipeline and request errors to HTTP status codes.
func statusFor(err error) int {
	var tooLarge *tooLargeError
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, chunker.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.As(err, &tooLarge), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, source.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, source.ErrSourceUnreachable), errors.Is(err, pipeline.ErrPipelineFailed):
		return http.StatusBadGateway
	case errors.Is(err, pipeline.ErrPipelineCancelled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func formInt(r *http.Request, key string) (int, error) {
	v := r.FormValue(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errBadRequest, key)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	// Remove any path separators that might have survived.
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}

package pipeline

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/huntgest/internal/chunker"
)

// JobKind selects how much of the pipeline a job runs.
type JobKind string

const (
	KindAnalyze JobKind = "analyze" // extraction and aggregation only
	KindHunt    JobKind = "hunt"    // full hunt plan
)

// JobStatus represents the state of a job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusLoading    JobStatus = "loading"
	StatusExtracting JobStatus = "extracting"
	StatusPlanning   JobStatus = "planning"
	StatusCompleted  JobStatus = "completed"
	StatusPartial    JobStatus = "partial"
	StatusFailed     JobStatus = "failed"
	StatusCancelled  JobStatus = "cancelled"
)

// Done reports whether the status is terminal.
func (s JobStatus) Done() bool {
	switch s {
	case StatusCompleted, StatusPartial, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// JobRequest is what a client submits.
type JobRequest struct {
	Kind       JobKind `json:"kind"`
	Source     string  `json:"source,omitempty"`
	Selector   string  `json:"selector,omitempty"`
	Filename   string  `json:"filename,omitempty"`
	Hypotheses int     `json:"hypotheses,omitempty"`
	ABLE       bool    `json:"able,omitempty"`

	// Chunking overrides; zero values keep the configured defaults.
	ChunkSize    int  `json:"chunk_size,omitempty"`
	ChunkOverlap *int `json:"chunk_overlap,omitempty"`
}

// ChunkParams applies the request's chunking overrides to defaults.
func (r JobRequest) ChunkParams(defaults chunker.Params) chunker.Params {
	p := defaults
	if r.ChunkSize > 0 {
		p.Size = r.ChunkSize
	}
	if r.ChunkOverlap != nil {
		p.Overlap = *r.ChunkOverlap
	}
	return p
}

// Job tracks the state of a single pipeline run.
type Job struct {
	mu sync.Mutex

	ID      string     `json:"job_id"`
	Request JobRequest `json:"request"`

	Status JobStatus `json:"status"`
	Phase  string    `json:"phase"`
	Title  string    `json:"title"`

	Progress     Progress      `json:"progress"`
	Degradations []Degradation `json:"degradations"`

	ContentHash string    `json:"content_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Internal: not serialized.
	fileData []byte
	result   any
	failure  error
	errors   []string
}

// Progress tracks processing progress.
type Progress struct {
	TotalChunks     int      `json:"total_chunks"`
	ChunksProcessed int      `json:"chunks_processed"`
	ChunksFailed    int      `json:"chunks_failed"`
	Indicators      int      `json:"indicators"`
	Hypotheses      int      `json:"hypotheses"`
	Errors          []string `json:"errors"`
}

// NewJob returns a queued job with a fresh ID.
func NewJob(req JobRequest) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.NewString(),
		Request:   req,
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Len returns the number of tracked jobs.
func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Cleanup removes expired jobs.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		updated := job.UpdatedAt
		job.mu.Unlock()
		if now.Sub(updated) > s.ttl {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// RecordChunk counts a finished chunk. Safe to call from extraction workers.
func (j *Job) RecordChunk(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.ChunksProcessed++
	if err != nil {
		j.Progress.ChunksFailed++
	}
	j.UpdatedAt = time.Now()
}

// SetTotalChunks records total chunk count.
func (j *Job) SetTotalChunks(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.TotalChunks = n
	j.UpdatedAt = time.Now()
}

// SetCounts records indicator and hypothesis counts.
func (j *Job) SetCounts(indicators, hypotheses int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.Indicators = indicators
	j.Progress.Hypotheses = hypotheses
	j.UpdatedAt = time.Now()
}

// AddDegradations appends non-fatal failures reported by the run.
func (j *Job) AddDegradations(d []Degradation) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Degradations = append(j.Degradations, d...)
	j.UpdatedAt = time.Now()
}

// SetFileData sets the raw file bytes for processing.
func (j *Job) SetFileData(data []byte) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fileData = data
}

// FileData returns the raw file bytes.
func (j *Job) FileData() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fileData
}

// SetResult stores the finished run output and releases the upload.
func (j *Job) SetResult(v any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.result = v
	j.fileData = nil
	j.UpdatedAt = time.Now()
}

// SetFailure records the error that ended the job.
func (j *Job) SetFailure(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.failure = err
	j.fileData = nil
}

// Failure returns the error that ended the job, if any.
func (j *Job) Failure() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.failure
}

// Result returns the stored output, or nil while the job is running.
func (j *Job) Result() any {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID           string        `json:"job_id"`
	Kind         JobKind       `json:"kind"`
	Source       string        `json:"source"`
	Status       JobStatus     `json:"status"`
	Phase        string        `json:"phase"`
	Title        string        `json:"title"`
	Progress     Progress      `json:"progress"`
	Degradations []Degradation `json:"degradations"`
	ContentHash  string        `json:"content_hash,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := append([]string{}, j.Progress.Errors...)
	degs := append([]Degradation{}, j.Degradations...)
	source := j.Request.Source
	if source == "" {
		source = j.Request.Filename
	}
	p := j.Progress
	p.Errors = errs
	return JobSnapshot{
		ID:           j.ID,
		Kind:         j.Request.Kind,
		Source:       source,
		Status:       j.Status,
		Phase:        j.Phase,
		Title:        j.Title,
		Progress:     p,
		Degradations: degs,
		ContentHash:  j.ContentHash,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}

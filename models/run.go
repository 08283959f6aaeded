package models

import (
	"sync"
	"time"
)

// RunSummary accumulates the outcome of one batch run. Its record methods are
// safe for concurrent use by pipeline workers.
type RunSummary struct {
	mu sync.Mutex

	Processed int       `json:"processed"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	FailedIDs []string  `json:"failed_ids,omitempty"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

func NewRunSummary() *RunSummary {
	return &RunSummary{StartedAt: time.Now().UTC()}
}

func (s *RunSummary) RecordProcessed() {
	s.mu.Lock()
	s.Processed++
	s.mu.Unlock()
}

func (s *RunSummary) RecordSkipped() {
	s.mu.Lock()
	s.Skipped++
	s.mu.Unlock()
}

// RecordFailed marks one document as failed and remembers its id so the
// caller can surface it for a targeted retry.
func (s *RunSummary) RecordFailed(id string) {
	s.mu.Lock()
	s.Failed++
	s.FailedIDs = append(s.FailedIDs, id)
	s.mu.Unlock()
}

// Finish stamps the end time and returns the summary for chaining.
func (s *RunSummary) Finish() *RunSummary {
	s.mu.Lock()
	s.EndedAt = time.Now().UTC()
	s.mu.Unlock()
	return s
}

// ProcessedCount reads the processed counter under the lock.
func (s *RunSummary) ProcessedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Processed
}

// FailedCount reads the failed counter under the lock.
func (s *RunSummary) FailedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Failed
}

// FailedIDList returns a copy of the failed ids recorded so far.
func (s *RunSummary) FailedIDList() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.FailedIDs))
	copy(out, s.FailedIDs)
	return out
}

// PipelineStats is the aggregated view of the pipeline served by the ops API.
type PipelineStats struct {
	States     map[string]int64 `json:"states"`
	Languages  map[string]int64 `json:"languages"`
	Sentiments map[string]int64 `json:"sentiments"`
	IndexDocs  int64            `json:"index_docs"`
}

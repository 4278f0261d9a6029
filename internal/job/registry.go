package job

import (
	"sync"
	"time"
)

// State is the asynchronous processing state for one asset.
type State string

const (
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"

	// StateNotFound is synthesized for queries against unknown assets.
	// It is never stored.
	StateNotFound State = "not_found"
)

// Terminal reports whether s admits no further transition.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Status is one asset's job record. SegmentURLs is populated only in
// the completed state, ordered ascending by segment number.
type Status struct {
	State       State     `json:"status"`
	Message     string    `json:"message,omitempty"`
	SegmentURLs []string  `json:"segment_urls,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Registry is the single source of truth for job state, shared between
// the request handlers and the background segmentation pipeline. One
// coarse lock guards the whole map; readers never observe a partially
// written record. Entries are retained for the life of the process.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]Status
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]Status)}
}

// Begin registers assetID as processing if no entry exists yet and
// reports whether it won. A false return means a job for this asset is
// already in flight or finished, making pipeline hand-off idempotent
// against duplicate final-chunk retries.
func (r *Registry) Begin(assetID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[assetID]; ok {
		return false
	}
	r.jobs[assetID] = Status{
		State:     StateProcessing,
		Message:   "segmentation in progress",
		UpdatedAt: time.Now().UTC(),
	}
	return true
}

// Complete records the terminal completed state with its segment URLs.
// A no-op if the entry is already terminal.
func (r *Registry) Complete(assetID string, segmentURLs []string) {
	r.set(assetID, Status{
		State:       StateCompleted,
		Message:     "segmentation complete",
		SegmentURLs: segmentURLs,
	})
}

// Fail records the terminal failed state. A no-op if the entry is
// already terminal.
func (r *Registry) Fail(assetID, message string) {
	r.set(assetID, Status{
		State:   StateFailed,
		Message: message,
	})
}

func (r *Registry) set(assetID string, st Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.jobs[assetID]; ok && cur.State.Terminal() {
		return
	}
	st.UpdatedAt = time.Now().UTC()
	r.jobs[assetID] = st
}

// Get returns the status for assetID, or ok=false when no job was ever
// registered for it.
func (r *Registry) Get(assetID string) (Status, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.jobs[assetID]
	return st, ok
}

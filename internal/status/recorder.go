package status

import (
	"context"
	"sync"
)

// Recorder collects statuses in memory for tests and embedded use.
type Recorder struct {
	mu       sync.Mutex
	statuses []Status
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Report appends the status
func (r *Recorder) Report(ctx context.Context, st Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, st)
	return nil
}

// Statuses returns a copy of everything reported so far
func (r *Recorder) Statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, len(r.statuses))
	copy(out, r.statuses)
	return out
}

// ForRun returns statuses reported for one run id
func (r *Recorder) ForRun(runID string) []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Status
	for _, st := range r.statuses {
		if st.RunID == runID {
			out = append(out, st)
		}
	}
	return out
}

// Package status publishes terminal run results for the submitting
// client to poll or stream.
package status

import (
	"context"
	"encoding/json"
	"time"
)

// State is a terminal run state as seen by the submitter.
type State string

const (
	// Succeeded means the run completed and carries a result payload.
	Succeeded State = "succeeded"
	// Failed means the run itself faulted on its final attempt.
	Failed State = "failed"
	// PermanentlyFailed means the attempt budget was exhausted without
	// a successful run.
	PermanentlyFailed State = "permanently_failed"
)

// Status is one terminal run report.
type Status struct {
	RunID      string          `json:"run_id"`
	State      State           `json:"state"`
	Result     json.RawMessage `json:"result,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	Attempt    int             `json:"attempt"`
	FinishedAt time.Time       `json:"finished_at"`
}

// Reporter delivers terminal statuses to the external status channel.
type Reporter interface {
	Report(ctx context.Context, st Status) error
}

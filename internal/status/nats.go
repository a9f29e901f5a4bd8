package status

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSReporter publishes terminal statuses as JSON to
// <prefix>.<run_id>, where the submitting client subscribes.
type NATSReporter struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSReporter creates a reporter on an existing connection
func NewNATSReporter(nc *nats.Conn, prefix string) *NATSReporter {
	if prefix == "" {
		prefix = "runs.status"
	}
	return &NATSReporter{nc: nc, prefix: prefix}
}

// Report publishes one terminal status
func (r *NATSReporter) Report(ctx context.Context, st Status) error {
	if st.FinishedAt.IsZero() {
		st.FinishedAt = time.Now()
	}

	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", r.prefix, st.RunID)
	if err := r.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish status: %w", err)
	}
	return nil
}

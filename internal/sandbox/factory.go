package sandbox

import (
	"fmt"
	"sync/atomic"

	"github.com/hollowaylabs/agentrunner/internal/logging"
	"github.com/hollowaylabs/agentrunner/internal/shared/id"
)

// ProcessFactory builds sandbox processes, assigning each instance a
// fresh id and a port from the configured span.
type ProcessFactory struct {
	Launcher Launcher
	Process  ProcessConfig
	Client   ClientConfig // BaseURL is derived per instance
	Host     string
	BasePort int
	PortSpan int
	Logger   *logging.Logger

	next atomic.Uint32
}

// New creates an unstarted process bound to the next port in the span.
// The span wraps; a port is only reused after its previous occupant has
// been terminated, which the pool's bounded size guarantees as long as
// the span exceeds the maximum pool size.
func (f *ProcessFactory) New() *Process {
	host := f.Host
	if host == "" {
		host = "127.0.0.1"
	}
	span := f.PortSpan
	if span <= 0 {
		span = 100
	}

	n := f.next.Add(1) - 1
	port := f.BasePort + int(n%uint32(span))

	cfg := f.Client
	cfg.BaseURL = fmt.Sprintf("http://%s:%d", host, port)

	sid := id.NewSandboxID()
	return NewProcess(sid, port, NewClient(cfg), f.Launcher, f.Process, f.Logger)
}

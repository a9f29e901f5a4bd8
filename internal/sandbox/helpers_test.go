package sandbox

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hollowaylabs/agentrunner/internal/logging"
	"github.com/hollowaylabs/agentrunner/internal/shared/id"
)

// fakeAutomation emulates one automation-service instance: a liveness
// endpoint and the operation surface under /api/automation/.
type fakeAutomation struct {
	srv     *httptest.Server
	healthy atomic.Bool
	failOps atomic.Bool

	mu  sync.Mutex
	ops []string
}

func newFakeAutomation(t *testing.T) *fakeAutomation {
	t.Helper()

	f := &fakeAutomation{}
	f.healthy.Store(true)

	mux := http.NewServeMux()
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		if !f.healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/api/automation/", func(w http.ResponseWriter, r *http.Request) {
		op := strings.TrimPrefix(r.URL.Path, "/api/automation/")
		f.mu.Lock()
		f.ops = append(f.ops, op)
		f.mu.Unlock()

		if f.failOps.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"result":"done"}`))
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeAutomation) recordedOps() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

func (f *fakeAutomation) client() *Client {
	return NewClient(ClientConfig{
		BaseURL:        f.srv.URL,
		RequestTimeout: 2 * time.Second,
		HealthTimeout:  500 * time.Millisecond,
	})
}

type fakeHandle struct {
	stopped atomic.Bool
}

func (h *fakeHandle) Stop() error {
	h.stopped.Store(true)
	return nil
}

type fakeLauncher struct {
	err error

	mu      sync.Mutex
	handles []*fakeHandle
}

func (l *fakeLauncher) Launch(ctx context.Context, sid id.SandboxID, port int) (Handle, error) {
	if l.err != nil {
		return nil, l.err
	}
	h := &fakeHandle{}
	l.mu.Lock()
	l.handles = append(l.handles, h)
	l.mu.Unlock()
	return h, nil
}

func (l *fakeLauncher) launched() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.handles)
}

// testFactory builds processes bound to a shared fake service so pool
// tests exercise real bootstrap, probing, and hand-off paths.
type testFactory struct {
	auto     *fakeAutomation
	launcher *fakeLauncher
	process  ProcessConfig
}

func (f *testFactory) New() *Process {
	return NewProcess(id.NewSandboxID(), 0, f.auto.client(), f.launcher, f.process, logging.NewNop())
}

// fastProcessConfig keeps bootstrap and probing quick enough for tests
func fastProcessConfig() ProcessConfig {
	return ProcessConfig{
		HealthMaxAttempts: 3,
		HealthInterval:    10 * time.Millisecond,
		ProbeInterval:     10 * time.Millisecond,
		ProbeFailureLimit: 3,
	}
}

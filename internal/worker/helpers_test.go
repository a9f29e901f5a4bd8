package worker

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hollowaylabs/agentrunner/internal/logging"
	"github.com/hollowaylabs/agentrunner/internal/queue"
	"github.com/hollowaylabs/agentrunner/internal/sandbox"
	"github.com/hollowaylabs/agentrunner/internal/shared/id"
)

// fakeService emulates the automation service. Behavior is keyed off
// the operation name: "explode" always fails, "hang" blocks until the
// request is cancelled or the gate is opened, everything else succeeds.
type fakeService struct {
	srv        *httptest.Server
	healthy    atomic.Bool
	gate       chan struct{}
	flakyCalls atomic.Int32

	mu  sync.Mutex
	ops []string

	// opStarted receives the op name when a handler begins, so tests
	// can synchronize with in-flight work
	opStarted chan string
}

func newFakeService(t *testing.T) *fakeService {
	t.Helper()

	f := &fakeService{
		gate:      make(chan struct{}),
		opStarted: make(chan string, 32),
	}
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
		// Drain the body so the server watches the connection and
		// cancels r.Context() when the client disconnects; otherwise
		// the "hang" cases below never unblock on client abort.
		io.Copy(io.Discard, r.Body)
		op := strings.TrimPrefix(r.URL.Path, "/api/automation/")
		f.mu.Lock()
		f.ops = append(f.ops, op)
		f.mu.Unlock()

		select {
		case f.opStarted <- op:
		default:
		}

		switch op {
		case "explode":
			w.WriteHeader(http.StatusInternalServerError)
		case "flaky-hang":
			// First call faults, subsequent calls behave like "hang";
			// exercises a retry that is still in flight
			if f.flakyCalls.Add(1) == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			select {
			case <-r.Context().Done():
				w.WriteHeader(http.StatusInternalServerError)
			case <-f.gate:
				w.Write([]byte(`{"result":"done"}`))
			}
		case "hang":
			select {
			case <-r.Context().Done():
				w.WriteHeader(http.StatusInternalServerError)
			case <-f.gate:
				w.Write([]byte(`{"result":"done"}`))
			}
		default:
			w.Write([]byte(`{"result":"done"}`))
		}
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeService) open() {
	close(f.gate)
}

func (f *fakeService) recordedOps() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

func (f *fakeService) waitForOp(t *testing.T, op string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case started := <-f.opStarted:
			if started == op {
				return
			}
		case <-deadline:
			t.Fatalf("operation %s never started", op)
		}
	}
}

// stubDelivery scripts settlement results for consumer tests
type stubDelivery struct {
	job      queue.Job
	ackErr   error
	acks     atomic.Int32
	requeues atomic.Int32
}

func (d *stubDelivery) Job() queue.Job { return d.job }

func (d *stubDelivery) Ack() error {
	d.acks.Add(1)
	return d.ackErr
}

func (d *stubDelivery) Requeue(attempt int) error {
	d.requeues.Add(1)
	return nil
}

// stubQueue hands out scripted deliveries, then blocks
type stubQueue struct {
	deliveries chan queue.Delivery
}

func newStubQueue(deliveries ...queue.Delivery) *stubQueue {
	ch := make(chan queue.Delivery, len(deliveries))
	for _, d := range deliveries {
		ch <- d
	}
	return &stubQueue{deliveries: ch}
}

func (q *stubQueue) Receive(ctx context.Context) (queue.Delivery, error) {
	select {
	case d := <-q.deliveries:
		return d, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *stubQueue) Close() error { return nil }

type stubHandle struct{}

func (stubHandle) Stop() error { return nil }

type stubLauncher struct{}

func (stubLauncher) Launch(ctx context.Context, sid id.SandboxID, port int) (sandbox.Handle, error) {
	return stubHandle{}, nil
}

type serviceFactory struct {
	svc *fakeService
}

func (f *serviceFactory) New() *sandbox.Process {
	client := sandbox.NewClient(sandbox.ClientConfig{
		BaseURL:        f.svc.srv.URL,
		RequestTimeout: 5 * time.Second,
		HealthTimeout:  500 * time.Millisecond,
	})
	cfg := sandbox.ProcessConfig{
		HealthMaxAttempts: 3,
		HealthInterval:    10 * time.Millisecond,
		ProbeInterval:     25 * time.Millisecond,
		ProbeFailureLimit: 3,
	}
	return sandbox.NewProcess(id.NewSandboxID(), 0, client, stubLauncher{}, cfg, logging.NewNop())
}

func newTestPool(t *testing.T, svc *fakeService, max int) *sandbox.Pool {
	t.Helper()

	pool := sandbox.NewPool(
		sandbox.PoolConfig{MaxSandboxes: max, AcquireTimeout: 5 * time.Second},
		&serviceFactory{svc: svc},
		logging.NewNop(),
		nil,
	)
	t.Cleanup(pool.Close)
	return pool
}

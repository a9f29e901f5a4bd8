package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hollowaylabs/agentrunner/internal/logging"
	"github.com/hollowaylabs/agentrunner/internal/shared/id"
)

// Launcher starts the underlying automation-service process for a
// sandbox instance.
type Launcher interface {
	Launch(ctx context.Context, sid id.SandboxID, port int) (Handle, error)
}

// Handle controls a launched process.
type Handle interface {
	// Stop signals the process to terminate and reaps it.
	Stop() error
}

// ExecLauncher launches the configured automation-service command with
// the instance port passed through the environment.
type ExecLauncher struct {
	Command string
	Args    []string
	Logger  *logging.Logger
}

// Launch starts the process in its own process group so Stop can take
// down child processes with it.
func (l *ExecLauncher) Launch(ctx context.Context, sid id.SandboxID, port int) (Handle, error) {
	cmd := exec.Command(l.Command, l.Args...)
	cmd.Env = append(os.Environ(), fmt.Sprintf("PORT=%d", port))
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Err: err}
	}

	h := &execHandle{cmd: cmd, done: make(chan struct{})}
	go func() {
		// Reap to avoid zombies; exit status is observed via probes
		err := cmd.Wait()
		close(h.done)
		if err != nil && l.Logger != nil {
			l.Logger.Debug("sandbox process exited",
				zap.String("sandbox_id", sid.String()),
				zap.Error(err),
			)
		}
	}()

	return h, nil
}

type execHandle struct {
	cmd  *exec.Cmd
	done chan struct{}
	once sync.Once
	err  error
}

// Stop sends SIGTERM to the process group, escalating to SIGKILL if the
// process does not exit promptly.
func (h *execHandle) Stop() error {
	h.once.Do(func() {
		pid := h.cmd.Process.Pid
		if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
			h.err = h.cmd.Process.Kill()
			return
		}

		select {
		case <-h.done:
		case <-time.After(5 * time.Second):
			h.err = syscall.Kill(-pid, syscall.SIGKILL)
		}
	})
	return h.err
}

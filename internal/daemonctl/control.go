package daemonctl

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"easel/internal/ipc"
)

const pollInterval = 200 * time.Millisecond

// ErrSessionNotRunning means nothing answers on the session socket.
var ErrSessionNotRunning = errors.New("session not running")

// LaunchOptions are forwarded to the detached `easel run`.
type LaunchOptions struct {
	SocketPath string
	ConfigPath string
}

func (o LaunchOptions) args() []string {
	args := []string{"run"}
	if v := strings.TrimSpace(o.SocketPath); v != "" {
		args = append(args, "--socket", v)
	}
	if v := strings.TrimSpace(o.ConfigPath); v != "" {
		args = append(args, "--config", v)
	}
	return args
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

type StartResult struct {
	State StartState
	PID   int
}

type StopResult struct {
	PID        int
	ForcedKill bool
}

// Launch starts `easel run` in its own session so it outlives the calling
// terminal. The session writes its own log file; stdio goes to /dev/null.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return errors.New("launch session: executable path is empty")
	}
	cmd := exec.Command(executablePath, opts.args()...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch session: %w", err)
	}
	return cmd.Process.Release()
}

// poll calls done every pollInterval until it reports true or timeout passes.
func poll(timeout time.Duration, done func() bool) bool {
	for deadline := time.Now().Add(timeout); ; time.Sleep(pollInterval) {
		if done() {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
	}
}

// WaitForClient dials socketPath until the session answers.
func WaitForClient(socketPath string, timeout time.Duration) (*ipc.Client, error) {
	var (
		client *ipc.Client
		err    error
	)
	if poll(timeout, func() bool {
		client, err = ipc.Dial(socketPath)
		return err == nil
	}) {
		return client, nil
	}
	return nil, fmt.Errorf("session did not answer within %s: %w", timeout, err)
}

// WaitForShutdown returns once nothing answers on socketPath.
func WaitForShutdown(socketPath string, timeout time.Duration) error {
	gone := poll(timeout, func() bool {
		client, err := ipc.Dial(socketPath)
		if err != nil {
			return true
		}
		_ = client.Close()
		return false
	})
	if !gone {
		return fmt.Errorf("session did not stop within %s", timeout)
	}
	return nil
}

// EnsureStarted launches a background session unless one already answers on
// socketPath, and reports the session pid either way.
func EnsureStarted(socketPath, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	result := StartResult{State: StartStateAlreadyRunning}
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if err := Launch(executablePath, opts); err != nil {
			return StartResult{}, err
		}
		if client, err = WaitForClient(socketPath, waitTimeout); err != nil {
			return StartResult{}, err
		}
		result.State = StartStateStarted
	}
	defer client.Close()

	resp, err := client.Status()
	if err != nil {
		return StartResult{}, err
	}
	result.PID = resp.Status.PID
	return result, nil
}

// ProcessInfo reports whether a session answers on socketPath, and its pid. A
// missing socket or a refused connection is not an error.
func ProcessInfo(socketPath string) (bool, int, error) {
	client, err := ipc.Dial(socketPath)
	switch {
	case errors.Is(err, unix.ENOENT), errors.Is(err, unix.ECONNREFUSED):
		return false, 0, nil
	case err != nil:
		return false, 0, err
	}
	defer client.Close()
	resp, err := client.Status()
	if err != nil {
		return true, 0, err
	}
	return true, resp.Status.PID, nil
}

// Stop sends SIGTERM to the session and waits gracePeriod for its socket to
// go quiet. A session that is still answering is killed and its socket
// removed.
func Stop(socketPath string, gracePeriod time.Duration) (StopResult, error) {
	alive, pid, err := ProcessInfo(socketPath)
	switch {
	case err != nil:
		return StopResult{}, err
	case !alive:
		return StopResult{}, ErrSessionNotRunning
	case pid <= 0:
		return StopResult{}, errors.New("session did not report its pid")
	case pid == os.Getpid():
		return StopResult{}, fmt.Errorf("refusing to signal own process %d", pid)
	}

	result := StopResult{PID: pid}
	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		return result, fmt.Errorf("signal session %d: %w", pid, err)
	}
	if WaitForShutdown(socketPath, gracePeriod) == nil {
		return result, nil
	}
	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return result, fmt.Errorf("kill session %d: %w", pid, err)
	}
	_ = os.Remove(socketPath)
	result.ForcedKill = true
	return result, nil
}

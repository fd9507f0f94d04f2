package session

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"iptv-bridge/internal/logging"
)

// encoderLogName is the per-session file that captures encoder stderr.
const encoderLogName = "encoder.log"

// exitState describes how an encoder process ended.
type exitState struct {
	code   int
	killed bool
}

// supervisor owns a running encoder process. It funnels process exit into
// a single channel so status updates and stop requests cannot race on
// Wait.
type supervisor struct {
	cmd    *exec.Cmd
	done   chan struct{}
	exit   exitState
	killed atomic.Bool
}

// startProcess spawns the encoder in dir with its output captured to the
// session's encoder log.
func startProcess(binary string, args []string, dir string) (*supervisor, error) {
	logFile, err := os.Create(filepath.Join(dir, encoderLogName))
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(binary, args...)
	cmd.Dir = dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return nil, err
	}

	s := &supervisor{
		cmd:  cmd,
		done: make(chan struct{}),
	}

	go func() {
		err := cmd.Wait()
		if closeErr := logFile.Close(); closeErr != nil {
			logging.Warn("Failed to close encoder log in %s: %v", dir, closeErr)
		}

		code := 0
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				code = exitErr.ExitCode()
			} else {
				code = -1
			}
		}
		s.exit = exitState{code: code, killed: s.killed.Load()}
		close(s.done)
	}()

	return s, nil
}

func (s *supervisor) pid() int {
	return s.cmd.Process.Pid
}

// wait returns a channel closed once the process has exited and its exit
// state is readable.
func (s *supervisor) wait() <-chan struct{} {
	return s.done
}

// exitState is only valid after the wait channel has closed.
func (s *supervisor) exitState() exitState {
	return s.exit
}

// stop terminates the process: SIGTERM first so the encoder can flush its
// playlist, escalating to SIGKILL after the grace period. It blocks until
// the process has exited and is safe to call after exit.
func (s *supervisor) stop(grace time.Duration) exitState {
	select {
	case <-s.done:
		return s.exit
	default:
	}

	s.killed.Store(true)
	if err := s.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		logging.Debug("SIGTERM to pid %d failed: %v", s.pid(), err)
	}

	select {
	case <-s.done:
	case <-time.After(grace):
		logging.Warn("Encoder pid %d did not exit within %s, sending SIGKILL", s.pid(), grace)
		if err := s.cmd.Process.Kill(); err != nil {
			logging.Debug("SIGKILL to pid %d failed: %v", s.pid(), err)
		}
		<-s.done
	}
	return s.exit
}

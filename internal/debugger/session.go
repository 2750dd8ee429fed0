package debugger

import (
	"context"
	stderrors "errors"
	"net"
	"os/exec"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/uber-go/tally/v4"
	"go.uber.org/multierr"

	"github.com/ctagard/godot-bridge/internal/errors"
	"github.com/ctagard/godot-bridge/pkg/types"
)

// DebugSession is a debugger listening for, or attached to, one runtime.
// It is created by Launcher.StartSession and owned by the caller, who must
// Dispose it whether it attached, failed or is still waiting.
type DebugSession struct {
	ID                    string
	ExecutionMode         types.ExecutionMode
	ListenPort            int
	MaxConnectionAttempts int
	WorkingDirectory      string
	Project               types.ProjectIdentity
	CreatedAt             time.Time

	engine        Engine
	listener      net.Listener
	attemptWindow time.Duration
	log           logr.Logger
	stats         tally.Scope

	// Editor process started for Launch mode
	process *exec.Cmd

	mu         sync.RWMutex
	status     types.SessionStatus
	err        error
	attempts   int
	attachment Attachment

	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
	disposeOnce sync.Once
	disposeErr  error
}

// run waits for the runtime in up to MaxConnectionAttempts windows and attaches to it
func (s *DebugSession) run() {
	defer close(s.done)

	type accepted struct {
		conn net.Conn
		err  error
	}
	acceptCh := make(chan accepted, 1)
	go func() {
		conn, err := s.listener.Accept()
		acceptCh <- accepted{conn, err}
	}()

	// Closing the listener releases the port and unblocks Accept
	var drained bool
	defer func() {
		_ = s.listener.Close()
		if !drained {
			if res := <-acceptCh; res.conn != nil {
				_ = res.conn.Close()
			}
		}
	}()

	for attempt := 1; attempt <= s.MaxConnectionAttempts; attempt++ {
		s.mu.Lock()
		s.attempts = attempt
		s.mu.Unlock()
		s.log.V(1).Info("Waiting for runtime", "attempt", attempt, "maxAttempts", s.MaxConnectionAttempts, "port", s.ListenPort)

		timer := time.NewTimer(s.attemptWindow)
		select {
		case res := <-acceptCh:
			timer.Stop()
			drained = true
			if res.err != nil {
				s.finish(types.SessionStatusFailed, errors.AttachFailed(res.err))
				return
			}
			s.attach(res.conn)
			return
		case <-timer.C:
		case <-s.ctx.Done():
			timer.Stop()
			s.finish(types.SessionStatusTerminated, nil)
			return
		}
	}

	s.stats.Counter("session_timeouts").Inc(1)
	s.finish(types.SessionStatusFailed, errors.SessionTimeout(s.ListenPort, s.MaxConnectionAttempts, s.attemptWindow))
}

func (s *DebugSession) attach(conn net.Conn) {
	s.log.Info("Runtime connected", "remote", conn.RemoteAddr().String())

	attachment, err := s.engine.Attach(s.ctx, conn, AttachInfo{
		SessionID:        s.ID,
		ExecutionMode:    s.ExecutionMode,
		WorkingDirectory: s.WorkingDirectory,
		Project:          s.Project,
	})
	if err != nil {
		_ = conn.Close()
		if s.ctx.Err() != nil {
			s.finish(types.SessionStatusTerminated, nil)
			return
		}
		s.finish(types.SessionStatusFailed, errors.AttachFailed(err))
		return
	}

	s.mu.Lock()
	s.attachment = attachment
	s.mu.Unlock()
	s.stats.Counter("sessions_attached").Inc(1)
	s.finish(types.SessionStatusAttached, nil)
}

func (s *DebugSession) currentAttachment() Attachment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attachment
}

func (s *DebugSession) finish(status types.SessionStatus, err error) {
	s.mu.Lock()
	s.status = status
	s.err = err
	s.mu.Unlock()

	if err != nil {
		s.log.Info("Debug session failed", "error", err.Error())
	} else {
		s.log.V(1).Info("Debug session settled", "status", string(status))
	}
}

// Done is closed once the session attached, failed or was disposed while waiting
func (s *DebugSession) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session settles and returns its failure, if any.
// A SessionTimeout is only reported after the last connection window has elapsed.
func (s *DebugSession) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the failure that ended the wait, if any
func (s *DebugSession) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Status returns the current session status
func (s *DebugSession) Status() types.SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.status == types.SessionStatusAttached && s.attachment != nil {
		select {
		case <-s.attachment.Terminated():
			return types.SessionStatusTerminated
		default:
		}
	}
	return s.status
}

// Attempts returns how many connection windows have been opened so far
func (s *DebugSession) Attempts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attempts
}

// PID returns the process ID of the editor started for Launch mode, or zero
func (s *DebugSession) PID() int {
	if s.process == nil || s.process.Process == nil {
		return 0
	}
	return s.process.Process.Pid
}

// Info returns a snapshot for reporting
func (s *DebugSession) Info() types.SessionInfo {
	info := types.SessionInfo{
		SessionID:             s.ID,
		ExecutionMode:         s.ExecutionMode,
		Status:                s.Status(),
		ListenPort:            s.ListenPort,
		MaxConnectionAttempts: s.MaxConnectionAttempts,
		WorkingDirectory:      s.WorkingDirectory,
		Project:               s.Project.ProjectDirectory,
		PID:                   s.PID(),
	}
	if err := s.Err(); err != nil {
		info.Error = err.Error()
	}
	return info
}

// Dispose cancels a pending wait, detaches the debugger, releases the port
// and stops the editor process started for Launch mode. Safe to call repeatedly.
func (s *DebugSession) Dispose() error {
	s.disposeOnce.Do(func() {
		s.cancel()
		<-s.done

		var errs error
		if attachment := s.currentAttachment(); attachment != nil {
			errs = multierr.Append(errs, attachment.Detach())
		}
		if s.process != nil {
			// Uses platform-specific implementation (process_unix.go / process_windows.go)
			errs = multierr.Append(errs, killProcessGroup(s.PID(), s.process))
			_ = s.process.Wait()
		}

		s.mu.Lock()
		s.status = types.SessionStatusTerminated
		s.mu.Unlock()

		if errs != nil && !stderrors.Is(errs, net.ErrClosed) {
			s.log.Info("Debug session disposed with errors", "error", errs.Error())
		}
		s.disposeErr = errs
	})
	return s.disposeErr
}

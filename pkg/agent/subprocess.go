package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

func decodeJSON(raw []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	return dec.Decode(v)
}

// SubprocessConfig configures a subprocess-backed invoker
type SubprocessConfig struct {
	// Command is the agent argv; the request is written to stdin as JSON
	Command []string
	// Kind selects the output parser variant
	Kind string
	// Timeout bounds one turn end to end; zero means no bound
	Timeout time.Duration
}

// SubprocessInvoker runs one agent process per turn. While a turn is running
// its stdin stays open, so steer input can be delivered as JSON lines.
type SubprocessInvoker struct {
	command []string
	parser  Parser
	timeout time.Duration
	logger  zerolog.Logger

	mu     sync.Mutex
	stdins map[string]io.Writer
}

// NewSubprocessInvoker builds an invoker for the configured agent command
func NewSubprocessInvoker(cfg SubprocessConfig, logger zerolog.Logger) (*SubprocessInvoker, error) {
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("agent command is required")
	}

	parser, err := ParserFor(cfg.Kind)
	if err != nil {
		return nil, err
	}

	return &SubprocessInvoker{
		command: cfg.Command,
		parser:  parser,
		timeout: cfg.Timeout,
		logger:  logger.With().Str("module", "agent").Logger(),
	}, nil
}

// steerFrame is the JSON line written to a running process for live input
type steerFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Steer writes text into the running invocation for sessionKey.
// Returns false when no invocation is running or its stdin is gone.
func (s *SubprocessInvoker) Steer(sessionKey, text string) bool {
	s.mu.Lock()
	stdin, ok := s.stdins[sessionKey]
	s.mu.Unlock()
	if !ok {
		return false
	}

	frame, err := json.Marshal(steerFrame{Type: "input", Text: text})
	if err != nil {
		return false
	}
	if _, err := stdin.Write(append(frame, '\n')); err != nil {
		s.logger.Warn().
			Str("session_key", sessionKey).
			Err(err).
			Msg("Steer write failed")
		return false
	}

	return true
}

// Invoke spawns the agent process, feeds it the request, waits for exit and
// parses stdout. Context cancellation kills the process.
func (s *SubprocessInvoker) Invoke(ctx context.Context, req InvokeRequest) (InvokeResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var cancel context.CancelFunc
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, s.command[0], s.command[1:]...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return InvokeResult{}, &InvocationError{Stage: "launch", Err: err}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return InvokeResult{}, &InvocationError{Stage: "launch", Err: err}
	}

	s.mu.Lock()
	if s.stdins == nil {
		s.stdins = make(map[string]io.Writer)
	}
	s.stdins[req.SessionKey] = stdin
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.stdins, req.SessionKey)
		s.mu.Unlock()
	}()

	// The request is the first stdin frame; stdin stays open for steering
	reqData, err := json.Marshal(req)
	if err != nil {
		_ = cmd.Process.Kill()
		return InvokeResult{}, &InvocationError{Stage: "launch", Err: err}
	}
	if _, err := stdin.Write(append(reqData, '\n')); err != nil {
		_ = cmd.Process.Kill()
		return InvokeResult{}, &InvocationError{Stage: "launch", Err: err}
	}

	waitErr := cmd.Wait()
	duration := time.Since(start)

	if ctx.Err() == context.DeadlineExceeded {
		return InvokeResult{}, &InvocationError{Stage: "timeout", Err: ctx.Err()}
	}
	if ctx.Err() == context.Canceled {
		return InvokeResult{}, &InvocationError{Stage: "exit", Err: ctx.Err()}
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return InvokeResult{}, &InvocationError{
				Stage: "exit",
				Err:   fmt.Errorf("exit code %d: %s", exitErr.ExitCode(), firstLine(stderr.String())),
			}
		}
		return InvokeResult{}, &InvocationError{Stage: "exit", Err: waitErr}
	}

	result, err := s.parser.Parse(stdout.Bytes())
	if err != nil {
		return InvokeResult{}, err
	}
	if result.Meta.DurationMs == 0 {
		result.Meta.DurationMs = duration.Milliseconds()
	}

	s.logger.Debug().
		Str("session_key", req.SessionKey).
		Dur("duration", duration).
		Int("payloads", len(result.Payloads)).
		Msg("Agent turn completed")

	return result, nil
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}

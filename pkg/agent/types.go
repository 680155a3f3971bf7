package agent

import (
	"context"
	"fmt"
)

// InvokeRequest is the invocation contract handed to an agent process
type InvokeRequest struct {
	SessionKey      string `json:"session_key"`
	Provider        string `json:"provider"`
	Model           string `json:"model"`
	AuthProfile     string `json:"auth_profile,omitempty"`
	ThinkingLevel   string `json:"thinking_level,omitempty"`
	Elevated        bool   `json:"elevated,omitempty"`
	Prompt          string `json:"prompt"`
	ResumeSessionID string `json:"resume_session_id,omitempty"`
}

// Payload is one outbound reply unit produced by an agent turn
type Payload struct {
	Text string `json:"text,omitempty"`
}

// InvokeMeta carries agent-reported metadata for a completed turn
type InvokeMeta struct {
	SessionID  string `json:"session_id,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// InvokeResult is a completed agent turn
type InvokeResult struct {
	Payloads []Payload  `json:"payloads"`
	Meta     InvokeMeta `json:"meta"`
}

// Invoker runs one agent turn to completion
type Invoker interface {
	Invoke(ctx context.Context, req InvokeRequest) (InvokeResult, error)
}

// Steerable is implemented by invokers whose active runs accept live input.
// Steer reports whether the text was delivered into a running invocation.
type Steerable interface {
	Steer(sessionKey, text string) bool
}

// InvocationError is a failed agent turn, distinguishable by stage
type InvocationError struct {
	Stage string // launch, timeout, exit, parse
	Err   error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("agent invocation failed (%s): %v", e.Stage, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

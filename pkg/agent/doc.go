// Package agent invokes external agent processes and parses their output.
//
// Invariants:
// - The core never inspects an agent's raw output shape; every agent kind is
//   handled by one Parser variant with a fixed contract.
// - A launch failure, timeout or abnormal exit surfaces as an InvocationError,
//   never as a partial result.
//
// Usage:
//
//	inv := agent.NewSubprocessInvoker(agent.SubprocessConfig{
//		Command: []string{"my-agent", "--json"},
//		Kind:    "json",
//	}, logger)
//	result, err := inv.Invoke(ctx, agent.InvokeRequest{Prompt: "hello"})
package agent

package run

import (
	"fmt"
)

// ElevatedGate answers whether a sender may run with elevated privileges.
// Implemented by the coordinator; consumed by the directive engine too so the
// directive-time check and the run-time check cannot drift apart.
type ElevatedGate interface {
	CheckElevated(agentID, transport, sender string) error
}

// ElevatedError names the specific failed requirement
type ElevatedError struct {
	Requirement string // capability, global-allowlist, agent-allowlist
	AgentID     string
	Transport   string
	Sender      string
}

func (e *ElevatedError) Error() string {
	switch e.Requirement {
	case "capability":
		return fmt.Sprintf("elevated mode is not enabled for agent %q", e.AgentID)
	case "global-allowlist":
		return fmt.Sprintf("sender %q is not on the global elevated allowlist for transport %q", e.Sender, e.Transport)
	case "agent-allowlist":
		return fmt.Sprintf("sender %q is not on agent %q's elevated allowlist for transport %q", e.Sender, e.AgentID, e.Transport)
	default:
		return "elevated mode refused"
	}
}

// CheckElevated verifies the capability and both allowlists. All three must
// pass; the first failed requirement is reported.
func (c *Coordinator) CheckElevated(agentID, transport, sender string) error {
	handle, ok := c.agents[agentID]
	if !ok {
		return fmt.Errorf("unknown agent: %s", agentID)
	}

	if !handle.Config.ElevatedEnabled {
		return &ElevatedError{Requirement: "capability", AgentID: agentID, Transport: transport, Sender: sender}
	}

	if !containsSender(c.globalElevated[transport], sender) {
		return &ElevatedError{Requirement: "global-allowlist", AgentID: agentID, Transport: transport, Sender: sender}
	}

	if !containsSender(handle.Config.ElevatedAllowlist[transport], sender) {
		return &ElevatedError{Requirement: "agent-allowlist", AgentID: agentID, Transport: transport, Sender: sender}
	}

	return nil
}

func containsSender(list []string, sender string) bool {
	for _, s := range list {
		if s == sender {
			return true
		}
	}
	return false
}

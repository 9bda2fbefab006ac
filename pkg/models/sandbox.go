package models

import "fmt"

// SandboxPolicy is an ordered permission level for a worker.
type SandboxPolicy string

const (
	SandboxReadOnly       SandboxPolicy = "read-only"
	SandboxWorkspaceWrite SandboxPolicy = "workspace-write"
	SandboxFullAccess     SandboxPolicy = "danger-full-access"
)

// Rank orders policies from most to least restrictive. Unknown policies
// rank above everything so they can never be granted by narrowing.
func (p SandboxPolicy) Rank() int {
	switch p {
	case SandboxReadOnly:
		return 0
	case SandboxWorkspaceWrite:
		return 1
	case SandboxFullAccess:
		return 2
	default:
		return 3
	}
}

// Valid returns true if the policy is a known value.
func (p SandboxPolicy) Valid() bool {
	return p.Rank() < 3
}

// Narrow returns the policy a child receives given the parent policy and an
// optional override. An empty override inherits the parent policy. An
// override that is less restrictive than the parent is rejected.
func (p SandboxPolicy) Narrow(override SandboxPolicy) (SandboxPolicy, error) {
	if override == "" {
		return p, nil
	}
	if !override.Valid() {
		return "", fmt.Errorf("unknown sandbox policy %q", override)
	}
	if override.Rank() > p.Rank() {
		return "", fmt.Errorf("sandbox %q is wider than parent %q", override, p)
	}
	return override, nil
}

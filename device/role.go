package device

import (
	"fmt"
	"strings"
)

// Role names the part an instrument plays on the bench.
type Role string

const (
	RoleSource Role = "source"
	RoleSensor Role = "sensor"
)

// ParseRole returns the role named s.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleSource:
		return RoleSource, nil
	case RoleSensor:
		return RoleSensor, nil
	default:
		return "", fmt.Errorf("device: unknown role %q", s)
	}
}

func (r Role) String() string { return string(r) }

// CommandSet holds the command lists of one instrument.
//
// Config runs first during initialisation, then Operation. Closing runs once
// when the device is closed.
type CommandSet struct {
	Config    []string
	Operation []string
	Closing   []string
}

// NewCommandSet builds a CommandSet, dropping blank commands. Configuration
// files use a single empty string to mean "no commands".
func NewCommandSet(config, operation, closing []string) CommandSet {
	return CommandSet{
		Config:    compact(config),
		Operation: compact(operation),
		Closing:   compact(closing),
	}
}

func compact(cmds []string) []string {
	out := make([]string, 0, len(cmds))
	for _, c := range cmds {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}

	return out
}

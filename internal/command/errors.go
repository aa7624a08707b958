package command

import (
	"fmt"
	"strings"
)

// ConfigError reports a malformed or unresolvable command definition. It is
// raised before any event exists, so there is nothing to finalize.
type ConfigError struct {
	Command string
	Reason  string
}

func (e *ConfigError) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("invalid command definition: %s", e.Reason)
	}
	return fmt.Sprintf("invalid command definition %q: %s", e.Command, e.Reason)
}

// ArgumentError reports every argument problem at once rather than failing on
// the first one.
type ArgumentError struct {
	Missing []string // required arguments with no value and no default
	Invalid []string // supplied values that fail their declared type
}

func (e *ArgumentError) Error() string {
	var parts []string
	for _, name := range e.Missing {
		parts = append(parts, fmt.Sprintf("required argument %q missing", name))
	}
	parts = append(parts, e.Invalid...)
	return "invalid arguments: " + strings.Join(parts, ", ")
}

func (e *ArgumentError) hasErrors() bool {
	return len(e.Missing) > 0 || len(e.Invalid) > 0
}

package command

import (
	"fmt"
	"strconv"

	"github.com/calebhart/ratchet/internal/models"
)

// ValidateArgs checks supplied key=value pairs against the resolved argument
// declarations and returns the argument set with defaults applied. Problems
// are collected into a single ArgumentError instead of failing on the first.
// Supplied keys without a declaration are accepted untouched.
func ValidateArgs(cmd *models.CommandDefinition, supplied map[string]string) (map[string]string, error) {
	argErr := &ArgumentError{}
	out := make(map[string]string, len(supplied))
	for k, v := range supplied {
		out[k] = v
	}

	for _, arg := range cmd.Arguments {
		value, ok := supplied[arg.Name]
		if !ok {
			if arg.Default != "" {
				out[arg.Name] = arg.Default
				continue
			}
			if arg.Required {
				argErr.Missing = append(argErr.Missing, arg.Name)
			}
			continue
		}

		switch arg.Type {
		case "integer":
			if _, err := strconv.Atoi(value); err != nil {
				argErr.Invalid = append(argErr.Invalid,
					fmt.Sprintf("argument %q must be an integer, got %q", arg.Name, value))
			}
		case "boolean":
			if _, err := strconv.ParseBool(value); err != nil {
				argErr.Invalid = append(argErr.Invalid,
					fmt.Sprintf("argument %q must be a boolean, got %q", arg.Name, value))
			}
		}
	}

	if argErr.hasErrors() {
		return nil, argErr
	}
	return out, nil
}

// ParsePairs converts CLI "key=value" tokens into a map. A token without "="
// is an ArgumentError.
func ParsePairs(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	argErr := &ArgumentError{}
	for _, pair := range pairs {
		key, value, ok := cut(pair)
		if !ok {
			argErr.Invalid = append(argErr.Invalid,
				fmt.Sprintf("argument %q is not in key=value form", pair))
			continue
		}
		out[key] = value
	}
	if argErr.hasErrors() {
		return nil, argErr
	}
	return out, nil
}

func cut(pair string) (string, string, bool) {
	for i := 0; i < len(pair); i++ {
		if pair[i] == '=' {
			return pair[:i], pair[i+1:], i > 0
		}
	}
	return "", "", false
}

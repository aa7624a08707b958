package models

// Argument describes one input a command accepts.
type Argument struct {
	Name        string `yaml:"name"`
	Required    bool   `yaml:"required"`
	Type        string `yaml:"type,omitempty"`
	Default     string `yaml:"default,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// CommandDefinition is a fully parsed workflow command. After resolution
// Extends is always empty and list fields reflect the inheritance merge.
type CommandDefinition struct {
	Name             string            `yaml:"name"`
	Description      string            `yaml:"description"`
	Extends          string            `yaml:"extends,omitempty"`
	Category         string            `yaml:"category,omitempty"`
	Arguments        []Argument        `yaml:"arguments,omitempty"`
	Environment      map[string]string `yaml:"environment,omitempty"`
	PreSteps         []string          `yaml:"pre_steps,omitempty"`
	Steps            []string          `yaml:"steps"`
	PostSteps        []string          `yaml:"post_steps,omitempty"`
	CleanupOnFailure []string          `yaml:"cleanup_on_failure,omitempty"`
	WorkingDirectory string            `yaml:"working_directory,omitempty"`
	Timeout          int               `yaml:"timeout,omitempty"` // seconds, bounds the whole run
}

// AllSteps returns the full execution sequence in order.
func (c *CommandDefinition) AllSteps() []string {
	steps := make([]string, 0, len(c.PreSteps)+len(c.Steps)+len(c.PostSteps))
	steps = append(steps, c.PreSteps...)
	steps = append(steps, c.Steps...)
	steps = append(steps, c.PostSteps...)
	return steps
}

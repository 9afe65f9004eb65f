// Package templates holds the embedded plan templates. A plan template
// names the ordered phases a new plan starts with.
package templates

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultTemplate is used when a plan is created without one.
const DefaultTemplate = "novel"

//go:embed plans/*.yaml
var planTemplates embed.FS

// Phase is one phase of a plan template.
type Phase struct {
	Name   string `yaml:"name"`
	Target *int   `yaml:"target,omitempty"`
}

// PlanTemplate is a named, ordered phase list.
type PlanTemplate struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Phases      []Phase `yaml:"phases"`
}

// Load returns the embedded template with the given name.
func Load(name string) (*PlanTemplate, error) {
	if name == "" {
		name = DefaultTemplate
	}
	content, err := planTemplates.ReadFile(path.Join("plans", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("unknown plan template %q (available: %s)", name, strings.Join(List(), ", "))
	}
	return Parse(content)
}

// List returns the names of the embedded templates, sorted.
func List() []string {
	entries, err := planTemplates.ReadDir("plans")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// Parse decodes and validates a template, e.g. one read from a user file.
func Parse(content []byte) (*PlanTemplate, error) {
	var t PlanTemplate
	if err := yaml.Unmarshal(content, &t); err != nil {
		return nil, fmt.Errorf("failed to parse plan template: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks that phases are named, unique and have sane targets.
func (t *PlanTemplate) Validate() error {
	if len(t.Phases) == 0 {
		return fmt.Errorf("plan template %q has no phases", t.Name)
	}
	seen := make(map[string]bool, len(t.Phases))
	for i, p := range t.Phases {
		if p.Name == "" {
			return fmt.Errorf("plan template %q: phase %d has no name", t.Name, i+1)
		}
		if seen[p.Name] {
			return fmt.Errorf("plan template %q: phase %q listed twice", t.Name, p.Name)
		}
		seen[p.Name] = true
		if p.Target != nil && *p.Target < 0 {
			return fmt.Errorf("plan template %q: phase %q has a negative target", t.Name, p.Name)
		}
	}
	return nil
}

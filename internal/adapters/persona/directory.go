// Package persona loads persona display metadata from a YAML file.
package persona

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/example/quill/internal/apperr"
	"github.com/example/quill/internal/ports/secondary"
)

type entry struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Voice       string `yaml:"voice"`
	Description string `yaml:"description"`
}

type file struct {
	Personas []entry `yaml:"personas"`
}

// Directory is a read-only, in-memory persona directory.
type Directory struct {
	personas map[string]*secondary.PersonaRecord
}

// Load reads a personas file. An empty path yields an empty directory.
func Load(path string) (*Directory, error) {
	if path == "" {
		return &Directory{personas: map[string]*secondary.PersonaRecord{}}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read personas file: %w", err)
	}
	return Parse(data)
}

// Parse builds a directory from YAML of the form
//
//	personas:
//	  - id: mara
//	    name: Mara Quell
//	    voice: dry, clipped
func Parse(data []byte) (*Directory, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse personas file: %w", err)
	}

	d := &Directory{personas: make(map[string]*secondary.PersonaRecord, len(f.Personas))}
	for i, p := range f.Personas {
		if p.ID == "" {
			return nil, fmt.Errorf("persona %d has no id", i+1)
		}
		if _, dup := d.personas[p.ID]; dup {
			return nil, fmt.Errorf("persona %q listed twice", p.ID)
		}
		d.personas[p.ID] = &secondary.PersonaRecord{
			ID:          p.ID,
			DisplayName: p.Name,
			Voice:       p.Voice,
			Description: p.Description,
		}
	}
	return d, nil
}

// Lookup returns a copy of the persona's record.
func (d *Directory) Lookup(ctx context.Context, personaID string) (*secondary.PersonaRecord, error) {
	p, ok := d.personas[personaID]
	if !ok {
		return nil, fmt.Errorf("%w: persona %s", apperr.ErrNotFound, personaID)
	}
	cp := *p
	return &cp, nil
}

// List returns all personas sorted by id.
func (d *Directory) List(ctx context.Context) ([]*secondary.PersonaRecord, error) {
	out := make([]*secondary.PersonaRecord, 0, len(d.personas))
	for _, p := range d.personas {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var _ secondary.PersonaDirectory = (*Directory)(nil)

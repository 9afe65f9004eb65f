package templates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedTemplatesAreValid(t *testing.T) {
	names := List()
	require.Contains(t, names, DefaultTemplate)
	require.Contains(t, names, "short-story")

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			tmpl, err := Load(name)
			require.NoError(t, err)
			assert.Equal(t, name, tmpl.Name)
			assert.NotEmpty(t, tmpl.Phases)
		})
	}
}

func TestLoad_Default(t *testing.T) {
	tmpl, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "novel", tmpl.Name)
	assert.Equal(t, "worldbuilding", tmpl.Phases[0].Name)
	require.NotNil(t, tmpl.Phases[1].Target)
	assert.Equal(t, 1, *tmpl.Phases[1].Target)
	assert.Nil(t, tmpl.Phases[3].Target, "drafting has no fixed target")
}

func TestLoad_Unknown(t *testing.T) {
	_, err := Load("opera")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "short-story")
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no phases", "name: empty\n"},
		{"unnamed phase", "name: x\nphases:\n  - target: 1\n"},
		{"duplicate phase", "name: x\nphases:\n  - name: a\n  - name: a\n"},
		{"negative target", "name: x\nphases:\n  - name: a\n    target: -2\n"},
		{"malformed", "phases: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

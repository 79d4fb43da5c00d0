package data

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// ScriptEntry names one Lua script run by the scripting host.
type ScriptEntry struct {
	Name    string `yaml:"name"`
	File    string `yaml:"file"`
	Enabled *bool  `yaml:"enabled"` // nil = enabled
}

func (e *ScriptEntry) IsEnabled() bool { return e.Enabled == nil || *e.Enabled }

type scriptFile struct {
	Scripts []ScriptEntry `yaml:"scripts"`
}

// ScriptManifest lists scripts in load order.
type ScriptManifest struct {
	scripts []ScriptEntry
	byName  map[string]*ScriptEntry
}

// LoadScriptManifest loads scripts.yaml. A missing file is an empty manifest.
func LoadScriptManifest(path string) (*ScriptManifest, error) {
	m := &ScriptManifest{byName: make(map[string]*ScriptEntry)}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read script manifest: %w", err)
	}
	var f scriptFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse script manifest: %w", err)
	}
	m.scripts = f.Scripts
	for i := range m.scripts {
		e := &m.scripts[i]
		if e.Name == "" || e.File == "" {
			return nil, fmt.Errorf("script manifest entry %d: name and file are required", i)
		}
		if _, dup := m.byName[e.Name]; dup {
			return nil, fmt.Errorf("script manifest: duplicate script %q", e.Name)
		}
		m.byName[e.Name] = e
	}
	return m, nil
}

// Enabled returns the enabled entries in manifest order.
func (m *ScriptManifest) Enabled() []ScriptEntry {
	out := make([]ScriptEntry, 0, len(m.scripts))
	for _, e := range m.scripts {
		if e.IsEnabled() {
			out = append(out, e)
		}
	}
	return out
}

// Get returns the entry with the given name, or nil if none.
func (m *ScriptManifest) Get(name string) *ScriptEntry {
	return m.byName[name]
}

// Count returns the total number of entries, enabled or not.
func (m *ScriptManifest) Count() int {
	return len(m.scripts)
}

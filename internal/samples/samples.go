// Package samples ships the embedded sample datasets the playground can
// import. Each sample bundles a SQL seed script and optional editor presets
// (starting query, policy text, evaluation input).
package samples

import (
	"embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed datasets
var datasets embed.FS

const manifestPath = "datasets/manifest.yaml"

// Presets are the editor contents a sample pre-populates on import.
type Presets struct {
	Query string         `yaml:"query"`
	Rego  string         `yaml:"rego"`
	Input map[string]any `yaml:"input"`
}

// Sample is one importable dataset.
type Sample struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	ScriptFile  string   `yaml:"script"`
	Presets     *Presets `yaml:"presets"`

	// Script is the seed SQL, loaded from ScriptFile.
	Script string `yaml:"-"`
}

type manifest struct {
	Samples []Sample `yaml:"samples"`
}

// Catalog resolves sample keys to their datasets.
type Catalog struct {
	byKey map[string]Sample
}

// Load parses the embedded manifest and its seed scripts.
func Load() (*Catalog, error) {
	raw, err := datasets.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read sample manifest: %w", err)
	}

	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to parse sample manifest: %w", err)
	}

	c := &Catalog{byKey: make(map[string]Sample, len(m.Samples))}
	for _, s := range m.Samples {
		script, err := datasets.ReadFile("datasets/" + s.ScriptFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read script for sample %s: %w", s.Key, err)
		}
		s.Script = string(script)
		c.byKey[s.Key] = s
	}
	return c, nil
}

// Get returns the sample for key.
func (c *Catalog) Get(key string) (Sample, bool) {
	s, ok := c.byKey[key]
	return s, ok
}

// Keys returns all sample keys, sorted.
func (c *Catalog) Keys() []string {
	keys := make([]string, 0, len(c.byKey))
	for k := range c.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// All returns all samples in key order.
func (c *Catalog) All() []Sample {
	all := make([]Sample, 0, len(c.byKey))
	for _, k := range c.Keys() {
		all = append(all, c.byKey[k])
	}
	return all
}

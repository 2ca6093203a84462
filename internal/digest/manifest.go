// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package digest

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"
)

// Manifest is the on-disk record of one run's digest. It carries everything
// the renderers need, so a digest can be rebuilt without querying PubMed.
type Manifest struct {
	RunDate  string `yaml:"run_date"`
	Start    string `yaml:"start"`
	End      string `yaml:"end"`
	Total    int    `yaml:"total"`
	Journals Bundle `yaml:"journals"`
}

// NewManifest captures a run's window and grouped articles.
func NewManifest(runDate, start, end string, b Bundle) Manifest {
	return Manifest{
		RunDate:  runDate,
		Start:    start,
		End:      end,
		Total:    b.Total(),
		Journals: b,
	}
}

// WriteManifest saves m to path as YAML.
func WriteManifest(path string, m Manifest) error {
	data, err := yaml.Marshal(&m)
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadManifest loads a manifest written by WriteManifest. Journal groups are
// re-sorted so hand-edited files still render in digest order.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if m.Journals == nil {
		m.Journals = Bundle{}
	}
	for _, items := range m.Journals {
		sortArticles(items)
	}
	m.Total = m.Journals.Total()
	return &m, nil
}

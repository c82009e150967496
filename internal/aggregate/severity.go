package aggregate

import (
	"fmt"
	"log"
	"os"
	"strings"

	"AnalysisOrchestrator/internal/domain"

	"gopkg.in/yaml.v3"
)

// SeverityMap normalizes tool-specific severity vocabularies onto the
// critical/high/medium/low/info scale. Per-tool entries win over the shared
// defaults; anything still unknown lands on info with a logged warning, so a
// new tool's vocabulary never silently drops findings.
type SeverityMap struct {
	Tools   map[string]map[string]string `yaml:"tools"`
	Default map[string]string            `yaml:"default"`
}

// LoadSeverityMap reads the normalization table. A missing file is fine:
// normalization falls back to the already-normalized identity mapping.
func LoadSeverityMap(path string) (*SeverityMap, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &SeverityMap{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read severity map: %w", err)
	}
	var m SeverityMap
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse severity map: %w", err)
	}
	return &m, nil
}

func isNormalized(s string) bool {
	switch s {
	case domain.SeverityCritical, domain.SeverityHigh, domain.SeverityMedium,
		domain.SeverityLow, domain.SeverityInfo:
		return true
	}
	return false
}

// Normalize maps a tool-reported severity onto the normalized scale.
func (m *SeverityMap) Normalize(tool, severity string) string {
	s := strings.ToLower(strings.TrimSpace(severity))
	if byTool, ok := m.Tools[tool]; ok {
		if mapped, ok := byTool[s]; ok {
			return mapped
		}
	}
	if mapped, ok := m.Default[s]; ok {
		return mapped
	}
	if isNormalized(s) {
		return s
	}
	log.Printf("aggregate: unknown severity %q from tool %s, defaulting to info", severity, tool)
	return domain.SeverityInfo
}

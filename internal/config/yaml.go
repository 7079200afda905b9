package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// yamlParser is a koanf.Parser for YAML documents.
type yamlParser struct{}

// YAML returns a koanf parser backed by gopkg.in/yaml.v3.
func YAML() *yamlParser {
	return &yamlParser{}
}

func (p *yamlParser) Unmarshal(b []byte) (map[string]any, error) {
	out := map[string]any{}
	if err := yaml.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	return out, nil
}

func (p *yamlParser) Marshal(m map[string]any) ([]byte, error) {
	return yaml.Marshal(m)
}

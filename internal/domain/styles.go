package domain

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type StyleDefinition struct {
	Name      string `yaml:"name"`
	Marker    string `yaml:"marker"`
	Prompt    string `yaml:"prompt"`
	WordStyle string `yaml:"word_style"`
	Color     string `yaml:"color,omitempty"`
}

type RemovalDefinition struct {
	Name        string `yaml:"name"`
	Prompt      string `yaml:"prompt"`
	StartMarker string `yaml:"start_marker"`
	EndMarker   string `yaml:"end_marker"`
}

// StyleSet is what a user supplies for one run: the styles to detect and the
// paired boundary markers for content to remove.
type StyleSet struct {
	Styles   []StyleDefinition   `yaml:"styles"`
	Removals []RemovalDefinition `yaml:"removals"`
}

func LoadStyleSet(path string) (*StyleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read style set: %w", err)
	}
	var set StyleSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parse style set yaml: %w", err)
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return &set, nil
}

func (s *StyleSet) Validate() error {
	if len(s.Styles) == 0 {
		return fmt.Errorf("style set has no styles")
	}
	seen := make(map[string]string)
	claim := func(marker, owner string) error {
		marker = strings.TrimSpace(marker)
		if marker == "" {
			return fmt.Errorf("%s: marker is empty", owner)
		}
		if prev, ok := seen[marker]; ok {
			return fmt.Errorf("%s: marker %s already used by %s", owner, marker, prev)
		}
		seen[marker] = owner
		return nil
	}
	for i, st := range s.Styles {
		owner := fmt.Sprintf("style %d (%s)", i, st.Name)
		if strings.TrimSpace(st.Name) == "" {
			return fmt.Errorf("style %d: name is empty", i)
		}
		if strings.TrimSpace(st.WordStyle) == "" {
			return fmt.Errorf("%s: word_style is empty", owner)
		}
		if err := claim(st.Marker, owner); err != nil {
			return err
		}
	}
	for i, r := range s.Removals {
		owner := fmt.Sprintf("removal %d (%s)", i, r.Name)
		if err := claim(r.StartMarker, owner); err != nil {
			return err
		}
		if err := claim(r.EndMarker, owner); err != nil {
			return err
		}
	}
	return nil
}

// StyleByMarker indexes styles by their canonical marker.
func (s *StyleSet) StyleByMarker() map[string]StyleDefinition {
	out := make(map[string]StyleDefinition, len(s.Styles))
	for _, st := range s.Styles {
		out[st.Marker] = st
	}
	return out
}

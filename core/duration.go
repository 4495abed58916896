package core

import (
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration reads "90s"-style strings or bare integers (seconds) from YAML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	if node.Tag == "!!int" {
		secs, err := strconv.ParseInt(node.Value, 10, 64)
		if err != nil {
			return fmt.Errorf("line %d: duration %q: %w", node.Line, node.Value, err)
		}
		d.Duration = time.Duration(secs) * time.Second
		return nil
	}
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: duration %q: %w", node.Line, node.Value, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}

package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "10s"
// or from bare numbers interpreted as seconds (matching the env override
// convention).
type Duration time.Duration

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML accepts "1m30s" strings or numeric seconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var asString string
	if err := node.Decode(&asString); err == nil {
		parsed, perr := time.ParseDuration(asString)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", asString, perr)
		}
		*d = Duration(parsed)
		return nil
	}
	var asSeconds float64
	if err := node.Decode(&asSeconds); err == nil {
		*d = Duration(time.Duration(asSeconds * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value on line %d", node.Line)
}

// MarshalYAML renders the duration in its string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

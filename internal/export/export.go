// Package export writes a task collection as JSON, YAML or TOML.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/steveyegge/tasksync/internal/types"
	"gopkg.in/yaml.v3"
)

// Format is an export encoding.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
	TOML Format = "toml"
)

// Formats lists the supported formats in display order.
var Formats = []Format{JSON, YAML, TOML}

// ParseFormat accepts a format name, case-insensitively. "yml" is YAML.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	case "toml":
		return TOML, nil
	default:
		return "", fmt.Errorf("unsupported export format %q (want json, yaml or toml)", s)
	}
}

// document is the top-level shape of every export.
type document struct {
	Owner string       `json:"owner" yaml:"owner" toml:"owner"`
	Tasks []types.Task `json:"tasks" yaml:"tasks" toml:"tasks"`
}

// Write encodes tasks for owner to w.
func Write(w io.Writer, format Format, owner string, tasks []types.Task) error {
	if tasks == nil {
		tasks = []types.Task{}
	}
	doc := document{Owner: owner, Tasks: tasks}

	switch format {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode json: %w", err)
		}
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
	case TOML:
		if err := toml.NewEncoder(w).Encode(doc); err != nil {
			return fmt.Errorf("failed to encode toml: %w", err)
		}
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
	return nil
}

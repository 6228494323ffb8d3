// Package config loads flow definitions from YAML or JSON files.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/conduit/pkg/models"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var ErrFlowFileRequired = errors.New("flow file is required")

// LoadFlowFile reads a flow from path. Files ending in .yaml or .yml are YAML, anything
// else is JSON. Both use the JSON field names of models.Flow. A flow without id is given
// the file path as id.
func LoadFlowFile(path string) (*models.Flow, error) {
	if path == "" {
		return nil, ErrFlowFileRequired
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read flow file %s: %w", path, err)
	}

	flow, err := ParseFlow(data, isYAML(path))
	if err != nil {
		return nil, fmt.Errorf("invalid flow file %s: %w", path, err)
	}

	if flow.ID == "" {
		flow.ID = path
	}

	return flow, nil
}

// ParseFlow decodes and validates a flow definition.
func ParseFlow(data []byte, fromYAML bool) (*models.Flow, error) {
	if fromYAML {
		var doc map[string]any

		err := yaml.Unmarshal(data, &doc)
		if err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}

		// Re-encode so the JSON field names and types of models.Flow apply.
		data, err = json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to convert YAML: %w", err)
		}
	}

	var flow models.Flow

	err := json.Unmarshal(data, &flow)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	err = validator.New(validator.WithRequiredStructEnabled()).Struct(&flow)
	if err != nil {
		return nil, err
	}

	return &flow, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// parseInput decodes the execution input. A value starting with @ names a JSON file.
func parseInput(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}

	data := []byte(raw)

	if raw[0] == '@' {
		var err error

		data, err = os.ReadFile(raw[1:])
		if err != nil {
			return nil, fmt.Errorf("failed to read input file: %w", err)
		}
	}

	var input map[string]any

	err := json.Unmarshal(data, &input)
	if err != nil {
		return nil, fmt.Errorf("input must be a JSON object: %w", err)
	}

	if input == nil {
		input = map[string]any{}
	}

	return input, nil
}

package param

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ReadFile reads a parameter file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func ReadFile(path string) (Values, error) {
	if path == "" {
		return nil, fmt.Errorf("empty parameter file path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read parameter file: %w", err)
	}

	raw := make(map[string]map[string]any)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &raw)
	case ".json":
		err = json.Unmarshal(b, &raw)
	case ".toml":
		err = toml.Unmarshal(b, &raw)
	default:
		return nil, fmt.Errorf("unsupported parameter file extension: %s", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse parameter file %s: %w", path, err)
	}

	return toValues(raw)
}

// LoadFile merges a parameter file into the table.
func (t *Table) LoadFile(path string) error {
	values, err := ReadFile(path)
	if err != nil {
		return err
	}

	applied := t.Apply(values)
	t.logger.Info("parameter file loaded", zap.String("path", path), zap.Int("applied", applied))
	return nil
}

// Encode writes values in format: yaml, json or toml.
func Encode(w io.Writer, values Values, format string) error {
	var err error
	switch strings.ToLower(format) {
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err = enc.Encode(values); err == nil {
			err = enc.Close()
		}
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		err = enc.Encode(values)
	case "toml":
		err = toml.NewEncoder(w).Encode(values)
	default:
		return fmt.Errorf("unsupported parameter format: %s", format)
	}
	if err != nil {
		return fmt.Errorf("failed to encode parameters: %w", err)
	}
	return nil
}

// decoders disagree on numeric types, so every value goes through here.
func toValues(raw map[string]map[string]any) (Values, error) {
	out := make(Values, len(raw))
	for group, params := range raw {
		g := make(map[string]float32, len(params))
		for name, v := range params {
			f, err := toFloat(v)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", group, name, err)
			}
			g[name] = f
		}
		out[group] = g
	}
	return out, nil
}

func toFloat(v any) (float32, error) {
	switch n := v.(type) {
	case float64:
		return float32(n), nil
	case float32:
		return n, nil
	case int:
		return float32(n), nil
	case int64:
		return float32(n), nil
	case uint64:
		return float32(n), nil
	default:
		return 0, fmt.Errorf("value %v of type %T is not a number", v, v)
	}
}

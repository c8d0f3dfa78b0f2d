package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// decodeFile reads a definition from path into v. The format follows the
// extension: .json, .yaml/.yml or .toml. "-" reads YAML (or JSON) from stdin.
func decodeFile(path string, v interface{}) error {
	if path == "" {
		return fmt.Errorf("no input file given (use -f <file>)")
	}
	if path == "-" {
		return decodeYAML(os.Stdin, v)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, v); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return nil
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return nil
	case ".yaml", ".yml":
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		defer f.Close()
		if err := decodeYAML(f, v); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported file type %q (supported: .json, .yaml, .yml, .toml)", filepath.Ext(path))
	}
}

func decodeYAML(r io.Reader, v interface{}) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil && err != io.EOF {
		return err
	}
	return nil
}

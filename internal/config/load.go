package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML or JSON config file. Keys absent from the file keep
// their defaults.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes JSON when the document starts with '{', YAML otherwise.
func Parse(content []byte) (*Config, error) {
	doc := bytes.TrimSpace(content)
	if len(doc) == 0 {
		return nil, errors.New("config is empty")
	}
	cfg := DefaultConfig()
	var err error
	if doc[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(doc))
		dec.DisallowUnknownFields()
		err = dec.Decode(cfg)
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(doc))
		dec.KnownFields(true)
		err = dec.Decode(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ResolvePath makes a relative config path absolute against the working
// directory so later reloads do not depend on it.
func ResolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

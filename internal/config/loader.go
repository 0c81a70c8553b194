package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	pkgconfig "github.com/goran-ethernal/ChainReducer/pkg/config"
	"gopkg.in/yaml.v3"
)

type decodeFunc func(data []byte, cfg *pkgconfig.Config) error

var decoders = map[string]decodeFunc{
	".yaml": decodeYAML,
	".yml":  decodeYAML,
	".json": decodeJSON,
	".toml": decodeTOML,
}

// LoadFromFile loads the configuration at path, picking the format from its
// extension (.yaml, .yml, .json or .toml).
func LoadFromFile(path string) (*pkgconfig.Config, error) {
	ext := strings.ToLower(filepath.Ext(path))

	decode, ok := decoders[ext]
	if !ok {
		return nil, fmt.Errorf("unsupported config file format %q (supported: .yaml, .yml, .json, .toml)", ext)
	}
	return load(path, decode)
}

func LoadFromYAML(path string) (*pkgconfig.Config, error) { return load(path, decodeYAML) }
func LoadFromJSON(path string) (*pkgconfig.Config, error) { return load(path, decodeJSON) }
func LoadFromTOML(path string) (*pkgconfig.Config, error) { return load(path, decodeTOML) }

// load reads path, expands ${VAR} references from the environment, decodes
// the result and returns it with defaults applied and validated.
func load(path string, decode decodeFunc) (*pkgconfig.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg pkgconfig.Config
	if err := decode([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func decodeYAML(data []byte, cfg *pkgconfig.Config) error {
	return yaml.Unmarshal(data, cfg)
}

func decodeJSON(data []byte, cfg *pkgconfig.Config) error {
	return json.Unmarshal(data, cfg)
}

func decodeTOML(data []byte, cfg *pkgconfig.Config) error {
	_, err := toml.Decode(string(data), cfg)
	return err
}

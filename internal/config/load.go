package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	derrors "git.home.luguber.info/inful/detecttune/internal/foundation/errors"
	"git.home.luguber.info/inful/detecttune/internal/params"
)

// Load reads the configuration at path. Dotenv files are loaded first so the
// file may reference their variables with ${VAR}; DETECTTUNE_* variables then
// override individual fields. The returned result lists normalisation
// warnings for the caller to log once logging is configured.
func Load(path string) (*Config, *NormalizationResult, error) {
	if _, err := loadEnvFiles(envFiles); err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, derrors.ConfigError(fmt.Sprintf("configuration file not found: %s", path)).
				WithContext("path", path).
				UserAction().
				Build()
		}
		return nil, nil, derrors.WrapError(err, derrors.CategoryConfig, "read configuration file").
			WithContext("path", path).
			Build()
	}
	return Parse(data)
}

// Parse decodes, overlays, normalises, defaults and validates raw YAML.
func Parse(data []byte) (*Config, *NormalizationResult, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, derrors.WrapError(err, derrors.CategoryConfig, "parse configuration").
			UserAction().
			Build()
	}
	if cfg.Version != "" && cfg.Version != CurrentVersion {
		return nil, nil, derrors.ConfigError(fmt.Sprintf("unsupported configuration version %q", cfg.Version)).
			WithContext("expected", CurrentVersion).
			UserAction().
			Build()
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, nil, err
	}
	res, err := Normalize(&cfg)
	if err != nil {
		return nil, res, derrors.WrapError(err, derrors.CategoryConfig, "normalize configuration").
			UserAction().
			Build()
	}
	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, res, err
	}
	return &cfg, res, nil
}

// Example returns the starting configuration written by Init.
func Example() *Config {
	cfg := &Config{
		Version: CurrentVersion,
		Data: DataConfig{
			Dir: "./data",
			Subjects: []SubjectConfig{
				{ID: 2, MarkerRate: 512},
				{ID: 3, MarkerRate: 1024},
				{ID: 4, MarkerRate: 1024},
				{ID: 6, MarkerRate: 1024},
				{ID: 7, MarkerRate: 1024},
			},
		},
		Detector: DetectorConfig{Kind: DetectorExec, Command: "event-detector"},
		Search: SearchConfig{
			Strategy:  "exhaustive",
			Metric:    "f1",
			MaxTrials: 0,
		},
		Store: StoreConfig{Backend: "sqlite", CSVPath: "detecttune_results.csv"},
	}
	grid := params.DefaultGrid()
	cfg.Search.Grid = &grid
	if _, err := Normalize(cfg); err == nil {
		ApplyDefaults(cfg)
	}
	cfg.Evaluation.Workers = 4
	return cfg
}

// Init writes the example configuration to path. An existing file is kept
// unless force is set.
func Init(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return derrors.ConfigError(fmt.Sprintf("configuration file already exists: %s", path)).
				WithContext("path", path).
				UserAction().
				Build()
		}
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(Example()); err != nil {
		return derrors.WrapError(err, derrors.CategoryInternal, "encode example configuration").Build()
	}
	if err := enc.Close(); err != nil {
		return derrors.WrapError(err, derrors.CategoryInternal, "encode example configuration").Build()
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return derrors.WrapError(err, derrors.CategoryConfig, "write configuration file").
			WithContext("path", path).
			Build()
	}
	return nil
}

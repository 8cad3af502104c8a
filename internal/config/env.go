package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	derrors "git.home.luguber.info/inful/detecttune/internal/foundation/errors"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DETECTTUNE_"

// envFiles are read in order; earlier files and the process environment win.
var envFiles = []string{".env.local", ".env"}

// loadEnvFiles loads the optional dotenv files without overriding variables
// that are already set. It returns the files that were read.
func loadEnvFiles(files []string) ([]string, error) {
	var loaded []string
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return loaded, derrors.WrapError(err, derrors.CategoryConfig, "load environment file").
				WithContext("file", f).
				Build()
		}
		loaded = append(loaded, f)
	}
	return loaded, nil
}

// applyEnvOverrides overlays DETECTTUNE_* variables onto cfg. Unset
// variables leave the file values untouched.
func applyEnvOverrides(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return derrors.WrapError(err, derrors.CategoryConfig, "parse environment overrides").
			UserAction().
			Build()
	}
	return nil
}

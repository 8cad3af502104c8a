package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	derrors "git.home.luguber.info/inful/detecttune/internal/foundation/errors"
	"git.home.luguber.info/inful/detecttune/internal/search"
	"git.home.luguber.info/inful/detecttune/internal/store"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks field constraints and the rules that span sections.
func Validate(cfg *Config) error {
	if cfg.Version != CurrentVersion {
		return derrors.ConfigError(fmt.Sprintf("unsupported configuration version %q", cfg.Version)).
			WithContext("expected", CurrentVersion).
			UserAction().
			Build()
	}
	if err := validate.Struct(cfg); err != nil {
		return fieldErrors(err)
	}
	for _, check := range []func(*Config) error{
		validateData,
		validateDetector,
		validateSearch,
		validateStore,
		validateNotify,
	} {
		if err := check(cfg); err != nil {
			return err
		}
	}
	return nil
}

func fieldErrors(err error) error {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return derrors.WrapError(err, derrors.CategoryConfig, "validate configuration").Build()
	}
	msgs := make([]string, 0, len(ves))
	for _, fe := range ves {
		ns := fe.Namespace()
		if _, rest, ok := strings.Cut(ns, "."); ok {
			ns = rest
		}
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s", ns, fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s", ns, fe.Tag()))
		}
	}
	return derrors.WrapError(err, derrors.CategoryConfig, "invalid configuration: "+strings.Join(msgs, "; ")).
		UserAction().
		Build()
}

func invalid(msg string) error {
	return derrors.ConfigError(msg).UserAction().Build()
}

func validateData(cfg *Config) error {
	seen := make(map[int]bool, len(cfg.Data.Subjects))
	for _, s := range cfg.Data.Subjects {
		if seen[s.ID] {
			return invalid(fmt.Sprintf("data.subjects: duplicate subject id %d", s.ID))
		}
		seen[s.ID] = true
	}
	return nil
}

func validateDetector(cfg *Config) error {
	if cfg.Detector.Kind == DetectorExec && strings.TrimSpace(cfg.Detector.Command) == "" {
		return invalid("detector.command is required for the exec detector")
	}
	if cfg.Detector.Base != nil {
		if err := cfg.Detector.Base.Validate(); err != nil {
			return derrors.WrapError(err, derrors.CategoryConfig, "detector.base is inconsistent").UserAction().Build()
		}
	}
	return nil
}

func validateSearch(cfg *Config) error {
	s := cfg.Search
	switch s.Kind() {
	case search.KindAdaptive:
		if s.MaxTrials <= 0 {
			return invalid("search.max_trials must be positive for the adaptive strategy")
		}
		if err := search.ValidateFractions(s.FractionsOrDefault()); err != nil {
			return err
		}
		if err := s.SpaceOrDefault().Validate(); err != nil {
			return derrors.WrapError(err, derrors.CategoryConfig, "search.space is invalid").UserAction().Build()
		}
	default:
		if err := s.GridOrDefault().Validate(); err != nil {
			return derrors.WrapError(err, derrors.CategoryConfig, "search.grid is invalid").UserAction().Build()
		}
	}
	return nil
}

func validateStore(cfg *Config) error {
	if cfg.Store.Kind() != store.BackendMemory && strings.TrimSpace(cfg.Store.Path) == "" {
		return invalid(fmt.Sprintf("store.path is required for the %s backend", cfg.Store.Kind()))
	}
	return nil
}

func validateNotify(cfg *Config) error {
	if cfg.Notify.Enabled && strings.TrimSpace(cfg.Notify.NATSURL) == "" {
		return invalid("notify.nats_url is required when notify is enabled")
	}
	return nil
}

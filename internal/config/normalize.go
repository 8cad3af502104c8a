package config

import (
	"fmt"
	"log/slog"
	"strings"

	"git.home.luguber.info/inful/detecttune/internal/params"
	"git.home.luguber.info/inful/detecttune/internal/retry"
	"git.home.luguber.info/inful/detecttune/internal/search"
	"git.home.luguber.info/inful/detecttune/internal/store"
	"git.home.luguber.info/inful/detecttune/internal/trial"
)

// NormalizationResult collects the adjustments made while canonicalising
// enum fields. Unknown values are errors; spelling fixes are warnings.
type NormalizationResult struct {
	Warnings []string
}

func (r *NormalizationResult) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// canonical rewrites *field to the canonical spelling produced by parse.
func canonical[T ~string](r *NormalizationResult, name string, field *string, parse func(string) (T, error)) error {
	v, err := parse(*field)
	if err != nil {
		return err
	}
	if strings.TrimSpace(*field) != "" && string(v) != *field {
		r.warnf("%s: %q normalized to %q", name, *field, v)
	}
	*field = string(v)
	return nil
}

// Normalize canonicalises enum-like fields in place.
func Normalize(cfg *Config) (*NormalizationResult, error) {
	res := &NormalizationResult{}
	if err := canonical(res, "search.strategy", &cfg.Search.Strategy, search.ParseKind); err != nil {
		return res, err
	}
	if err := canonical(res, "search.metric", &cfg.Search.Metric, trial.ParseMetric); err != nil {
		return res, err
	}
	if err := canonical(res, "search.sampler", &cfg.Search.Sampler, params.ParseSamplerKind); err != nil {
		return res, err
	}
	if p := strings.TrimSpace(cfg.Search.MetricPolicy); p == "" || strings.EqualFold(p, PolicyAuto) {
		cfg.Search.MetricPolicy = PolicyAuto
	} else if err := canonical(res, "search.metric_policy", &cfg.Search.MetricPolicy, trial.ParseMetricPolicy); err != nil {
		return res, err
	}
	if err := canonical(res, "store.backend", &cfg.Store.Backend, store.ParseBackendKind); err != nil {
		return res, err
	}
	if err := canonical(res, "notify.retry.backoff", &cfg.Notify.Retry.Backoff, retry.ParseMode); err != nil {
		return res, err
	}

	kind, err := detectorKindNormalizer.Parse(string(cfg.Detector.Kind))
	if err != nil {
		return res, err
	}
	cfg.Detector.Kind = kind

	if raw := string(cfg.Monitoring.Logging.Level); raw != "" {
		lvl := NormalizeLogLevel(raw)
		if string(lvl) != raw {
			res.warnf("monitoring.logging.level: %q normalized to %q", raw, lvl)
		}
		cfg.Monitoring.Logging.Level = lvl
	}
	if raw := string(cfg.Monitoring.Logging.Format); raw != "" {
		f := NormalizeLogFormat(raw)
		if string(f) != raw {
			res.warnf("monitoring.logging.format: %q normalized to %q", raw, f)
		}
		cfg.Monitoring.Logging.Format = f
	}
	return res, nil
}

// Log emits each warning at warn level.
func (r *NormalizationResult) Log(logger *slog.Logger) {
	if r == nil || logger == nil {
		return
	}
	for _, w := range r.Warnings {
		logger.Warn("Configuration value normalized", slog.String("detail", w))
	}
}

// Package config loads and validates the detecttune YAML configuration.
package config

import (
	"time"

	"git.home.luguber.info/inful/detecttune/internal/detector"
	"git.home.luguber.info/inful/detecttune/internal/params"
)

// CurrentVersion is the only accepted value of the version field.
const CurrentVersion = "1"

// Config is the root of the configuration file.
type Config struct {
	Version    string           `yaml:"version" validate:"required"`
	Data       DataConfig       `yaml:"data"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Detector   DetectorConfig   `yaml:"detector"`
	Search     SearchConfig     `yaml:"search"`
	Store      StoreConfig      `yaml:"store"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Notify     NotifyConfig     `yaml:"notify"`
}

// DataConfig locates subject recordings and their marker files.
type DataConfig struct {
	Dir           string          `yaml:"dir" env:"DATA_DIR" validate:"required"`
	SignalPattern string          `yaml:"signal_pattern" validate:"required"`
	MarkerPattern string          `yaml:"marker_pattern" validate:"required"`
	CanonicalRate float64         `yaml:"canonical_rate" validate:"gt=0"`
	Subjects      []SubjectConfig `yaml:"subjects" validate:"required,min=1,dive"`
}

// SubjectConfig declares one subject and the sample rate of its markers.
type SubjectConfig struct {
	ID         int     `yaml:"id" validate:"gte=0"`
	MarkerRate float64 `yaml:"marker_rate"`
}

// IDs returns the subject ids in declaration order.
func (d DataConfig) IDs() []int {
	out := make([]int, len(d.Subjects))
	for i, s := range d.Subjects {
		out[i] = s.ID
	}
	return out
}

// MarkerRates maps subject id to marker sample rate.
func (d DataConfig) MarkerRates() map[int]float64 {
	out := make(map[int]float64, len(d.Subjects))
	for _, s := range d.Subjects {
		out[s.ID] = s.MarkerRate
	}
	return out
}

// EvaluationConfig controls how one configuration is scored.
type EvaluationConfig struct {
	ToleranceMS   float64 `yaml:"tolerance_ms" validate:"gt=0"`
	ChunkSize     int     `yaml:"chunk_size" validate:"gt=0"`
	Workers       int     `yaml:"workers" env:"WORKERS" validate:"gte=1"`
	DetectionKind string  `yaml:"detection_kind" validate:"required"`
	DetectionID   string  `yaml:"detection_id" validate:"required"`
}

// Source returns the detector component whose detections are evaluated.
func (e EvaluationConfig) Source() detector.Source {
	return detector.Source{Kind: e.DetectionKind, ID: e.DetectionID}
}

// DetectorConfig names the external detector and its base template.
type DetectorConfig struct {
	Kind    DetectorKind     `yaml:"kind"`
	Command string           `yaml:"command" env:"DETECTOR_COMMAND"`
	Args    []string         `yaml:"args,omitempty"`
	Env     []string         `yaml:"env,omitempty"`
	Base    *detector.Config `yaml:"base,omitempty"`
}

// SearchConfig selects the strategy and its space.
type SearchConfig struct {
	Strategy     string `yaml:"strategy" env:"STRATEGY"`
	Metric       string `yaml:"metric" env:"METRIC"`
	MetricPolicy string `yaml:"metric_policy"`
	MaxTrials    int    `yaml:"max_trials" env:"MAX_TRIALS" validate:"gte=0"`
	Seed         uint64 `yaml:"seed" env:"SEED"`
	Sampler      string `yaml:"sampler" env:"SAMPLER"`
	// SamplerStartupTrials is how many trials tpe samples at random first.
	SamplerStartupTrials *int          `yaml:"sampler_startup_trials,omitempty" validate:"omitempty,gte=0"`
	Fractions            []float64     `yaml:"fractions,omitempty"`
	Pruner               PrunerConfig  `yaml:"pruner"`
	Grid                 *params.Grid  `yaml:"grid,omitempty"`
	Space                *params.Space `yaml:"space,omitempty"`
}

// PrunerConfig tunes the median pruner. Nil fields take the defaults.
type PrunerConfig struct {
	StartupTrials *int `yaml:"startup_trials,omitempty" validate:"omitempty,gte=0"`
	WarmupSteps   *int `yaml:"warmup_steps,omitempty" validate:"omitempty,gte=0"`
}

// StoreConfig selects the result store backend.
type StoreConfig struct {
	Backend          string `yaml:"backend" env:"STORE_BACKEND"`
	Path             string `yaml:"path" env:"STORE_PATH"`
	CSVPath          string `yaml:"csv_path,omitempty" env:"STORE_CSV_PATH"`
	DetailEventLimit int    `yaml:"detail_event_limit" validate:"gte=0"`
}

// MonitoringConfig covers metrics, progress reporting and logging.
type MonitoringConfig struct {
	MetricsAddr      string        `yaml:"metrics_addr,omitempty" env:"METRICS_ADDR"`
	ProgressInterval time.Duration `yaml:"progress_interval" validate:"gte=0"`
	Logging          LoggingConfig `yaml:"logging"`
}

// LoggingConfig sets the slog handler.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level" env:"LOG_LEVEL"`
	Format LogFormat `yaml:"format" env:"LOG_FORMAT"`
}

// NotifyConfig publishes finished trials to NATS.
type NotifyConfig struct {
	Enabled bool          `yaml:"enabled" env:"NOTIFY_ENABLED"`
	NATSURL string        `yaml:"nats_url,omitempty" env:"NATS_URL"`
	Subject string        `yaml:"subject,omitempty"`
	Stream  string        `yaml:"stream,omitempty"`
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
	Retry   RetryConfig   `yaml:"retry"`
}

// RetryConfig is the publish backoff.
type RetryConfig struct {
	Backoff    string        `yaml:"backoff"`
	Initial    time.Duration `yaml:"initial" validate:"gte=0"`
	Max        time.Duration `yaml:"max" validate:"gte=0"`
	MaxRetries int           `yaml:"max_retries" validate:"gte=0"`
}

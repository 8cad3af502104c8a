package config

import (
	"runtime"
	"time"

	"git.home.luguber.info/inful/detecttune/internal/detector"
	"git.home.luguber.info/inful/detecttune/internal/notify"
	"git.home.luguber.info/inful/detecttune/internal/retry"
	"git.home.luguber.info/inful/detecttune/internal/store"
)

// PolicyAuto lets the strategy pick its metric policy.
const PolicyAuto = "auto"

// Default values written into a configuration when the field is omitted.
const (
	DefaultSignalPattern    = "Patient%dEEG.npy"
	DefaultMarkerPattern    = "Patient%02d_OfflineMrk.mrk"
	DefaultCanonicalRate    = 30000.0
	DefaultToleranceMS      = 125.0
	DefaultChunkSize        = 4096
	DefaultStorePath        = "detecttune.db"
	DefaultDetailEventLimit = 500
	DefaultProgressInterval = 30 * time.Second
	DefaultNotifyTimeout    = 5 * time.Second
)

// DefaultApplier applies defaults for a specific configuration domain.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config)
	Domain() string
}

type dataDefaults struct{}

func (dataDefaults) Domain() string { return "data" }

func (dataDefaults) ApplyDefaults(cfg *Config) {
	if cfg.Data.SignalPattern == "" {
		cfg.Data.SignalPattern = DefaultSignalPattern
	}
	if cfg.Data.MarkerPattern == "" {
		cfg.Data.MarkerPattern = DefaultMarkerPattern
	}
	if cfg.Data.CanonicalRate == 0 {
		cfg.Data.CanonicalRate = DefaultCanonicalRate
	}
}

type evaluationDefaults struct{}

func (evaluationDefaults) Domain() string { return "evaluation" }

func (evaluationDefaults) ApplyDefaults(cfg *Config) {
	e := &cfg.Evaluation
	if e.ToleranceMS == 0 {
		e.ToleranceMS = DefaultToleranceMS
	}
	if e.ChunkSize == 0 {
		e.ChunkSize = DefaultChunkSize
	}
	if e.Workers == 0 {
		e.Workers = runtime.NumCPU()
	}
	src := detector.DefaultSource()
	if e.DetectionKind == "" {
		e.DetectionKind = src.Kind
	}
	if e.DetectionID == "" {
		e.DetectionID = src.ID
	}
}

type detectorDefaults struct{}

func (detectorDefaults) Domain() string { return "detector" }

func (detectorDefaults) ApplyDefaults(cfg *Config) {
	if cfg.Detector.Kind == "" {
		cfg.Detector.Kind = DetectorExec
	}
	if cfg.Detector.Base == nil {
		base := detector.DefaultBase(int(cfg.Data.CanonicalRate))
		cfg.Detector.Base = &base
	}
}

type storeDefaults struct{}

func (storeDefaults) Domain() string { return "store" }

func (storeDefaults) ApplyDefaults(cfg *Config) {
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = string(store.BackendSQLite)
	}
	if cfg.Store.Path == "" && cfg.Store.Backend != string(store.BackendMemory) {
		cfg.Store.Path = DefaultStorePath
	}
	if cfg.Store.DetailEventLimit == 0 {
		cfg.Store.DetailEventLimit = DefaultDetailEventLimit
	}
}

type monitoringDefaults struct{}

func (monitoringDefaults) Domain() string { return "monitoring" }

func (monitoringDefaults) ApplyDefaults(cfg *Config) {
	m := &cfg.Monitoring
	if m.ProgressInterval == 0 {
		m.ProgressInterval = DefaultProgressInterval
	}
	if m.Logging.Level == "" {
		m.Logging.Level = LogLevelInfo
	}
	if m.Logging.Format == "" {
		m.Logging.Format = LogFormatText
	}
}

type notifyDefaults struct{}

func (notifyDefaults) Domain() string { return "notify" }

func (notifyDefaults) ApplyDefaults(cfg *Config) {
	n := &cfg.Notify
	if n.Subject == "" {
		n.Subject = notify.DefaultSubject
	}
	if n.Timeout == 0 {
		n.Timeout = DefaultNotifyTimeout
	}
	// An untouched retry block takes the whole default policy, so an
	// explicit max_retries of 0 is only honoured next to other fields.
	if n.Retry.Initial == 0 && n.Retry.Max == 0 && n.Retry.MaxRetries == 0 {
		def := retry.DefaultPolicy()
		n.Retry.Initial = def.Initial
		n.Retry.Max = def.Max
		n.Retry.MaxRetries = def.MaxRetries
	}
	if n.Retry.Backoff == "" {
		n.Retry.Backoff = string(retry.DefaultPolicy().Mode)
	}
}

var defaultAppliers = []DefaultApplier{
	dataDefaults{},
	evaluationDefaults{},
	detectorDefaults{},
	storeDefaults{},
	monitoringDefaults{},
	notifyDefaults{},
}

// ApplyDefaults fills every omitted field. Data runs first: the detector
// base template takes its sample rate from data.canonical_rate.
func ApplyDefaults(cfg *Config) {
	if cfg.Version == "" {
		cfg.Version = CurrentVersion
	}
	for _, a := range defaultAppliers {
		a.ApplyDefaults(cfg)
	}
}

// Package metrics provides the observability hooks of a search run.
//
// Components hold a Recorder and default to NoopRecorder, so metrics never
// require nil checks at call sites:
//
//	type Orchestrator struct {
//	    recorder metrics.Recorder
//	}
//
// When monitoring.metrics_addr is configured the CLI swaps in a
// PrometheusRecorder and serves its registry over HTTP.
package metrics

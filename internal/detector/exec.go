package detector

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	derrors "git.home.luguber.info/inful/detecttune/internal/foundation/errors"
)

// ExecFactory starts one external detector process per instance. The
// configuration is written to a temporary YAML file whose path is passed as
// the last argument. Chunks travel as JSON lines on stdin:
//
//	{"samples":[...]}
//
// and the process answers each with one line on stdout:
//
//	{"records":[{"detectors:slow_wave_detector:detected":1, ...}], "error":""}
//
// Calls carry no timeout.
type ExecFactory struct {
	Command string
	Args    []string
	Env     []string // appended to the current environment
	TempDir string
	Stderr  io.Writer
	Logger  *slog.Logger
}

type chunkRequest struct {
	Samples []float64 `json:"samples"`
}

type chunkResponse struct {
	Records []Record `json:"records"`
	Error   string   `json:"error,omitempty"`
}

// New implements Factory.
func (f *ExecFactory) New(_ context.Context, cfg Config) (Detector, error) {
	if f.Command == "" {
		return nil, derrors.DetectorError("no detector command configured").Build()
	}
	if err := cfg.Validate(); err != nil {
		return nil, derrors.WrapError(err, derrors.CategoryDetector, "invalid detector configuration").Build()
	}
	data, err := cfg.YAML()
	if err != nil {
		return nil, derrors.WrapError(err, derrors.CategoryDetector, "render detector configuration").Build()
	}
	tmp, err := os.CreateTemp(f.TempDir, "detecttune-*.yaml")
	if err != nil {
		return nil, derrors.WrapError(err, derrors.CategoryDetector, "create detector config file").Build()
	}
	cfgPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(cfgPath)
		return nil, derrors.WrapError(err, derrors.CategoryDetector, "write detector config file").Build()
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(cfgPath)
		return nil, derrors.WrapError(err, derrors.CategoryDetector, "close detector config file").Build()
	}

	// Not CommandContext: an interrupt must let in-flight evaluations finish.
	cmd := exec.Command(f.Command, append(append([]string(nil), f.Args...), cfgPath)...)
	if len(f.Env) > 0 {
		cmd.Env = append(os.Environ(), f.Env...)
	}
	cmd.Stderr = f.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		_ = os.Remove(cfgPath)
		return nil, derrors.WrapError(err, derrors.CategoryDetector, "detector stdin").Build()
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = os.Remove(cfgPath)
		return nil, derrors.WrapError(err, derrors.CategoryDetector, "detector stdout").Build()
	}
	if err := cmd.Start(); err != nil {
		_ = os.Remove(cfgPath)
		return nil, derrors.WrapError(err, derrors.CategoryDetector, "start detector process").
			WithContext("command", f.Command).Build()
	}

	dec := json.NewDecoder(bufio.NewReader(stdout))
	dec.UseNumber()
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("Detector process started", "pid", cmd.Process.Pid, "config", cfgPath)
	return &execDetector{cmd: cmd, stdin: stdin, enc: json.NewEncoder(stdin), dec: dec, cfgPath: cfgPath}, nil
}

type execDetector struct {
	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	enc     *json.Encoder
	dec     *json.Decoder
	cfgPath string
	closed  bool
}

func (d *execDetector) RunChunk(ctx context.Context, samples []float64) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, derrors.DetectorError("detector closed").Build()
	}
	if err := d.enc.Encode(chunkRequest{Samples: samples}); err != nil {
		return nil, derrors.WrapError(err, derrors.CategoryDetector, "send chunk").Build()
	}
	var resp chunkResponse
	if err := d.dec.Decode(&resp); err != nil {
		return nil, derrors.WrapError(err, derrors.CategoryDetector, "read chunk result").Build()
	}
	if resp.Error != "" {
		return nil, derrors.DetectorError(fmt.Sprintf("detector reported: %s", resp.Error)).Build()
	}
	return resp.Records, nil
}

func (d *execDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	_ = d.stdin.Close()
	err := d.cmd.Wait()
	_ = os.Remove(d.cfgPath)
	if err != nil {
		return derrors.WrapError(err, derrors.CategoryDetector, "detector process exited").Build()
	}
	return nil
}

package errors

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCLIErrorAdapter_ExitCodeFor(t *testing.T) {
	adapter := NewCLIErrorAdapter(false, slog.Default())

	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil error", nil, 0},
		{"validation", ValidationError("bad flag").Build(), 2},
		{"config", ConfigError("bad config").Build(), 7},
		{"detector", DetectorError("construct failed").Build(), 8},
		{"store", StoreError("gap in trial ids").Build(), 9},
		{"search wrapped", fmt.Errorf("run: %w", SearchError("no proposals").Build()), 11},
		{"canceled", CanceledError("interrupted").Build(), 130},
		{"unclassified", errors.New("boom"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, adapter.ExitCodeFor(tt.err))
		})
	}
}

func TestCLIErrorAdapter_FormatError(t *testing.T) {
	err := StoreError("resume inconsistency").UserAction().WithCause(errors.New("missing id 3")).Build()

	quiet := NewCLIErrorAdapter(false, nil)
	assert.Equal(t, "Error: resume inconsistency (operator action required)", quiet.FormatError(err))

	verbose := NewCLIErrorAdapter(true, nil)
	assert.Contains(t, verbose.FormatError(err), "missing id 3")

	assert.Equal(t, "Error: plain", quiet.FormatError(errors.New("plain")))
	assert.Empty(t, quiet.FormatError(nil))
}

func TestCLIErrorAdapter_LogError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	adapter := NewCLIErrorAdapter(true, logger)

	adapter.logError(SubjectError("marker rate unknown").WithContext("subject_id", 9).Build())

	out := buf.String()
	assert.Contains(t, out, "marker rate unknown")
	assert.Contains(t, out, "category=subject")
	assert.Contains(t, out, "subject_id=9")
}

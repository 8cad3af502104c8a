package subject

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sbinet/npyio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derrors "git.home.luguber.info/inful/detecttune/internal/foundation/errors"
)

func TestNewGroundTruthConvertsAndSorts(t *testing.T) {
	gt := NewGroundTruth([]int64{1024, 512, 3}, 1024, 30000)
	require.Len(t, gt, 3)
	assert.Equal(t, []int64{87, 15000, 30000}, gt.Indices()) // 3*30000/1024 = 87.89 -> 87
	assert.Equal(t, int64(512), gt[1].Marker)
}

func TestNewGroundTruthCollapsesDuplicates(t *testing.T) {
	// At 512 Hz both markers map to the same canonical index only if equal;
	// use a coarse canonical rate to force a collision.
	gt := NewGroundTruth([]int64{10, 11}, 1024, 10)
	require.Len(t, gt, 1)
	assert.Equal(t, int64(11), gt[0].Marker)
}

func TestTruncate(t *testing.T) {
	gt := GroundTruth{{Index: 10}, {Index: 20}, {Index: 30}}
	assert.Equal(t, []int64{10, 20}, gt.Truncate(30).Indices())
	assert.Empty(t, gt.Truncate(5))
	assert.Len(t, gt.Truncate(100), 3)
}

func TestParseMarkers(t *testing.T) {
	in := "Sample\tType\n100 stim\n\n  250\tstim extra\n"
	got, err := ParseMarkers(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []int64{100, 250}, got)

	_, err = ParseMarkers(strings.NewReader("hdr\nabc\n"))
	assert.ErrorContains(t, err, "marker line 2")

	got, err = ParseMarkers(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSubjectSlice(t *testing.T) {
	s := Subject{ID: 1, Signal: make([]float64, 1000), GroundTruth: GroundTruth{{Index: 50}, {Index: 99}, {Index: 100}, {Index: 900}}}
	part := s.Slice(0.1)
	assert.Len(t, part.Signal, 100)
	assert.Equal(t, []int64{50, 99}, part.GroundTruth.Indices())
	assert.Len(t, s.Slice(1.0).Signal, 1000)
}

func float32Bytes(vals ...float32) []byte {
	var buf bytes.Buffer
	for _, v := range vals {
		_ = binary.Write(&buf, binary.LittleEndian, math.Float32bits(v))
	}
	return buf.Bytes()
}

func TestReadRawFloat32(t *testing.T) {
	got, err := ReadRawFloat32(bytes.NewReader(float32Bytes(1.5, -2)))
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, -2}, got)

	_, err = ReadRawFloat32(bytes.NewReader([]byte{1, 2, 3}))
	assert.Error(t, err)
}

func npyFile(descr, shape string, payload []byte) []byte {
	header := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': %s, }", descr, shape)
	for (10+len(header)+1)%64 != 0 {
		header += " "
	}
	header += "\n"
	var buf bytes.Buffer
	buf.Write([]byte("\x93NUMPY\x01\x00"))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(len(header)))
	buf.WriteString(header)
	buf.Write(payload)
	return buf.Bytes()
}

func TestReadNPYFirstRow(t *testing.T) {
	data := npyFile("<f4", "(2, 3)", float32Bytes(1, 2, 3, 4, 5, 6))
	got, err := ReadNPYFirstRow(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, got)

	var f64 bytes.Buffer
	_ = binary.Write(&f64, binary.LittleEndian, []float64{0.5, 0.25})
	got, err = ReadNPYFirstRow(bytes.NewReader(npyFile("<f8", "(2,)", f64.Bytes())))
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.25}, got)

	_, err = ReadNPYFirstRow(bytes.NewReader(npyFile("<i4", "(1,)", []byte{0, 0, 0, 0})))
	assert.ErrorContains(t, err, "unsupported npy dtype")
}

func TestReadNPYFirstRowWrittenByNpyio(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, npyio.Write(&buf, []float32{0.5, 1.5, -2}))
	got, err := ReadNPYFirstRow(&buf)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 1.5, -2}, got)
}

func TestReadNPYFirstRowRejectsBadHeaders(t *testing.T) {
	cases := map[string]struct {
		data []byte
		want string
	}{
		"negative dimension": {npyFile("<f4", "(1, -4)", float32Bytes(1, 2)), ""},
		"zero dimension":     {npyFile("<f4", "(0,)", nil), "non-positive dimension"},
		"rank three":         {npyFile("<f4", "(1, 1, 2)", float32Bytes(1, 2)), "unsupported npy rank"},
		"not npy":            {[]byte("plain text, not numpy"), "not an npy file"},
		"huge header": {
			append([]byte("\x93NUMPY\x02\x00"), 0xff, 0xff, 0xff, 0x7f),
			"exceeds",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			var got []float64
			var err error
			require.NotPanics(t, func() { got, err = ReadNPYFirstRow(bytes.NewReader(tc.data)) })
			require.Error(t, err)
			assert.Nil(t, got)
			if tc.want != "" {
				assert.ErrorContains(t, err, tc.want)
			}
		})
	}
}

func TestReadNPYFirstRowShapeBeyondFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.npy")
	require.NoError(t, os.WriteFile(path, npyFile("<f8", "(4, 1000000000)", float32Bytes(1, 2)), 0o600))
	fh, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = fh.Close() }()

	_, err = ReadNPYFirstRow(fh)
	assert.ErrorContains(t, err, "exceeds the available data")
}

func writeSubject(t *testing.T, dir string, id int, samples []float32, markers string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, fmt.Sprintf("Patient%dEEG.f32", id)), float32Bytes(samples...), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, fmt.Sprintf("Patient%02d_OfflineMrk.mrk", id)), []byte(markers), 0o600))
}

func newFileSource(dir string) *FileSource {
	return &FileSource{
		Dir:           dir,
		SignalPattern: "Patient%dEEG.f32",
		MarkerPattern: "Patient%02d_OfflineMrk.mrk",
		CanonicalRate: 30000,
		MarkerRates:   map[int]float64{2: 512, 3: 1024},
	}
}

func TestFileSourceLoad(t *testing.T) {
	dir := t.TempDir()
	writeSubject(t, dir, 2, []float32{0, 1, 2, 3}, "header\n1\n2\n")

	s, err := newFileSource(dir).Load(t.Context(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, s.ID)
	assert.Len(t, s.Signal, 4)
	assert.Equal(t, []int64{58, 117}, s.GroundTruth.Indices())
}

func TestFileSourceUnknownRate(t *testing.T) {
	_, err := newFileSource(t.TempDir()).Load(t.Context(), 9)
	require.Error(t, err)
	assert.True(t, derrors.HasCategory(err, derrors.CategorySubject))
	ce, _ := derrors.AsClassified(err)
	id, _ := ce.Context().GetInt("subject_id")
	assert.Equal(t, 9, id)
}

func TestPreflightReportsPerSubject(t *testing.T) {
	dir := t.TempDir()
	writeSubject(t, dir, 2, []float32{0, 1}, "h\n10\n")
	writeSubject(t, dir, 3, []float32{0, 1, 2}, "h\n")

	sums, err := Preflight(t.Context(), newFileSource(dir), []int{2, 3, 7}, 2)
	require.NoError(t, err)
	require.Len(t, sums, 3)
	assert.Equal(t, Summary{ID: 2, Samples: 2, GroundTruth: 1}, sums[0])
	assert.Equal(t, 3, sums[1].Samples)
	assert.NoError(t, sums[1].Err)
	assert.Error(t, sums[2].Err)
}

package subject

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"slices"

	"github.com/sbinet/npyio"
)

// ReadRawFloat32 reads a headerless little-endian float32 sample stream.
func ReadRawFloat32(r io.Reader) ([]float64, error) {
	br := bufio.NewReader(r)
	var out []float64
	buf := make([]byte, 4)
	for {
		_, err := io.ReadFull(br, buf)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("truncated sample stream: %w", err)
		}
		out = append(out, float64(math.Float32frombits(binary.LittleEndian.Uint32(buf))))
	}
}

const (
	// maxNPYHeader mirrors numpy's default max_header_size.
	maxNPYHeader = 10000
	// maxNPYElements bounds arrays read from sources of unknown size.
	maxNPYElements = 1 << 30
)

// ReadNPYFirstRow reads a little-endian float32/float64 NumPy array in C
// order and returns its first row (the whole array when it is 1-D). The
// declared shape is checked against the file size before any data is read
// when r is a file.
func ReadNPYFirstRow(r io.Reader) ([]float64, error) {
	br := bufio.NewReader(r)
	if err := checkNPYHeaderLen(br); err != nil {
		return nil, err
	}
	nr, err := npyio.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("npy header: %w", err)
	}
	hdr := nr.Header
	if hdr.Descr.Fortran {
		return nil, errors.New("fortran-ordered npy arrays are not supported")
	}

	var itemSize int64
	switch hdr.Descr.Type {
	case "<f4":
		itemSize = 4
	case "<f8":
		itemSize = 8
	default:
		return nil, fmt.Errorf("unsupported npy dtype %s", hdr.Descr.Type)
	}
	elems, err := npyElements(hdr.Descr.Shape)
	if err != nil {
		return nil, err
	}
	limit := int64(maxNPYElements)
	if st, ok := r.(interface{ Stat() (fs.FileInfo, error) }); ok {
		if info, err := st.Stat(); err == nil && info.Mode().IsRegular() {
			limit = info.Size() / itemSize
		}
	}
	if elems > limit {
		return nil, fmt.Errorf("npy shape %v exceeds the available data", hdr.Descr.Shape)
	}
	row := hdr.Descr.Shape[len(hdr.Descr.Shape)-1]

	if itemSize == 4 {
		var data []float32
		if err := nr.Read(&data); err != nil {
			return nil, fmt.Errorf("npy data: %w", err)
		}
		out := make([]float64, row)
		for i, v := range data[:row] {
			out[i] = float64(v)
		}
		return out, nil
	}
	var data []float64
	if err := nr.Read(&data); err != nil {
		return nil, fmt.Errorf("npy data: %w", err)
	}
	return slices.Clip(data[:row]), nil
}

// checkNPYHeaderLen rejects oversized headers before the decoder allocates
// them.
func checkNPYHeaderLen(br *bufio.Reader) error {
	pre, err := br.Peek(12)
	if err != nil && len(pre) < 10 {
		return fmt.Errorf("npy magic: %w", err)
	}
	if !bytes.HasPrefix(pre, []byte("\x93NUMPY")) {
		return errors.New("not an npy file")
	}
	n := int(binary.LittleEndian.Uint16(pre[8:10]))
	if pre[6] >= 2 {
		if len(pre) < 12 {
			return errors.New("npy header length truncated")
		}
		n = int(binary.LittleEndian.Uint32(pre[8:12]))
	}
	if n > maxNPYHeader {
		return fmt.Errorf("npy header of %d bytes exceeds %d", n, maxNPYHeader)
	}
	return nil
}

func npyElements(shape []int) (int64, error) {
	if len(shape) == 0 || len(shape) > 2 {
		return 0, fmt.Errorf("unsupported npy rank %d", len(shape))
	}
	total := int64(1)
	for _, d := range shape {
		if d <= 0 {
			return 0, fmt.Errorf("npy shape %v has a non-positive dimension", shape)
		}
		if total > math.MaxInt64/int64(d) {
			return 0, fmt.Errorf("npy shape %v overflows", shape)
		}
		total *= int64(d)
	}
	return total, nil
}

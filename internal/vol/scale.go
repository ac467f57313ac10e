package vol

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"
)

// ScaleVoxelSize rewrites the header geometry of src multiplied by factor and
// writes the result to dst, leaving the image data untouched. Rodent scans are
// upscaled this way (typically by 10) so that tools calibrated for human head
// sizes operate in a familiar coordinate range.
func ScaleVoxelSize(src, dst string, factor float64) error {
	if factor <= 0 {
		return fmt.Errorf("vol: scale factor must be positive, got %g", factor)
	}

	raw, err := readMaybeGzip(src)
	if err != nil {
		return err
	}
	if len(raw) < headerSize {
		return fmt.Errorf("%w: %s", ErrNotNIfTI, src)
	}

	h, order, err := decodeHeader(raw[:headerSize], src)
	if err != nil {
		return err
	}

	f := float32(factor)
	for i := 1; i <= 3; i++ {
		h.PixDim[i] *= f
	}
	h.QOffsetX *= f
	h.QOffsetY *= f
	h.QOffsetZ *= f
	for j := 0; j < 4; j++ {
		h.SRowX[j] *= f
		h.SRowY[j] *= f
		h.SRowZ[j] *= f
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, order, &h); err != nil {
		return fmt.Errorf("vol: encode header: %w", err)
	}
	copy(raw[:headerSize], buf.Bytes())

	return writeMaybeGzip(dst, raw)
}

func readMaybeGzip(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vol: open %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("vol: gunzip %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("vol: read %s: %w", path, err)
	}
	return raw, nil
}

func writeMaybeGzip(path string, raw []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("vol: create %s: %w", path, err)
	}

	var w io.Writer = f
	var gz *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		gz = gzip.NewWriter(f)
		w = gz
	}

	if _, err := w.Write(raw); err != nil {
		f.Close()
		return fmt.Errorf("vol: write %s: %w", path, err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			f.Close()
			return fmt.Errorf("vol: write %s: %w", path, err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("vol: write %s: %w", path, err)
	}
	return nil
}

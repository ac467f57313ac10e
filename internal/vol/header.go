package vol

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const headerSize = 348

// Header is the fixed 348-byte NIfTI-1 header. Field layout follows the
// official nifti1.h definition, so the struct round-trips through
// encoding/binary unchanged.
type Header struct {
	SizeOfHdr    int32
	DataTypeName [10]byte
	DBName       [18]byte
	Extents      int32
	SessionError int16
	Regular      byte
	DimInfo      byte

	Dim           [8]int16
	IntentP1      float32
	IntentP2      float32
	IntentP3      float32
	IntentCode    int16
	DataType      int16
	BitPix        int16
	SliceStart    int16
	PixDim        [8]float32
	VoxOffset     float32
	SclSlope      float32
	SclInter      float32
	SliceEnd      int16
	SliceCode     byte
	XYZTUnits     byte
	CalMax        float32
	CalMin        float32
	SliceDuration float32
	TOffset       float32
	Glmax         int32
	Glmin         int32

	Descrip [80]byte
	AuxFile [24]byte

	QFormCode int16
	SFormCode int16

	QuaternB float32
	QuaternC float32
	QuaternD float32
	QOffsetX float32
	QOffsetY float32
	QOffsetZ float32

	SRowX [4]float32
	SRowY [4]float32
	SRowZ [4]float32

	IntentName [16]byte
	Magic      [4]byte
}

var (
	// ErrNotNIfTI is returned when a file fails the header sanity checks.
	ErrNotNIfTI = errors.New("vol: not a NIfTI-1 file")

	// ErrDimMismatch is returned when two grids that must align do not.
	ErrDimMismatch = errors.New("vol: spatial dimensions do not match")
)

// ReadHeaderFile reads and validates the header of a .nii or .nii.gz file,
// reporting the byte order the file is stored in.
func ReadHeaderFile(path string) (Header, binary.ByteOrder, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, nil, fmt.Errorf("vol: open header: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return Header{}, nil, fmt.Errorf("vol: gunzip header: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	raw := make([]byte, headerSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return Header{}, nil, fmt.Errorf("vol: read header: %w", err)
	}
	return decodeHeader(raw, path)
}

// decodeHeader parses the 348 header bytes, inferring byte order from the
// Dim[0] range check the reference implementation uses.
func decodeHeader(raw []byte, path string) (Header, binary.ByteOrder, error) {
	var h Header
	var order binary.ByteOrder = binary.LittleEndian

	if err := binary.Read(bytes.NewReader(raw), order, &h); err != nil {
		return Header{}, nil, fmt.Errorf("vol: decode header: %w", err)
	}
	if h.Dim[0] < 1 || h.Dim[0] > 7 {
		order = binary.BigEndian
		if err := binary.Read(bytes.NewReader(raw), order, &h); err != nil {
			return Header{}, nil, fmt.Errorf("vol: decode header: %w", err)
		}
	}

	if err := h.validate(); err != nil {
		return Header{}, nil, fmt.Errorf("%w: %s", err, path)
	}
	return h, order, nil
}

func (h Header) validate() error {
	if h.SizeOfHdr != headerSize {
		return fmt.Errorf("%w: header size %d", ErrNotNIfTI, h.SizeOfHdr)
	}
	magic := h.Magic
	if !(magic[0] == 'n' && (magic[1] == '+' || magic[1] == 'i') && magic[2] == '1' && magic[3] == 0) {
		return fmt.Errorf("%w: bad magic %q", ErrNotNIfTI, magic[:])
	}
	if h.Dim[0] < 1 || h.Dim[0] > 7 {
		return fmt.Errorf("%w: dim[0] = %d", ErrNotNIfTI, h.Dim[0])
	}
	return nil
}

// SpatialDims returns the x, y, z grid sizes.
func (h Header) SpatialDims() (int, int, int) {
	return int(h.Dim[1]), int(h.Dim[2]), int(h.Dim[3])
}

// Timepoints returns the length of the time axis, 1 for a 3D volume.
func (h Header) Timepoints() int {
	if h.Dim[0] < 4 || h.Dim[4] < 1 {
		return 1
	}
	return int(h.Dim[4])
}

// NIfTI temporal unit codes, from the xyzt_units bitfield.
const (
	unitsTimeMask = 0x38
	unitsSec      = 8
	unitsMsec     = 16
	unitsUsec     = 24
)

// TR returns the repetition time in seconds, 0 when the header does not
// carry one.
func (h Header) TR() float64 {
	tr := float64(h.PixDim[4])
	switch h.XYZTUnits & unitsTimeMask {
	case unitsMsec:
		tr /= 1e3
	case unitsUsec:
		tr /= 1e6
	}
	if tr < 0 {
		return 0
	}
	return tr
}

// Affine returns the voxel-to-world transform as 3 rows of 4. The sform rows
// are used when present; otherwise a pixdim-scaled axis-aligned fallback.
func (h Header) Affine() [3][4]float64 {
	var a [3][4]float64
	if h.SFormCode > 0 {
		for j := 0; j < 4; j++ {
			a[0][j] = float64(h.SRowX[j])
			a[1][j] = float64(h.SRowY[j])
			a[2][j] = float64(h.SRowZ[j])
		}
		return a
	}

	a[0][0] = float64(h.PixDim[1])
	a[1][1] = float64(h.PixDim[2])
	a[2][2] = float64(h.PixDim[3])
	a[0][3] = float64(h.QOffsetX)
	a[1][3] = float64(h.QOffsetY)
	a[2][3] = float64(h.QOffsetZ)
	return a
}

// CheckSameGrid fails when two headers disagree on spatial dimensions.
func CheckSameGrid(a, b Header) error {
	ax, ay, az := a.SpatialDims()
	bx, by, bz := b.SpatialDims()
	if ax != bx || ay != by || az != bz {
		return fmt.Errorf("%w: %dx%dx%d vs %dx%dx%d", ErrDimMismatch, ax, ay, az, bx, by, bz)
	}
	return nil
}

package io

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kshedden/gonpy"
	"gonum.org/v1/gonum/mat"
)

func TestNpyRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fc.npy")
	m := mat.NewDense(3, 2, []float64{
		1, -0.5,
		0.25, 2,
		-3, 0.125,
	})

	if err := WriteNpy(path, m); err != nil {
		t.Fatalf("WriteNpy failed: %v", err)
	}

	got, err := ReadNpy(path)
	if err != nil {
		t.Fatalf("ReadNpy failed: %v", err)
	}
	if !mat.Equal(got, m) {
		t.Errorf("round trip mismatch:\n%v", mat.Formatted(got))
	}
}

// writeFortranNpy handcrafts a version 1.0 .npy file in column-major order,
// the layout numpy emits for Fortran-ordered arrays.
func writeFortranNpy(t *testing.T, path string, rows, cols int, colMajor []float64) {
	t.Helper()

	header := fmt.Sprintf("{'descr': '<f8', 'fortran_order': True, 'shape': (%d, %d), }", rows, cols)
	total := 6 + 2 + 2 + len(header) + 1
	if pad := (64 - total%64) % 64; pad > 0 {
		header += strings.Repeat(" ", pad)
	}
	header += "\n"

	var buf bytes.Buffer
	buf.WriteString("\x93NUMPY")
	buf.Write([]byte{1, 0})
	if err := binary.Write(&buf, binary.LittleEndian, uint16(len(header))); err != nil {
		t.Fatal(err)
	}
	buf.WriteString(header)
	for _, v := range colMajor {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestReadNpy_ColumnMajor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fortran.npy")
	// 2x3 matrix [[1 2 3], [4 5 6]] stored column by column.
	writeFortranNpy(t, path, 2, 3, []float64{1, 4, 2, 5, 3, 6})

	got, err := ReadNpy(path)
	if err != nil {
		t.Fatalf("ReadNpy failed: %v", err)
	}

	want := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})
	if !mat.Equal(got, want) {
		t.Errorf("column-major read mismatch:\n%v", mat.Formatted(got))
	}
}

func TestReadNpy_RejectsOneDimensional(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vec.npy")

	w, err := gonpy.NewFileWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	w.Shape = []int{4}
	w.Version = 2
	if err := w.WriteFloat64([]float64{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}

	if _, err := ReadNpy(path); err == nil {
		t.Fatal("expected an error for a 1-D npy file")
	}
}

func TestReadNpy_Missing(t *testing.T) {
	if _, err := ReadNpy(filepath.Join(t.TempDir(), "gone.npy")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

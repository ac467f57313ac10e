// Package io reads and writes the pipeline's on-disk artifacts: npy
// matrices, tab-separated tables and motion parameter files.
package io

import (
	"fmt"

	"github.com/kshedden/gonpy"
	"gonum.org/v1/gonum/mat"
)

// WriteNpy writes a matrix to a Python numpy .npy binary file.
func WriteNpy(path string, matrix *mat.Dense) error {
	rows, cols := matrix.Dims()
	raw := matrix.RawMatrix()

	w, err := gonpy.NewFileWriter(path)
	if err != nil {
		return fmt.Errorf("io: create npy %s: %w", path, err)
	}
	w.Shape = []int{rows, cols}
	w.Version = 2
	if err := w.WriteFloat64(raw.Data); err != nil {
		return fmt.Errorf("io: write npy %s: %w", path, err)
	}
	return nil
}

// ReadNpy reads a 2D float64 .npy file into a matrix, honoring the file's
// storage order.
func ReadNpy(path string) (*mat.Dense, error) {
	r, err := gonpy.NewFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("io: open npy %s: %w", path, err)
	}
	if len(r.Shape) != 2 {
		return nil, fmt.Errorf("io: npy %s has %d dimensions, want 2", path, len(r.Shape))
	}

	rows, cols := r.Shape[0], r.Shape[1]
	data, err := r.GetFloat64()
	if err != nil {
		return nil, fmt.Errorf("io: read npy %s: %w", path, err)
	}
	if len(data) != rows*cols {
		return nil, fmt.Errorf("io: npy %s has %d values for shape %dx%d", path, len(data), rows, cols)
	}

	if !r.ColumnMajor {
		return mat.NewDense(rows, cols, data), nil
	}
	matrix := mat.NewDense(rows, cols, nil)
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			matrix.Set(i, j, data[j*rows+i])
		}
	}
	return matrix, nil
}

package io

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// ErrEmptyTable is returned when a table file carries no data rows.
var ErrEmptyTable = errors.New("io: table has no data rows")

// WriteSeriesTSV writes a timepoints x regions matrix with a header row of
// region names.
func WriteSeriesTSV(path string, names []string, data *mat.Dense) error {
	rows, cols := data.Dims()
	if len(names) != cols {
		return fmt.Errorf("io: %d names for %d columns", len(names), cols)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("io: create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = '\t'
	if err := w.Write(names); err != nil {
		return fmt.Errorf("io: write %s: %w", path, err)
	}

	record := make([]string, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			record[j] = formatFloat(data.At(i, j))
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("io: write %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("io: write %s: %w", path, err)
	}
	return f.Close()
}

// ReadSeriesTSV reads a table written by WriteSeriesTSV.
func ReadSeriesTSV(path string) ([]string, *mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("io: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '\t'
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("io: parse %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, nil, fmt.Errorf("%w: %s", ErrEmptyTable, path)
	}

	names := records[0]
	cols := len(names)
	data := mat.NewDense(len(records)-1, cols, nil)
	for i, record := range records[1:] {
		if len(record) != cols {
			return nil, nil, fmt.Errorf("io: %s row %d has %d fields, want %d", path, i+2, len(record), cols)
		}
		for j, field := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, nil, fmt.Errorf("io: %s row %d: %w", path, i+2, err)
			}
			data.Set(i, j, v)
		}
	}
	return names, data, nil
}

// WriteLabeledMatrix writes a regions x regions matrix with region names on
// both axes.
func WriteLabeledMatrix(path string, names []string, m *mat.Dense) error {
	rows, cols := m.Dims()
	if len(names) != rows || rows != cols {
		return fmt.Errorf("io: %d names for %dx%d matrix", len(names), rows, cols)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("io: create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = '\t'
	header := append([]string{"roi"}, names...)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("io: write %s: %w", path, err)
	}

	record := make([]string, cols+1)
	for i := 0; i < rows; i++ {
		record[0] = names[i]
		for j := 0; j < cols; j++ {
			record[j+1] = formatFloat(m.At(i, j))
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("io: write %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("io: write %s: %w", path, err)
	}
	return f.Close()
}

// WriteOrderKey records which atlas label each matrix column stands for.
func WriteOrderKey(path string, names []string, labels []float64, nVoxels []int) error {
	if len(names) != len(labels) || len(names) != len(nVoxels) {
		return fmt.Errorf("io: order key lengths differ: %d names, %d labels, %d voxel counts",
			len(names), len(labels), len(nVoxels))
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("io: create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = '\t'
	if err := w.Write([]string{"index", "label", "name", "n_voxels"}); err != nil {
		return fmt.Errorf("io: write %s: %w", path, err)
	}
	for i := range names {
		record := []string{
			strconv.Itoa(i),
			formatFloat(labels[i]),
			names[i],
			strconv.Itoa(nVoxels[i]),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("io: write %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("io: write %s: %w", path, err)
	}
	return f.Close()
}

// WriteFloatColumn writes one value per line.
func WriteFloatColumn(path string, vals []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("io: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, v := range vals {
		fmt.Fprintln(w, formatFloat(v))
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("io: write %s: %w", path, err)
	}
	return f.Close()
}

// ReadFloatColumn reads one value per line, skipping blanks.
func ReadFloatColumn(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("io: open %s: %w", path, err)
	}
	defer f.Close()

	var vals []float64
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("io: %s line %d: %w", path, line, err)
		}
		vals = append(vals, v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("io: read %s: %w", path, err)
	}
	return vals, nil
}

// WriteTemporalMask writes a scrubbing mask as 1 (keep) and 0 (flagged)
// lines.
func WriteTemporalMask(path string, keep []bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("io: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, k := range keep {
		if k {
			fmt.Fprintln(w, 1)
		} else {
			fmt.Fprintln(w, 0)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("io: write %s: %w", path, err)
	}
	return f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

package io

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Motion parameter column orders. Realignment tools disagree on whether
// translations or rotations come first.
const (
	// MotionOrderSPM is translations (mm) then rotations (rad).
	MotionOrderSPM = "spm"
	// MotionOrderFSL is rotations (rad) then translations (mm), the
	// mcflirt .par layout.
	MotionOrderFSL = "fsl"
)

var (
	// ErrMotionColumns is returned when a motion file has fewer than 6
	// columns.
	ErrMotionColumns = errors.New("io: motion file needs at least 6 columns")

	// ErrMotionOrder is returned for an unrecognized column order name.
	ErrMotionOrder = errors.New("io: unknown motion parameter order")
)

// ReadMotion reads a whitespace-separated realignment parameter file and
// returns a timepoints x 6 matrix normalized to translations in columns 0-2
// and rotations in columns 3-5. Columns past the sixth are ignored; blank
// lines and # comments are skipped.
func ReadMotion(path, order string) (*mat.Dense, error) {
	swap, err := motionSwap(order)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("io: open motion %s: %w", path, err)
	}
	defer f.Close()

	var rows [][6]float64
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 6 {
			return nil, fmt.Errorf("%w: %s line %d has %d", ErrMotionColumns, path, line, len(fields))
		}

		var row [6]float64
		for i := 0; i < 6; i++ {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return nil, fmt.Errorf("io: %s line %d: %w", path, line, err)
			}
			row[i] = v
		}
		if swap {
			row = [6]float64{row[3], row[4], row[5], row[0], row[1], row[2]}
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("io: read motion %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyTable, path)
	}

	motion := mat.NewDense(len(rows), 6, nil)
	for i, row := range rows {
		for j, v := range row {
			motion.Set(i, j, v)
		}
	}
	return motion, nil
}

func motionSwap(order string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(order)) {
	case "", MotionOrderSPM:
		return false, nil
	case MotionOrderFSL:
		return true, nil
	}
	return false, fmt.Errorf("%w: %q", ErrMotionOrder, order)
}

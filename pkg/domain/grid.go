package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// maxColumnLetters bounds label length so index arithmetic cannot overflow.
const maxColumnLetters = 6

// GridDims describes a farm grid as rows x columns.
type GridDims struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

// Validate checks both dimensions against the supported bounds.
func (d GridDims) Validate() error {
	if d.Rows < MinGridSize || d.Rows > MaxGridSize {
		return InputError{Field: "grid_rows", Reason: fmt.Sprintf("must be within [%d, %d], got %d", MinGridSize, MaxGridSize, d.Rows)}
	}
	if d.Cols < MinGridSize || d.Cols > MaxGridSize {
		return InputError{Field: "grid_cols", Reason: fmt.Sprintf("must be within [%d, %d], got %d", MinGridSize, MaxGridSize, d.Cols)}
	}
	return nil
}

// Cell is a zero-based column and one-based row on a farm grid.
type Cell struct {
	Row int
	Col int
}

// Code renders the cell as a canonical position code such as "C3".
func (c Cell) Code() string {
	return FormatPosition(c.Row, c.Col)
}

// ColumnLabel maps a zero-based column index to its letter label using
// bijective base-26: 0 -> A, 25 -> Z, 26 -> AA, 49 -> AX.
func ColumnLabel(index int) string {
	if index < 0 {
		return ""
	}
	var buf []byte
	for n := index + 1; n > 0; n = (n - 1) / 26 {
		buf = append(buf, byte('A'+(n-1)%26))
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}

// ColumnIndex is the inverse of ColumnLabel. Matching is case-insensitive.
func ColumnIndex(label string) (int, bool) {
	if label == "" || len(label) > maxColumnLetters {
		return 0, false
	}
	n := 0
	for _, r := range label {
		switch {
		case r >= 'A' && r <= 'Z':
			n = n*26 + int(r-'A') + 1
		case r >= 'a' && r <= 'z':
			n = n*26 + int(r-'a') + 1
		default:
			return 0, false
		}
	}
	return n - 1, true
}

// ColumnLabels returns the labels for the first n columns.
func ColumnLabels(n int) []string {
	if n <= 0 {
		return []string{}
	}
	out := make([]string, n)
	for i := range out {
		out[i] = ColumnLabel(i)
	}
	return out
}

// FormatPosition renders a row and zero-based column as a position code.
func FormatPosition(row, col int) string {
	return ColumnLabel(col) + strconv.Itoa(row)
}

// ParseCode parses the syntax of a position code without checking it against
// any grid. Leading and trailing whitespace is ignored.
func ParseCode(code string) (Cell, error) {
	trimmed := strings.TrimSpace(code)
	split := 0
	for split < len(trimmed) && isLetter(trimmed[split]) {
		split++
	}
	if split == 0 {
		return Cell{}, PositionError{Code: code, Reason: "missing column letters"}
	}
	digits := trimmed[split:]
	if digits == "" {
		return Cell{}, PositionError{Code: code, Reason: "missing row number"}
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return Cell{}, PositionError{Code: code, Reason: "row must be decimal digits"}
		}
	}
	col, ok := ColumnIndex(trimmed[:split])
	if !ok {
		return Cell{}, PositionError{Code: code, Reason: "column label too long"}
	}
	row, err := strconv.Atoi(digits)
	if err != nil {
		return Cell{}, PositionError{Code: code, Reason: "row out of range"}
	}
	return Cell{Row: row, Col: col}, nil
}

// ParsePosition parses code and checks it lies within dims.
func ParsePosition(code string, dims GridDims) (Cell, error) {
	cell, err := ParseCode(code)
	if err != nil {
		return Cell{}, err
	}
	if cell.Col >= dims.Cols {
		return Cell{}, PositionError{Code: code, Reason: fmt.Sprintf("column %s beyond last column %s", ColumnLabel(cell.Col), ColumnLabel(dims.Cols-1))}
	}
	if cell.Row < 1 || cell.Row > dims.Rows {
		return Cell{}, PositionError{Code: code, Reason: fmt.Sprintf("row %d outside [1, %d]", cell.Row, dims.Rows)}
	}
	return cell, nil
}

// CanonicalPosition validates code against dims and returns its canonical
// uppercase form, so "c03" and "C3" address the same cell.
func CanonicalPosition(code string, dims GridDims) (string, error) {
	cell, err := ParsePosition(code, dims)
	if err != nil {
		return "", err
	}
	return cell.Code(), nil
}

func isLetter(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

// Package features turns chronological game logs into leakage-free,
// opponent-aware feature matrices. Every windowed feature attributed to a
// game only uses games strictly earlier than it.
package features

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// ErrFeatureMismatch is returned when a consumer asks for columns the
// assembler did not produce.
var ErrFeatureMismatch = errors.New("feature mismatch")

// MismatchError lists the features a model expects but the matrix lacks.
// It is not recoverable without retraining the model.
type MismatchError struct {
	Missing []string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("feature mismatch: model expects %d feature(s) not produced by the assembler (%s); retrain the model against the current feature set",
		len(e.Missing), strings.Join(e.Missing, ", "))
}

func (e *MismatchError) Is(target error) bool { return target == ErrFeatureMismatch }

// RowKey identifies a matrix row. Team rows set GameID and TeamID; player
// rows set GameID and PlayerID. Keys are join identity only and never appear
// among the feature columns.
type RowKey struct {
	GameID   string
	TeamID   int
	PlayerID int
}

// Matrix is an engineered feature set with one row per input row, in
// input order.
type Matrix struct {
	columns []string
	data    map[string][]float64
	keys    []RowKey
	dates   []time.Time
	index   map[RowKey]int
}

// Columns returns the feature names in production order.
func (m *Matrix) Columns() []string {
	out := make([]string, len(m.columns))
	copy(out, m.columns)
	return out
}

// Len returns the number of rows.
func (m *Matrix) Len() int { return len(m.keys) }

// Key returns the identity of row i.
func (m *Matrix) Key(i int) RowKey { return m.keys[i] }

// Date returns the game date of row i.
func (m *Matrix) Date(i int) time.Time { return m.dates[i] }

// Lookup returns the row index for a key.
func (m *Matrix) Lookup(key RowKey) (int, bool) {
	i, ok := m.index[key]
	return i, ok
}

// Value returns one cell. Unknown columns read as NaN.
func (m *Matrix) Value(i int, column string) float64 {
	col, ok := m.data[column]
	if !ok {
		return math.NaN()
	}
	return col[i]
}

// Valid reports whether every column of row i is defined.
func (m *Matrix) Valid(i int) bool {
	for _, name := range m.columns {
		if math.IsNaN(m.data[name][i]) {
			return false
		}
	}
	return true
}

// MissingColumns returns the undefined columns of row i.
func (m *Matrix) MissingColumns(i int) []string {
	var missing []string
	for _, name := range m.columns {
		if math.IsNaN(m.data[name][i]) {
			missing = append(missing, name)
		}
	}
	return missing
}

// ValidRows returns the indices of valid rows in input order.
func (m *Matrix) ValidRows() []int {
	var out []int
	for i := range m.keys {
		if m.Valid(i) {
			out = append(out, i)
		}
	}
	return out
}

// LatestValid returns the most recent valid row matching the predicate,
// by game date and then input order.
func (m *Matrix) LatestValid(match func(RowKey) bool) (int, bool) {
	best := -1
	for i, k := range m.keys {
		if !match(k) || !m.Valid(i) {
			continue
		}
		if best < 0 || !m.dates[i].Before(m.dates[best]) {
			best = i
		}
	}
	return best, best >= 0
}

// Project resolves an ordered feature-name list against the matrix. Any
// name the matrix does not produce is a hard error.
func (m *Matrix) Project(names []string) (*Projection, error) {
	var missing []string
	cols := make([][]float64, len(names))
	for j, name := range names {
		col, ok := m.data[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		cols[j] = col
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &MismatchError{Missing: missing}
	}
	return &Projection{names: names, cols: cols}, nil
}

// Projection reads rows in a fixed feature order.
type Projection struct {
	names []string
	cols  [][]float64
}

// Names returns the projected feature order.
func (p *Projection) Names() []string { return p.names }

// Row returns the projected vector of row i.
func (p *Projection) Row(i int) []float64 {
	out := make([]float64, len(p.cols))
	for j, col := range p.cols {
		out[j] = col[i]
	}
	return out
}

// frame accumulates columns during assembly.
type frame struct {
	n     int
	names []string
	cols  map[string][]float64
}

func newFrame(n int) *frame {
	return &frame{n: n, cols: make(map[string][]float64)}
}

// set adds or replaces a column. Column order is first-set order.
func (f *frame) set(name string, vals []float64) {
	if len(vals) != f.n {
		panic(fmt.Sprintf("features: column %s has %d rows, frame has %d", name, len(vals), f.n))
	}
	if _, ok := f.cols[name]; !ok {
		f.names = append(f.names, name)
	}
	f.cols[name] = vals
}

func (f *frame) col(name string) []float64 {
	vals, ok := f.cols[name]
	if !ok {
		panic("features: unknown column " + name)
	}
	return vals
}

// snapshot copies the current column set through the partner index: row i
// receives row partner[i]'s values, or NaN when unpaired.
func (f *frame) snapshot(partner []int) *frame {
	opp := newFrame(f.n)
	for _, name := range f.names {
		opp.set(name, opponentView(partner, f.cols[name]))
	}
	return opp
}

func (f *frame) matrix(keys []RowKey, dates []time.Time) *Matrix {
	m := &Matrix{
		columns: append([]string(nil), f.names...),
		data:    f.cols,
		keys:    keys,
		dates:   dates,
		index:   make(map[RowKey]int, len(keys)),
	}
	for i, k := range keys {
		if _, dup := m.index[k]; !dup {
			m.index[k] = i
		}
	}
	return m
}

// Vector helpers. NaN propagates through arithmetic as pandas does.

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func sub(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}

func mul(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] * b[i]
	}
	return out
}

func clipValue(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return v
	}
	return math.Max(lo, math.Min(hi, v))
}

// indicator maps a predicate over defined values to 1/0; undefined stays
// undefined.
func indicator(a []float64, pred func(float64) bool) []float64 {
	out := make([]float64, len(a))
	for i, v := range a {
		switch {
		case math.IsNaN(v):
			out[i] = v
		case pred(v):
			out[i] = 1
		}
	}
	return out
}

// Package precomp maintains the write-precompensation calibration grid.
//
// Precompensation values are sampled over a sparse 2-D grid of bit-cell
// width and cylinder. During writing the model is read only; the calibrator
// rebuilds it from sweep results. Missing grid points are resolved by
// bilinear interpolation over the two nearest cylinders and the two nearest
// cell widths; queries outside the sampled range clamp to the nearest edge
// sample and are never extrapolated.
package precomp

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"sync"

	"floppytracer-go/pkg/flux"
)

// Sample is one calibrated grid point.
type Sample struct {
	// CellWidth is the nominal bit-cell width in timer ticks.
	CellWidth flux.Ticks

	// Cylinder is the drive cylinder the sample was taken at.
	Cylinder int

	// Value is the precompensation shift in timer ticks.
	Value flux.Ticks
}

// Model owns the full sample set for one drive profile.
type Model struct {
	mu      sync.RWMutex
	columns map[flux.Ticks][]Sample // keyed by cell width, sorted by cylinder
	widths  []flux.Ticks            // sorted
}

// NewModel returns an empty model. Lookups on an empty model yield zero.
func NewModel() *Model {
	return &Model{columns: make(map[flux.Ticks][]Sample)}
}

// Add inserts a sample, replacing any previous sample at the same grid point.
func (m *Model) Add(s Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()

	col, ok := m.columns[s.CellWidth]
	if !ok {
		m.widths = append(m.widths, s.CellWidth)
		sort.Slice(m.widths, func(i, j int) bool { return m.widths[i] < m.widths[j] })
	}
	idx := sort.Search(len(col), func(i int) bool { return col[i].Cylinder >= s.Cylinder })
	if idx < len(col) && col[idx].Cylinder == s.Cylinder {
		col[idx] = s
	} else {
		col = append(col, Sample{})
		copy(col[idx+1:], col[idx:])
		col[idx] = s
	}
	m.columns[s.CellWidth] = col
}

// Len returns the number of samples in the grid.
func (m *Model) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, col := range m.columns {
		n += len(col)
	}
	return n
}

// Samples returns all samples ordered by cell width, then cylinder.
func (m *Model) Samples() []Sample {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Sample
	for _, w := range m.widths {
		out = append(out, m.columns[w]...)
	}
	return out
}

// columnValue interpolates within one cell-width column along the cylinder
// axis, clamping to the column's edge samples.
func columnValue(col []Sample, cylinder int) float64 {
	if cylinder <= col[0].Cylinder {
		return float64(col[0].Value)
	}
	last := col[len(col)-1]
	if cylinder >= last.Cylinder {
		return float64(last.Value)
	}
	idx := sort.Search(len(col), func(i int) bool { return col[i].Cylinder >= cylinder })
	hi := col[idx]
	if hi.Cylinder == cylinder {
		return float64(hi.Value)
	}
	lo := col[idx-1]
	f := float64(cylinder-lo.Cylinder) / float64(hi.Cylinder-lo.Cylinder)
	return (1-f)*float64(lo.Value) + f*float64(hi.Value)
}

// Lookup returns the precompensation delta for a cell width and cylinder.
// Exact grid hits return the sample; interior points are bilinear over the
// surrounding samples; a grid spanning only one axis degrades to linear
// interpolation on that axis; an empty grid yields zero.
func (m *Model) Lookup(cellWidth flux.Ticks, cylinder int) flux.Ticks {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.widths) == 0 {
		return 0
	}

	// Clamp onto the sampled width range.
	w := cellWidth
	if w < m.widths[0] {
		w = m.widths[0]
	}
	if w > m.widths[len(m.widths)-1] {
		w = m.widths[len(m.widths)-1]
	}

	idx := sort.Search(len(m.widths), func(i int) bool { return m.widths[i] >= w })
	hiW := m.widths[idx]
	if hiW == w {
		return flux.Ticks(math.Round(columnValue(m.columns[hiW], cylinder)))
	}
	loW := m.widths[idx-1]

	loVal := columnValue(m.columns[loW], cylinder)
	hiVal := columnValue(m.columns[hiW], cylinder)
	f := float64(w-loW) / float64(hiW-loW)
	return flux.Ticks(math.Round((1-f)*loVal + f*hiVal))
}

// Read parses samples from r. The format is one sample per line,
// "<cell-width> <cylinder> <precomp>" whitespace separated; '#' starts a
// comment line; lines that do not carry exactly three numbers are ignored.
func Read(r io.Reader) (*Model, error) {
	m := NewModel()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var w, cyl, val int
		if n, err := fmt.Sscan(line, &w, &cyl, &val); err != nil || n != 3 {
			continue
		}
		m.Add(Sample{CellWidth: flux.Ticks(w), Cylinder: cyl, Value: flux.Ticks(val)})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("precomp: read: %w", err)
	}
	return m, nil
}

// Load reads a sample file from disk. A missing file is not an error; it
// yields an empty model, i.e. zero precompensation.
func Load(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewModel(), nil
		}
		return nil, fmt.Errorf("precomp: open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f)
}

// Write emits the sample rows in the persisted file format.
func (m *Model) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "# cell-width cylinder precomp")
	for _, s := range m.Samples() {
		fmt.Fprintf(bw, "%d %d %d\n", s.CellWidth, s.Cylinder, s.Value)
	}
	return bw.Flush()
}

// Save writes the sample file to disk.
func (m *Model) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("precomp: create %s: %w", path, err)
	}
	defer f.Close()
	return m.Write(f)
}

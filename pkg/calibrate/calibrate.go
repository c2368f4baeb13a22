// Write precompensation calibration
//
// Sweeps a grid of (cylinder, precompensation) candidates, writing and
// verifying a real track for each cell and recording the worst transition
// error the verifier observed. The per-cylinder minimum becomes a sample of
// the precompensation model; the full grid is kept for offline inspection.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package calibrate

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"

	"floppytracer-go/pkg/errors"
	"floppytracer-go/pkg/flux"
	"floppytracer-go/pkg/log"
	"floppytracer-go/pkg/metrics"
	"floppytracer-go/pkg/precomp"
	"floppytracer-go/pkg/track"
)

// failedErr is the error score recorded for a grid cell whose track could
// not be written and verified at all. Larger than any plausible real error.
const failedErr = flux.Ticks(55)

// DefaultCylinders is the calibration grid's cylinder axis. The cluster
// around 40 exists because many drives engage their internal write
// precompensation there and the handover needs dense sampling.
var DefaultCylinders = []int{0, 10, 20, 30, 39, 40, 41, 42, 43, 44, 50, 60, 70, 75, 79}

// SweepLimit returns the exclusive upper bound of the precompensation axis
// for a drive and density, in ticks.
func SweepLimit(density flux.Density, disk flux.DiskType) (flux.Ticks, error) {
	switch {
	case density == flux.DensityHigh && disk == flux.Disk35:
		return 14, nil
	case density == flux.DensityDouble && disk == flux.Disk35:
		return 22, nil
	case density == flux.DensityDouble && disk == flux.Disk525:
		return 14, nil
	}
	return 0, errors.RuntimeError("unsupported drive and density for calibration")
}

// TrackSource supplies the flux data written during calibration. The job's
// cylinder selects where the sweep seeks to; implementations that decode a
// real image may substitute their nearest available track.
type TrackSource func(cylinder int) (*track.Job, error)

// CycleRunner executes one complete write+verify cycle. Satisfied by the
// local track driver and by remote-device adapters.
type CycleRunner interface {
	WriteVerify(ctx context.Context, job *track.Job) (track.Verdict, error)
}

// Result is one grid cell of the sweep.
type Result struct {
	Cylinder int
	Precomp  flux.Ticks

	// MaxErr is the verifier's worst transition error, or failedErr when
	// the cell never verified.
	MaxErr flux.Ticks

	// Writes and Reads count the attempts the cell consumed.
	Writes int
	Reads  int
}

// Sweep runs the calibration grid on a driver.
type Sweep struct {
	driver CycleRunner
	log    *log.Logger

	// Cylinders overrides DefaultCylinders when non-empty.
	Cylinders []int

	// Limit overrides the density-derived sweep limit when non-zero.
	Limit flux.Ticks

	results []Result
}

// NewSweep creates a calibration sweep on a cycle runner.
func NewSweep(driver CycleRunner, logger *log.Logger) *Sweep {
	if logger == nil {
		logger = log.Default()
	}
	return &Sweep{driver: driver, log: logger.Component("calibrate")}
}

// Run executes the full grid. Write protection aborts the sweep; any other
// per-cell failure records failedErr and continues, since a cell that fails
// at one precompensation value is itself a calibration data point.
func (s *Sweep) Run(ctx context.Context, source TrackSource, density flux.Density, disk flux.DiskType) error {
	limit := s.Limit
	if limit == 0 {
		var err error
		limit, err = SweepLimit(density, disk)
		if err != nil {
			return err
		}
	}
	cylinders := s.Cylinders
	if len(cylinders) == 0 {
		cylinders = DefaultCylinders
	}
	s.results = s.results[:0]

	for _, cyl := range cylinders {
		for p := flux.Ticks(0); p < limit; p++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			job, err := source(cyl)
			if err != nil {
				return err
			}
			job.Cylinder = cyl
			pc := p
			job.Precomp = &pc

			verdict, err := s.driver.WriteVerify(ctx, job)
			cell := Result{Cylinder: cyl, Precomp: p}
			if err != nil {
				if errors.Is(err, errors.ErrHWWriteProtect) || errors.IsData(err) {
					return err
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				cell.MaxErr = failedErr
				s.log.WarnFields("calibration cell failed", log.Fields{
					"cylinder": cyl, "precomp": p, "error": errors.Code(err),
				})
			} else {
				cell.MaxErr = verdict.MaxErr
			}
			s.results = append(s.results, cell)
		}
	}

	metrics.Default().CalibrationRuns.Inc()
	return nil
}

// Results returns the recorded grid.
func (s *Sweep) Results() []Result {
	out := make([]Result, len(s.results))
	copy(out, s.results)
	return out
}

// Best returns the per-cylinder precompensation with the lowest error,
// sorted by cylinder. Cylinders where every cell failed are omitted.
func (s *Sweep) Best() []Result {
	best := make(map[int]Result)
	for _, r := range s.results {
		cur, ok := best[r.Cylinder]
		if !ok || r.MaxErr < cur.MaxErr {
			best[r.Cylinder] = r
		}
	}
	out := make([]Result, 0, len(best))
	for _, r := range best {
		if r.MaxErr < failedErr {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cylinder < out[j].Cylinder })
	return out
}

// Model folds the best results into a precompensation model for cellWidth.
func (s *Sweep) Model(cellWidth flux.Ticks) *precomp.Model {
	m := precomp.NewModel()
	for _, r := range s.Best() {
		m.Add(precomp.Sample{
			CellWidth: cellWidth,
			Cylinder:  r.Cylinder,
			Value:     r.Precomp,
		})
	}
	return m
}

// WriteCSV emits the raw grid: one header row of precompensation values,
// then one row per swept cylinder.
func (s *Sweep) WriteCSV(w io.Writer) error {
	if len(s.results) == 0 {
		return nil
	}

	byCyl := make(map[int][]Result)
	var order []int
	var maxP flux.Ticks
	for _, r := range s.results {
		if _, ok := byCyl[r.Cylinder]; !ok {
			order = append(order, r.Cylinder)
		}
		byCyl[r.Cylinder] = append(byCyl[r.Cylinder], r)
		if r.Precomp >= maxP {
			maxP = r.Precomp + 1
		}
	}
	sort.Ints(order)

	cw := csv.NewWriter(w)
	header := []string{""}
	for p := flux.Ticks(0); p < maxP; p++ {
		header = append(header, fmt.Sprintf("%d", p))
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, cyl := range order {
		row := []string{fmt.Sprintf("%d", cyl)}
		cells := byCyl[cyl]
		sort.Slice(cells, func(i, j int) bool { return cells[i].Precomp < cells[j].Precomp })
		for _, c := range cells {
			row = append(row, fmt.Sprintf("%d", c.MaxErr))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveCSV writes the grid to a file.
func (s *Sweep) SaveCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return s.WriteCSV(f)
}

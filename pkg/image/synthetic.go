// Synthetic disk images for calibration runs
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package image

import (
	"floppytracer-go/pkg/flux"
	"floppytracer-go/pkg/mfm"
)

// Synthetic generates a full disk image of entropy-rich sector tracks.
// Calibration uses these when no real image is at hand, since every grid
// cell needs a track with enough timing variation to correlate against.
func Synthetic(density flux.Density, disk flux.DiskType, cylinders, heads int) *Image {
	img := &Image{Density: density, Disk: disk}
	for cyl := 0; cyl < cylinders; cyl++ {
		for head := 0; head < heads; head++ {
			img.Tracks = append(img.Tracks, Track{
				Cylinder: cyl,
				Head:     head,
				Timeline: mfm.SyntheticTrack(cyl, head, density, disk),
			})
		}
	}
	return img
}

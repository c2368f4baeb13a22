// Package image decodes disk image files into flux timelines.
//
// Decoders are registered by file extension; the tracer core only ever sees
// the resulting timelines and never the container format.
package image

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"floppytracer-go/pkg/flux"
)

// Track is one decoded track of an image.
type Track struct {
	Cylinder int
	Head     int
	Timeline flux.Timeline
}

// Image is a fully decoded disk image.
type Image struct {
	Tracks  []Track
	Density flux.Density
	Disk    flux.DiskType
}

// TrackAt returns the track at a position, or nil.
func (img *Image) TrackAt(cylinder, head int) *Track {
	for i := range img.Tracks {
		t := &img.Tracks[i]
		if t.Cylinder == cylinder && t.Head == head {
			return t
		}
	}
	return nil
}

// Filter keeps only the tracks whose position the keep function accepts.
func (img *Image) Filter(keep func(cylinder, head int) bool) {
	out := img.Tracks[:0]
	for _, t := range img.Tracks {
		if keep(t.Cylinder, t.Head) {
			out = append(out, t)
		}
	}
	img.Tracks = out
}

// Decoder turns an image file into timelines.
type Decoder interface {
	// Name identifies the format in logs and errors.
	Name() string

	// Extensions lists the file extensions handled, with leading dot.
	Extensions() []string

	// Decode reads and decodes the file.
	Decode(path string) (*Image, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Decoder)
)

// Register makes a decoder available for its extensions. Later
// registrations for the same extension win.
func Register(d Decoder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, ext := range d.Extensions() {
		registry[strings.ToLower(ext)] = d
	}
}

// ForPath selects the decoder for a file by extension.
func ForPath(path string) (Decoder, error) {
	ext := strings.ToLower(filepath.Ext(path))
	registryMu.RLock()
	defer registryMu.RUnlock()
	if d, ok := registry[ext]; ok {
		return d, nil
	}
	var known []string
	for ext := range registry {
		known = append(known, ext)
	}
	sort.Strings(known)
	return nil, fmt.Errorf("image: no decoder for %q (supported: %s)",
		ext, strings.Join(known, " "))
}

// Decode reads an image file with the decoder matching its extension.
func Decode(path string) (*Image, error) {
	d, err := ForPath(path)
	if err != nil {
		return nil, err
	}
	return d.Decode(path)
}

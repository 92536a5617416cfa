package models

import (
	"fmt"
	"image"
	"sync"
)

// BandMeta describes one band of a multi-band image
type BandMeta struct {
	Center float64 // centre wavelength, 0 when unknown
	Empty  bool
}

// Range is a closed value interval
type Range struct {
	Min float64
	Max float64
}

// Valid reports whether the interval is non-degenerate
func (r Range) Valid() bool {
	return r.Min < r.Max
}

// MultiImage is a row-major matrix of fixed-dimensionality pixel vectors
type MultiImage struct {
	Width  int
	Height int
	Bands  int
	MinVal float64
	MaxVal float64
	Meta   []BandMeta

	data []float64
}

// NewMultiImage allocates a zeroed image. Value bounds default to [0, 255].
func NewMultiImage(width, height, bands int) (*MultiImage, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid dimensions: %dx%d", width, height)
	}
	if bands <= 0 {
		return nil, fmt.Errorf("invalid band count: %d", bands)
	}

	return &MultiImage{
		Width:  width,
		Height: height,
		Bands:  bands,
		MinVal: 0,
		MaxVal: 255,
		Meta:   make([]BandMeta, bands),
		data:   make([]float64, width*height*bands),
	}, nil
}

// Bounds returns the pixel rectangle of the image
func (m *MultiImage) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.Width, m.Height)
}

// Contains reports whether (row, col) addresses a pixel
func (m *MultiImage) Contains(row, col int) bool {
	return row >= 0 && col >= 0 && row < m.Height && col < m.Width
}

// Pixel returns the band vector at (row, col). The slice aliases image storage.
func (m *MultiImage) Pixel(row, col int) []float64 {
	off := (row*m.Width + col) * m.Bands
	return m.data[off : off+m.Bands : off+m.Bands]
}

// Value returns a single band value
func (m *MultiImage) Value(row, col, band int) float64 {
	return m.data[(row*m.Width+col)*m.Bands+band]
}

// Set stores a single band value
func (m *MultiImage) Set(row, col, band int, v float64) {
	m.data[(row*m.Width+col)*m.Bands+band] = v
}

// SetPixel copies a band vector into (row, col)
func (m *MultiImage) SetPixel(row, col int, values []float64) {
	copy(m.Pixel(row, col), values)
}

// Data exposes the interleaved storage for read-only scans
func (m *MultiImage) Data() []float64 {
	return m.data
}

// Band copies one band out in row-major order
func (m *MultiImage) Band(band int) []float64 {
	out := make([]float64, m.Width*m.Height)
	for i := range out {
		out[i] = m.data[i*m.Bands+band]
	}
	return out
}

// Range returns the advertised value bounds
func (m *MultiImage) Range() Range {
	return Range{Min: m.MinVal, Max: m.MaxVal}
}

// SetRange replaces the advertised value bounds
func (m *MultiImage) SetRange(r Range) {
	m.MinVal = r.Min
	m.MaxVal = r.Max
}

// Clone returns a deep copy
func (m *MultiImage) Clone() *MultiImage {
	clone := *m
	clone.Meta = append([]BandMeta(nil), m.Meta...)
	clone.data = append([]float64(nil), m.data...)
	return &clone
}

// SharedImage guards a MultiImage: many concurrent readers, exclusive replacement
type SharedImage struct {
	mu  sync.RWMutex
	img *MultiImage
}

// NewSharedImage wraps img for shared use
func NewSharedImage(img *MultiImage) *SharedImage {
	return &SharedImage{img: img}
}

// Read acquires a read lock and returns the image with its release function.
// The image is nil when nothing is bound.
func (s *SharedImage) Read() (*MultiImage, func()) {
	s.mu.RLock()
	return s.img, s.mu.RUnlock
}

// Replace swaps the underlying image under exclusive access
func (s *SharedImage) Replace(img *MultiImage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.img = img
}

// Update runs fn with exclusive access to the image
func (s *SharedImage) Update(fn func(img *MultiImage)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img != nil {
		fn(s.img)
	}
}

// Empty reports whether no image is bound
func (s *SharedImage) Empty() bool {
	if s == nil {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.img == nil
}

package distribution

import (
	"image"
	"image/color"
	"sort"
)

// Point is one vertex of a cell polyline: X is the band, Y the bin position
type Point struct {
	X float64
	Y float64
}

// Bin is one histogram cell
type Bin struct {
	Weight float64
	Points []Point
}

// NewBin creates an empty cell whose polyline follows key, scaled per band by
// illuminant when present. The key itself is never scaled.
func NewBin(key Key, illuminant []float64) *Bin {
	return &Bin{Points: Trajectory(key, illuminant)}
}

// Trajectory computes the display polyline of a key
func Trajectory(key Key, illuminant []float64) []Point {
	points := make([]Point, key.Len())
	for d := range points {
		y := float64(key.At(d))
		if d < len(illuminant) {
			y *= illuminant[d]
		}
		points[d] = Point{X: float64(d), Y: y}
	}
	return points
}

// BinSet is the histogram of one label
type BinSet struct {
	Label       int
	Color       color.RGBA
	Bins        map[Key]*Bin
	TotalWeight float64
}

// NewBinSet creates an empty histogram for label
func NewBinSet(label int, c color.RGBA) BinSet {
	return BinSet{Label: label, Color: c, Bins: make(map[Key]*Bin)}
}

// Keys returns the cell keys in a stable order
func (s *BinSet) Keys() []Key {
	keys := make([]Key, 0, len(s.Bins))
	for k := range s.Bins {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		for d := 0; d < a.Len() && d < b.Len(); d++ {
			if a.At(d) != b.At(d) {
				return a.At(d) < b.At(d)
			}
		}
		return a.Len() < b.Len()
	})
	return keys
}

// DefaultColor is used for labels beyond the palette
var DefaultColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// Basis records the parameters a collection was binned with. Staged updates
// may only build on a collection whose basis matches their own.
type Basis struct {
	Bins         int
	MinVal       float64
	BinSize      float64
	Dims         int
	IgnoreLabels bool
	ROI          image.Rectangle
	Image        uint64 // image generation
	Labels       uint64 // label matrix generation
}

// Collection is the per-label histogram set of one view
type Collection struct {
	Sets  []BinSet
	Basis Basis
}

// NewCollection creates one empty histogram per palette colour, at least one
func NewCollection(colors []color.RGBA) *Collection {
	c := &Collection{}
	c.SetColors(colors)
	if len(c.Sets) == 0 {
		c.EnsureLabel(0)
	}
	return c
}

// SetColors grows the collection to the palette and recolours existing sets
func (c *Collection) SetColors(colors []color.RGBA) {
	if len(colors) > 0 {
		c.EnsureLabel(len(colors) - 1)
	}
	for i := range c.Sets {
		if i < len(colors) {
			c.Sets[i].Color = colors[i]
		}
	}
}

// EnsureLabel grows the collection so that label has a histogram
func (c *Collection) EnsureLabel(label int) {
	for len(c.Sets) <= label {
		c.Sets = append(c.Sets, NewBinSet(len(c.Sets), DefaultColor))
	}
}

// Set returns the histogram of label, or nil if absent
func (c *Collection) Set(label int) *BinSet {
	if label < 0 || label >= len(c.Sets) {
		return nil
	}
	return &c.Sets[label]
}

// Add accumulates weight into the cell (label, key), creating it on demand
func (c *Collection) Add(label int, key Key, weight float64, illuminant []float64) {
	c.EnsureLabel(label)
	set := &c.Sets[label]
	bin, ok := set.Bins[key]
	if !ok {
		bin = NewBin(key, illuminant)
		set.Bins[key] = bin
	}
	bin.Weight += weight
	set.TotalWeight += weight
}

// Sub removes weight from the cell (label, key) and deletes it when empty.
// It returns the part of weight the cell did not hold; a consistent caller
// never sees a non-zero remainder.
func (c *Collection) Sub(label int, key Key, weight float64) float64 {
	set := c.Set(label)
	if set == nil {
		return weight
	}
	bin, ok := set.Bins[key]
	if !ok {
		return weight
	}
	var missing float64
	if weight > bin.Weight {
		missing = weight - bin.Weight
		weight = bin.Weight
	}
	bin.Weight -= weight
	set.TotalWeight -= weight
	if bin.Weight <= 0 {
		delete(set.Bins, key)
	}
	return missing
}

// Clone copies the collection. Cells are copied; polylines are shared since
// they are never modified after creation.
func (c *Collection) Clone() *Collection {
	if c == nil {
		return nil
	}
	out := &Collection{Sets: make([]BinSet, len(c.Sets)), Basis: c.Basis}
	for i, set := range c.Sets {
		bins := make(map[Key]*Bin, len(set.Bins))
		for k, b := range set.Bins {
			cp := *b
			bins[k] = &cp
		}
		out.Sets[i] = BinSet{Label: set.Label, Color: set.Color, Bins: bins, TotalWeight: set.TotalWeight}
	}
	return out
}

// TotalWeight sums the weights of all histograms
func (c *Collection) TotalWeight() float64 {
	var total float64
	for i := range c.Sets {
		total += c.Sets[i].TotalWeight
	}
	return total
}

// CellCount returns the number of cells across all histograms
func (c *Collection) CellCount() int {
	n := 0
	for i := range c.Sets {
		n += len(c.Sets[i].Bins)
	}
	return n
}

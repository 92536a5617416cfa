package models

import "image"

// Labels holds one label per pixel; 0 means unlabeled
type Labels struct {
	Width  int
	Height int
	Data   []int16
}

// NewLabels allocates an all-unlabeled matrix
func NewLabels(width, height int) *Labels {
	return &Labels{Width: width, Height: height, Data: make([]int16, width*height)}
}

// Empty reports whether the matrix carries no labels at all
func (l *Labels) Empty() bool {
	return l == nil || len(l.Data) == 0
}

func (l *Labels) At(row, col int) int16 {
	return l.Data[row*l.Width+col]
}

func (l *Labels) Set(row, col int, label int16) {
	l.Data[row*l.Width+col] = label
}

// Bounds returns the labelled rectangle
func (l *Labels) Bounds() image.Rectangle {
	return image.Rect(0, 0, l.Width, l.Height)
}

// MaxLabel returns the largest label present
func (l *Labels) MaxLabel() int16 {
	var m int16
	for _, v := range l.Data {
		if v > m {
			m = v
		}
	}
	return m
}

// Clone returns a deep copy; a nil matrix clones to nil
func (l *Labels) Clone() *Labels {
	if l == nil {
		return nil
	}
	return &Labels{Width: l.Width, Height: l.Height, Data: append([]int16(nil), l.Data...)}
}

// Mask is a boolean per-pixel matrix
type Mask struct {
	Width  int
	Height int
	Data   []bool
}

// NewMask allocates a cleared mask
func NewMask(width, height int) *Mask {
	return &Mask{Width: width, Height: height, Data: make([]bool, width*height)}
}

// Empty reports whether the mask has no pixels
func (m *Mask) Empty() bool {
	return m == nil || len(m.Data) == 0
}

// Contains reports whether (row, col) lies inside the mask
func (m *Mask) Contains(row, col int) bool {
	return row >= 0 && col >= 0 && row < m.Height && col < m.Width
}

func (m *Mask) At(row, col int) bool {
	return m.Data[row*m.Width+col]
}

func (m *Mask) Set(row, col int, v bool) {
	m.Data[row*m.Width+col] = v
}

// Clear resets every pixel
func (m *Mask) Clear() {
	for i := range m.Data {
		m.Data[i] = false
	}
}

// Count returns the number of set pixels
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Data {
		if v {
			n++
		}
	}
	return n
}

func (m *Mask) Clone() *Mask {
	if m == nil {
		return nil
	}
	return &Mask{Width: m.Width, Height: m.Height, Data: append([]bool(nil), m.Data...)}
}

// Extent returns the smallest rectangle holding every set pixel
func (m *Mask) Extent() image.Rectangle {
	var r image.Rectangle
	if m.Empty() {
		return r
	}
	for row := 0; row < m.Height; row++ {
		for col := 0; col < m.Width; col++ {
			if m.At(row, col) {
				r = r.Union(image.Rect(col, row, col+1, row+1))
			}
		}
	}
	return r
}

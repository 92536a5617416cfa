package distribution

import "fmt"

// MaxBands bounds the dimensionality a Key can hold. Keys are compared and
// hashed as fixed-size arrays, so the limit only trades key size for speed.
const MaxBands = 256

// Key identifies a histogram cell: the per-band bin indices of a pixel
type Key struct {
	n   uint16
	idx [MaxBands]uint8
}

// NewKey builds a key from bin indices. Indices must lie in [0, 255].
func NewKey(indices ...int) (Key, error) {
	var k Key
	if len(indices) > MaxBands {
		return k, fmt.Errorf("dimensionality %d exceeds %d bands", len(indices), MaxBands)
	}
	for d, v := range indices {
		if v < 0 || v > 255 {
			return k, fmt.Errorf("bin index %d out of range in band %d", v, d)
		}
		k.idx[d] = uint8(v)
	}
	k.n = uint16(len(indices))
	return k, nil
}

// Reset prepares the key for dims bands
func (k *Key) Reset(dims int) {
	for d := dims; d < int(k.n); d++ {
		k.idx[d] = 0
	}
	k.n = uint16(dims)
}

// Put stores the bin index of band d
func (k *Key) Put(d, index int) {
	k.idx[d] = uint8(index)
}

// Len returns the number of bands
func (k Key) Len() int {
	return int(k.n)
}

// At returns the bin index of band d
func (k Key) At(d int) int {
	return int(k.idx[d])
}

// Indices copies the bin indices out
func (k Key) Indices() []int {
	out := make([]int, k.n)
	for d := range out {
		out[d] = int(k.idx[d])
	}
	return out
}

func (k Key) String() string {
	return fmt.Sprint(k.Indices())
}

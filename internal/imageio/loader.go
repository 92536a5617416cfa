// Package imageio assembles multi-band images from ordinary image files.
package imageio

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "golang.org/x/image/tiff"

	"spectral-distview/internal/models"
)

// BandFile is one entry of a band descriptor
type BandFile struct {
	Path   string
	Center float64 // centre wavelength in nm, 0 when unknown
}

// Descriptor lists the files that make up a multi-band image. The text form
// is a header line "<count> <directory>" followed by one "<file> [wavelength]"
// line per band.
type Descriptor struct {
	Dir   string
	Bands []BandFile
}

// ReadDescriptor parses a band descriptor
func ReadDescriptor(r io.Reader) (*Descriptor, error) {
	scanner := bufio.NewScanner(r)
	desc := &Descriptor{}
	count := -1

	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		if count < 0 {
			head, rest, _ := strings.Cut(text, " ")
			n, err := strconv.Atoi(head)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("line %d: invalid band count %q", line, head)
			}
			count = n
			desc.Dir = strings.Trim(strings.TrimSpace(rest), `'"`)
			continue
		}

		fields := strings.Fields(text)
		band := BandFile{Path: fields[0]}
		if len(fields) > 1 {
			center, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid wavelength %q: %w", line, fields[1], err)
			}
			band.Center = center
		}
		desc.Bands = append(desc.Bands, band)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read descriptor: %w", err)
	}
	if count < 0 {
		return nil, fmt.Errorf("descriptor is empty")
	}
	if len(desc.Bands) != count {
		return nil, fmt.Errorf("descriptor announces %d bands, lists %d", count, len(desc.Bands))
	}
	return desc, nil
}

// Load reads a multi-band image. A .txt path is treated as band descriptor,
// anything else as a single image whose channels become the bands.
func Load(path string) (*models.MultiImage, error) {
	if strings.EqualFold(filepath.Ext(path), ".txt") {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open descriptor: %w", err)
		}
		defer file.Close()

		desc, err := ReadDescriptor(file)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if !filepath.IsAbs(desc.Dir) {
			desc.Dir = filepath.Join(filepath.Dir(path), desc.Dir)
		}
		return LoadDescriptor(desc)
	}

	planes, err := decodePlanes(path)
	if err != nil {
		return nil, err
	}
	return assemble(planes, nil)
}

// LoadDescriptor reads every band file listed in desc
func LoadDescriptor(desc *Descriptor) (*models.MultiImage, error) {
	var planes []plane
	var centers []float64
	for _, band := range desc.Bands {
		path := band.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(desc.Dir, path)
		}
		p, err := decodePlanes(path)
		if err != nil {
			return nil, err
		}
		for range p {
			centers = append(centers, band.Center)
		}
		planes = append(planes, p...)
	}
	return assemble(planes, centers)
}

// plane is one decoded channel
type plane struct {
	width, height int
	values        []float64
	max           float64
}

func decodePlanes(path string) ([]plane, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	return split(img), nil
}

// split converts img into one plane per channel. Grey images yield a single
// plane, everything else red, green and blue.
func split(img image.Image) []plane {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	switch src := img.(type) {
	case *image.Gray:
		p := plane{width: w, height: h, values: make([]float64, w*h), max: 255}
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				p.values[y*w+x] = float64(src.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
		return []plane{p}
	case *image.Gray16:
		p := plane{width: w, height: h, values: make([]float64, w*h), max: 65535}
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				p.values[y*w+x] = float64(src.Gray16At(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
		return []plane{p}
	}

	planes := make([]plane, 3)
	for i := range planes {
		planes[i] = plane{width: w, height: h, values: make([]float64, w*h), max: 255}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			planes[0].values[y*w+x] = float64(c.R)
			planes[1].values[y*w+x] = float64(c.G)
			planes[2].values[y*w+x] = float64(c.B)
		}
	}
	return planes
}

func assemble(planes []plane, centers []float64) (*models.MultiImage, error) {
	if len(planes) == 0 {
		return nil, fmt.Errorf("no bands to assemble")
	}
	w, h := planes[0].width, planes[0].height
	img, err := models.NewMultiImage(w, h, len(planes))
	if err != nil {
		return nil, err
	}

	maxval := 0.0
	for band, p := range planes {
		if p.width != w || p.height != h {
			return nil, fmt.Errorf("band %d is %dx%d, expected %dx%d", band, p.width, p.height, w, h)
		}
		for i, v := range p.values {
			img.Set(i/w, i%w, band, v)
		}
		if p.max > maxval {
			maxval = p.max
		}
		if band < len(centers) {
			img.Meta[band].Center = centers[band]
		}
	}
	img.SetRange(models.Range{Min: 0, Max: maxval})
	return img, nil
}

package imageinspect

import (
	"image"
	"image/color"

	"github.com/bytesleuth/sleuth/internal/entropy"
)

// Planes holds the least significant bits of an image, packed eight per byte
// with the first bit in the most significant position.
type Planes struct {
	// Interleaved carries R, G, B of each pixel in row-major order.
	Interleaved []byte
	R, G, B     []byte
}

// PlaneStats are the entropies of the derived LSB byte streams.
type PlaneStats struct {
	Entropy float64
	R, G, B float64
}

type packer struct {
	out []byte
	cur byte
	n   int
}

func (p *packer) push(bit byte) {
	p.cur = p.cur<<1 | bit
	p.n++
	if p.n == 8 {
		p.out = append(p.out, p.cur)
		p.cur, p.n = 0, 0
	}
}

// bytes flushes a partial last group as it is, without left alignment.
func (p *packer) bytes() []byte {
	if p.n > 0 {
		return append(p.out, p.cur)
	}
	return p.out
}

// rgbAt returns 8 bit color components for the image types with distinct
// color channels. Everything else (paletted, gray, CMYK) is not supported.
func rgbAt(img image.Image) (func(x, y int) (r, g, b uint8), bool) {
	switch m := img.(type) {
	case *image.RGBA:
		return func(x, y int) (uint8, uint8, uint8) {
			i := m.PixOffset(x, y)
			return m.Pix[i], m.Pix[i+1], m.Pix[i+2]
		}, true
	case *image.NRGBA:
		return func(x, y int) (uint8, uint8, uint8) {
			i := m.PixOffset(x, y)
			return m.Pix[i], m.Pix[i+1], m.Pix[i+2]
		}, true
	case *image.RGBA64:
		return func(x, y int) (uint8, uint8, uint8) {
			i := m.PixOffset(x, y)
			return m.Pix[i], m.Pix[i+2], m.Pix[i+4]
		}, true
	case *image.NRGBA64:
		return func(x, y int) (uint8, uint8, uint8) {
			i := m.PixOffset(x, y)
			return m.Pix[i], m.Pix[i+2], m.Pix[i+4]
		}, true
	case *image.YCbCr:
		return func(x, y int) (uint8, uint8, uint8) {
			yi, ci := m.YOffset(x, y), m.COffset(x, y)
			return color.YCbCrToRGB(m.Y[yi], m.Cb[ci], m.Cr[ci])
		}, true
	case *image.NYCbCrA:
		return func(x, y int) (uint8, uint8, uint8) {
			yi, ci := m.YOffset(x, y), m.COffset(x, y)
			return color.YCbCrToRGB(m.Y[yi], m.Cb[ci], m.Cr[ci])
		}, true
	default:
		return nil, false
	}
}

// ExtractPlanes returns the LSB planes of img, ok is false for images without
// distinct RGB channels.
func ExtractPlanes(img image.Image) (Planes, bool) {
	at, ok := rgbAt(img)
	if !ok {
		return Planes{}, false
	}
	var all, pr, pg, pb packer
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b := at(x, y)
			all.push(r & 1)
			all.push(g & 1)
			all.push(b & 1)
			pr.push(r & 1)
			pg.push(g & 1)
			pb.push(b & 1)
		}
	}
	return Planes{
		Interleaved: all.bytes(),
		R:           pr.bytes(),
		G:           pg.bytes(),
		B:           pb.bytes(),
	}, true
}

func (p Planes) Stats() PlaneStats {
	return PlaneStats{
		Entropy: entropy.Shannon(p.Interleaved),
		R:       entropy.Shannon(p.R),
		G:       entropy.Shannon(p.G),
		B:       entropy.Shannon(p.B),
	}
}

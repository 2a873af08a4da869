// Package texture defines the decoded image resource handed to UI code.
package texture

import (
	"fmt"
	"image"
	"image/draw"
)

type Format uint8

const (
	RGBA8 Format = iota + 1 // 4 bytes per pixel, non-premultiplied
)

func (f Format) String() string {
	switch f {
	case RGBA8:
		return "rgba8"
	default:
		return fmt.Sprintf("format(%d)", uint8(f))
	}
}

func (f Format) BytesPerPixel() int {
	if f == RGBA8 {
		return 4
	}
	return 0
}

// Texture is an immutable, CPU-side pixel buffer. Once published by a pool it is
// shared read-only between every UI element bound to it.
type Texture struct {
	Width  int    `json:"w" msgpack:"w" cbor:"1,keyasint"`
	Height int    `json:"h" msgpack:"h" cbor:"2,keyasint"`
	Format Format `json:"f" msgpack:"f" cbor:"3,keyasint"`
	Pix    []byte `json:"p" msgpack:"p" cbor:"4,keyasint"`
}

// FromImage copies img into a new RGBA8 texture.
func FromImage(img image.Image) *Texture {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return &Texture{
		Width:  b.Dx(),
		Height: b.Dy(),
		Format: RGBA8,
		Pix:    dst.Pix,
	}
}

// Image returns a view of t as an *image.NRGBA sharing Pix.
func (t *Texture) Image() *image.NRGBA {
	return &image.NRGBA{
		Pix:    t.Pix,
		Stride: 4 * t.Width,
		Rect:   image.Rect(0, 0, t.Width, t.Height),
	}
}

// Size is the pixel buffer size in bytes.
func (t *Texture) Size() int { return len(t.Pix) }

// Validate reports whether the header matches the pixel buffer.
func (t *Texture) Validate() error {
	bpp := t.Format.BytesPerPixel()
	if bpp == 0 {
		return fmt.Errorf("texture: unsupported format %v", t.Format)
	}
	if t.Width <= 0 || t.Height <= 0 {
		return fmt.Errorf("texture: invalid size %dx%d", t.Width, t.Height)
	}
	if want := bpp * t.Width * t.Height; len(t.Pix) != want {
		return fmt.Errorf("texture: pixel buffer is %d bytes, want %d", len(t.Pix), want)
	}
	return nil
}

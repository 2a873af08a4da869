package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"github.com/unkn0wn-root/texpool/texture"
)

var ErrUnknownFormat = errors.New("codec: unknown image format")

// Image decodes PNG, JPEG and GIF (first frame) into RGBA8 textures and encodes
// textures as PNG. MaxPixels, when > 0, rejects images whose header announces more
// pixels before any pixel data is decoded.
type Image struct {
	MaxPixels int
}

var _ Codec[*texture.Texture] = Image{}

func (c Image) Decode(b []byte) (*texture.Texture, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, ErrUnknownFormat
		}
		return nil, fmt.Errorf("codec: image header: %w", err)
	}
	if c.MaxPixels > 0 && cfg.Width*cfg.Height > c.MaxPixels {
		return nil, fmt.Errorf("codec: %s image %dx%d exceeds %d pixels", format, cfg.Width, cfg.Height, c.MaxPixels)
	}
	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("codec: decode %s: %w", format, err)
	}
	return texture.FromImage(img), nil
}

func (Image) Encode(t *texture.Texture) ([]byte, error) {
	if t == nil {
		return nil, errors.New("codec: nil texture")
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, t.Image()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

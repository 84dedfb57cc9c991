// Package raster composites labels into pixel images.
package raster

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"github.com/ByLCY/sampletag/binding"
	"github.com/ByLCY/sampletag/fonts"
	"github.com/ByLCY/sampletag/layout"
	"github.com/ByLCY/sampletag/qr"
	"github.com/ByLCY/sampletag/renderer"
	"github.com/ByLCY/sampletag/sample"
)

// Options configures a Compositor. Zero values fall back to the default font
// set, a white canvas, sample.Hash and qr.Encode.
type Options struct {
	Fonts      *fonts.Set
	Background image.Image
	Hasher     sample.Hasher
	Encoder    func(payload string) (image.Image, error)
}

// Compositor draws a sample onto a label canvas following a layout descriptor.
// It holds only read-only state and is safe for concurrent use.
type Compositor struct {
	fonts      *fonts.Set
	background image.Image
	hasher     sample.Hasher
	encode     func(string) (image.Image, error)
}

var _ renderer.Renderer = (*Compositor)(nil)

// Label is a finished composite together with the content key encoded in it.
type Label struct {
	Key   string
	Image *image.NRGBA
}

// New returns a compositor configured by opts.
func New(opts Options) (*Compositor, error) {
	c := &Compositor{
		fonts:      opts.Fonts,
		background: opts.Background,
		hasher:     opts.Hasher,
		encode:     opts.Encoder,
	}
	if c.fonts == nil {
		set, err := fonts.Default()
		if err != nil {
			return nil, fmt.Errorf("load default fonts: %w", err)
		}
		c.fonts = set
	}
	if c.hasher == nil {
		c.hasher = sample.Hash
	}
	if c.encode == nil {
		c.encode = func(payload string) (image.Image, error) { return qr.Encode(payload) }
	}
	return c, nil
}

// Compose renders s with d. The descriptor is validated before anything is
// drawn; any failure aborts the whole render.
func (c *Compositor) Compose(s sample.Sample, d *layout.Descriptor) (*Label, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	key, _ := sample.ResolveKey(s, c.hasher)

	w, h := d.LabelSize.Pixels()
	canvas := c.blank(w, h)

	code, err := c.encode(key)
	if err != nil {
		return nil, err
	}

	faces := map[int]font.Face{}
	defer func() {
		for _, f := range faces {
			f.Close()
		}
	}()

	for _, e := range d.Entities {
		switch e := e.(type) {
		case layout.QR:
			// resample from the pristine symbol every time
			scaled := imaging.Resize(code, e.Size, e.Size, imaging.NearestNeighbor)
			canvas = imaging.Paste(canvas, scaled, e.Position.Point())
		case layout.Text:
			text, err := binding.Resolve(e.Text, s)
			if err != nil {
				return nil, err
			}
			face, ok := faces[e.FontSizePx]
			if !ok {
				face, err = c.fonts.Face(e.FontSizePx)
				if err != nil {
					return nil, err
				}
				faces[e.FontSizePx] = face
			}
			drawText(canvas, face, e.Position.Point(), text)
		}
	}
	return &Label{Key: key, Image: canvas}, nil
}

// Image is Compose without the key.
func (c *Compositor) Image(s sample.Sample, d *layout.Descriptor) (image.Image, error) {
	label, err := c.Compose(s, d)
	if err != nil {
		return nil, err
	}
	return label.Image, nil
}

// Render returns the composite encoded as PNG.
func (c *Compositor) Render(s sample.Sample, d *layout.Descriptor) ([]byte, error) {
	label, err := c.Compose(s, d)
	if err != nil {
		return nil, err
	}
	return EncodePNG(label.Image)
}

// EncodePNG losslessly encodes img.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *Compositor) blank(w, h int) *image.NRGBA {
	canvas := imaging.New(w, h, color.White)
	if c.background == nil {
		return canvas
	}
	bg := imaging.Resize(c.background, w, h, imaging.Lanczos)
	return imaging.Overlay(canvas, bg, image.Point{}, 1.0)
}

// drawText draws text with its top-left corner at pt.
func drawText(dst *image.NRGBA, face font.Face, pt image.Point, text string) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.Black,
		Face: face,
		Dot: fixed.Point26_6{
			X: fixed.I(pt.X),
			Y: fixed.I(pt.Y) + face.Metrics().Ascent,
		},
	}
	d.DrawString(text)
}

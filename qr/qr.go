// Package qr encodes content keys into QR code bitmaps.
package qr

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/skip2/go-qrcode"
)

// EncodingError reports a payload the encoder could not represent, typically
// because it exceeds the capacity of the largest symbol at level H.
type EncodingError struct {
	Payload string
	Err     error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("qr: encode %q: %v", e.Payload, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// Encode returns the QR symbol for payload at error-correction level H with no
// quiet zone, one pixel per module, black modules on white.
func Encode(payload string) (*image.NRGBA, error) {
	modules, err := Modules(payload)
	if err != nil {
		return nil, err
	}
	n := len(modules)
	img := imaging.New(n, n, color.White)
	for y, row := range modules {
		for x, dark := range row {
			if dark {
				img.SetNRGBA(x, y, color.NRGBA{A: 0xff})
			}
		}
	}
	return img, nil
}

// Modules returns the raw module matrix, indexed [row][column].
func Modules(payload string) ([][]bool, error) {
	code, err := qrcode.New(payload, qrcode.Highest)
	if err != nil {
		return nil, &EncodingError{Payload: payload, Err: err}
	}
	code.DisableBorder = true
	return code.Bitmap(), nil
}

package reader

import (
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/corona10/goimagehash"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Bitmap decodes the stream as an image. Data that cannot be decoded leaves
// the reader without an image instead of failing the fetch.
// Mutable
type Bitmap struct {
	img    image.Image
	format string
}

func NewBitmap() *Bitmap {
	return &Bitmap{}
}

func (b *Bitmap) ReadStream(r io.Reader) error {
	img, format, err := image.Decode(r)
	if err != nil {
		log.Debugf("image decode failed: %v", err)
		b.img, b.format = nil, ""
		return nil
	}
	b.img, b.format = img, format
	return nil
}

// Bitmap returns the decoded image, nil if there is none.
func (b *Bitmap) Bitmap() image.Image {
	return b.img
}

// Format returns the name of the decoded format ("png", "jpeg", ...).
func (b *Bitmap) Format() string {
	return b.format
}

// Hash returns the difference hash of the image, suitable for spotting
// near-duplicate images.
func (b *Bitmap) Hash() (*goimagehash.ImageHash, error) {
	if b.img == nil {
		return nil, errors.New("no image decoded")
	}
	return goimagehash.DifferenceHash(b.img)
}

package frame

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/nfnt/resize"
)

// Channels is the number of color samples per pixel.
const Channels = 3

var ErrEmpty = errors.New("frame: empty frame")

// Frame is a decoded video frame, packed 3 bytes per pixel in BGR order, which is the order
// both the decoder and the writer speak.
type Frame struct {
	Width  int
	Height int
	Pix    []byte
}

func New(width, height int) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height*Channels),
	}
}

func (f *Frame) Validate() error {
	if nil == f || 0 >= f.Width || 0 >= f.Height {
		return ErrEmpty
	}

	if len(f.Pix) < f.Width*f.Height*Channels {
		return fmt.Errorf("%w: %dx%d needs %d bytes, got %d",
			ErrEmpty, f.Width, f.Height, f.Width*f.Height*Channels, len(f.Pix))
	}

	return nil
}

func (f *Frame) Clone() *Frame {
	pix := make([]byte, len(f.Pix))
	copy(pix, f.Pix)

	return &Frame{Width: f.Width, Height: f.Height, Pix: pix}
}

// BGR returns the samples of the pixel at (x, y).
func (f *Frame) BGR(x, y int) (b, g, r byte) {
	offset := (y*f.Width + x) * Channels

	return f.Pix[offset], f.Pix[offset+1], f.Pix[offset+2]
}

func (f *Frame) SetBGR(x, y int, b, g, r byte) {
	offset := (y*f.Width + x) * Channels

	f.Pix[offset] = b
	f.Pix[offset+1] = g
	f.Pix[offset+2] = r
}

// RGBA converts the frame into an opaque RGB image.
func (f *Frame) RGBA() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))

	for i, j := 0, 0; i < f.Width*f.Height*Channels; i, j = i+Channels, j+4 {
		img.Pix[j] = f.Pix[i+2]
		img.Pix[j+1] = f.Pix[i+1]
		img.Pix[j+2] = f.Pix[i]
		img.Pix[j+3] = 0xFF
	}

	return img
}

// FromImage packs any image into a BGR frame, dropping alpha.
func FromImage(img image.Image) *Frame {
	bounds := img.Bounds()
	out := New(bounds.Dx(), bounds.Dy())

	if rgba, ok := img.(*image.RGBA); ok {
		for y := 0; y < out.Height; y++ {
			row := rgba.Pix[(y+bounds.Min.Y-rgba.Rect.Min.Y)*rgba.Stride:]
			for x := 0; x < out.Width; x++ {
				offset := (x + bounds.Min.X - rgba.Rect.Min.X) * 4
				out.SetBGR(x, y, row[offset+2], row[offset+1], row[offset])
			}
		}

		return out
	}

	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			c := color.RGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.RGBA)
			out.SetBGR(x, y, c.B, c.G, c.R)
		}
	}

	return out
}

// Resize stretches the frame to width x height with bilinear interpolation. Aspect ratio is
// not preserved.
func (f *Frame) Resize(width, height int) *Frame {
	if f.Width == width && f.Height == height {
		return f.Clone()
	}

	return FromImage(stretch(f.RGBA(), width, height))
}

func stretch(img *image.RGBA, width, height int) *image.RGBA {
	bounds := img.Bounds()
	if bounds.Dx() == width && bounds.Dy() == height {
		return img
	}

	resized := resize.Resize(uint(width), uint(height), img, resize.Bilinear)
	if rgba, ok := resized.(*image.RGBA); ok && 0 == rgba.Rect.Min.X && 0 == rgba.Rect.Min.Y {
		return rgba
	}

	out := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(out, out.Bounds(), resized, resized.Bounds().Min, draw.Src)

	return out
}

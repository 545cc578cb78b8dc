package frame

import (
	"fmt"

	"gorgonia.org/tensor"
)

// DefaultSize is the side of the square model input.
const DefaultSize = 256

// Alignment is the stride the aligned policy snaps each side to.
const Alignment = 32

type ResizePolicy string

const (
	// PolicySquare stretches every frame to size x size.
	PolicySquare ResizePolicy = "square"

	// PolicyAligned keeps the frame close to its own shape: each side is floored to a multiple
	// of Alignment and never goes below size.
	PolicyAligned ResizePolicy = "aligned"
)

func ParsePolicy(value string) (ResizePolicy, error) {
	switch ResizePolicy(value) {
	case PolicySquare, PolicyAligned:
		return ResizePolicy(value), nil
	case "":
		return PolicySquare, nil
	}

	return "", fmt.Errorf("unknown resize policy: %q", value)
}

// InputSize returns the width and height a width x height frame is resized to before
// inference.
func InputSize(width, height, size int, policy ResizePolicy) (int, int) {
	if PolicyAligned != policy {
		return size, size
	}

	return align(width, size), align(height, size)
}

func align(side, size int) int {
	if side <= size {
		return size
	}

	return side - side%Alignment
}

// Preprocess converts a frame into the (1, H, W, 3) float32 RGB tensor in [-1, 1] the model
// consumes.
func Preprocess(f *Frame, size int, policy ResizePolicy) (*tensor.Dense, error) {
	if err := f.Validate(); nil != err {
		return nil, err
	}

	if 0 >= size {
		return nil, fmt.Errorf("invalid model input size: %d", size)
	}

	width, height := InputSize(f.Width, f.Height, size, policy)
	img := stretch(f.RGBA(), width, height)

	data := make([]float32, width*height*Channels)
	for y := 0; y < height; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < width; x++ {
			offset := (y*width + x) * Channels

			data[offset] = normalize(row[x*4])
			data[offset+1] = normalize(row[x*4+1])
			data[offset+2] = normalize(row[x*4+2])
		}
	}

	return tensor.New(
		tensor.WithShape(1, height, width, Channels),
		tensor.WithBacking(data),
	), nil
}

func normalize(sample byte) float32 {
	return float32(sample)/127.5 - 1
}

package frame

import (
	"fmt"
	"image"

	"gorgonia.org/tensor"
)

// Postprocess turns a stylized NHWC tensor in [-1, 1] back into a BGR frame of width x height.
func Postprocess(t tensor.Tensor, width, height int) (*Frame, error) {
	if nil == t {
		return nil, fmt.Errorf("postprocess: nil tensor")
	}

	if 0 >= width || 0 >= height {
		return nil, fmt.Errorf("postprocess: invalid output size %dx%d", width, height)
	}

	shape := t.Shape()
	var h, w, c int

	switch len(shape) {
	case 4:
		if 1 != shape[0] {
			return nil, fmt.Errorf("postprocess: batch of %d, expected 1", shape[0])
		}
		h, w, c = shape[1], shape[2], shape[3]
	case 3:
		h, w, c = shape[0], shape[1], shape[2]
	default:
		return nil, fmt.Errorf("postprocess: unexpected tensor shape %v", shape)
	}

	if Channels != c {
		return nil, fmt.Errorf("postprocess: %d channels, expected %d", c, Channels)
	}

	samples, err := float32s(t.Data())
	if nil != err {
		return nil, err
	}

	if len(samples) < h*w*c {
		return nil, fmt.Errorf("postprocess: tensor holds %d values, shape %v needs %d", len(samples), shape, h*w*c)
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i, j := 0, 0; i < h*w*c; i, j = i+c, j+4 {
		img.Pix[j] = denormalize(samples[i])
		img.Pix[j+1] = denormalize(samples[i+1])
		img.Pix[j+2] = denormalize(samples[i+2])
		img.Pix[j+3] = 0xFF
	}

	return FromImage(stretch(img, width, height)), nil
}

func float32s(data interface{}) ([]float32, error) {
	switch v := data.(type) {
	case []float32:
		return v, nil
	case []float64:
		out := make([]float32, len(v))
		for i := range v {
			out[i] = float32(v[i])
		}
		return out, nil
	}

	return nil, fmt.Errorf("postprocess: unsupported tensor data %T", data)
}

func denormalize(value float32) byte {
	return clip((float64(value) + 1) / 2 * 255)
}

func clip(value float64) byte {
	if value <= 0 {
		return 0
	}

	if value >= 255 {
		return 255
	}

	return byte(value)
}

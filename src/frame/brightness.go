package frame

// Rec. 601 luma weights.
const (
	weightR = 0.299
	weightG = 0.587
	weightB = 0.114
)

// MeanLuminance is the average luma of the frame in [0, 255].
func MeanLuminance(f *Frame) float64 {
	if nil != f.Validate() {
		return 0
	}

	var sumB, sumG, sumR float64
	for i := 0; i < f.Width*f.Height*Channels; i += Channels {
		sumB += float64(f.Pix[i])
		sumG += float64(f.Pix[i+1])
		sumR += float64(f.Pix[i+2])
	}

	n := float64(f.Width * f.Height)

	return weightR*sumR/n + weightG*sumG/n + weightB*sumB/n
}

// MatchBrightness scales every channel of stylized so that its mean luminance tracks the
// source frame. The two frames may differ in size. The input frame is not modified.
func MatchBrightness(stylized, source *Frame) *Frame {
	out := stylized.Clone()
	if nil != source.Validate() {
		return out
	}

	target := MeanLuminance(source)
	current := MeanLuminance(stylized)
	if 0 == current {
		return out
	}

	ratio := target / current
	for i := range out.Pix {
		out.Pix[i] = clip(float64(out.Pix[i]) * ratio)
	}

	return out
}

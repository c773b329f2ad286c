// Package preprocess derives the image variants the decoder cascade sweeps
// over. Variants are produced lazily and cached per pipeline; none of them
// is ever modified after it has been handed out.
package preprocess

// Variant names one derived image.
type Variant int

const (
	// Original is the scan area unchanged.
	Original Variant = iota
	// Gray is the single-channel luma conversion.
	Gray
	// Binary is Gray thresholded at the Otsu level.
	Binary
	// Inverted is the complement of Binary.
	Inverted
	// Dilated is Binary dilated once with a 2x2 structuring element.
	Dilated

	numVariants
)

var variantNames = [numVariants]string{"Original", "Gray", "Binary", "Inverted", "Dilated"}

func (v Variant) String() string {
	if v < 0 || v >= numVariants {
		return "Unknown"
	}
	return variantNames[v]
}

// Variants returns every variant in sweep order.
func Variants() []Variant {
	return []Variant{Original, Gray, Binary, Inverted, Dilated}
}

// ParseVariant maps a name back to its Variant.
func ParseVariant(name string) (Variant, bool) {
	for i, n := range variantNames {
		if n == name {
			return Variant(i), true
		}
	}
	return 0, false
}

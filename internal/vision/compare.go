package vision

import (
	"image"

	"github.com/corona10/goimagehash"
)

// Score is the outcome of comparing one region crop against its template.
type Score struct {
	SSIM float64
	// HashDistance is the perceptual-hash Hamming distance to the template,
	// -1 when either hash is unavailable. Diagnostic only.
	HashDistance int
}

// Compare resizes crop to the template size, converts it to grayscale and
// scores it against tpl.
func Compare(crop image.Image, tpl *image.Gray, tplHash *goimagehash.ImageHash) (Score, error) {
	tb := tpl.Bounds()
	resized, err := Resize(crop, tb.Dx(), tb.Dy())
	if err != nil {
		return Score{}, err
	}
	gray := ToGray(resized)

	ssim, err := SSIM(gray, tpl)
	if err != nil {
		return Score{}, err
	}
	return Score{SSIM: ssim, HashDistance: HashDistance(gray, tplHash)}, nil
}

// PerceptionHash hashes img, returning nil when hashing fails.
func PerceptionHash(img image.Image) *goimagehash.ImageHash {
	h, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return nil
	}
	return h
}

// HashDistance returns the Hamming distance between img's perceptual hash and
// ref, or -1 if it cannot be computed.
func HashDistance(img image.Image, ref *goimagehash.ImageHash) int {
	if ref == nil {
		return -1
	}
	h := PerceptionHash(img)
	if h == nil {
		return -1
	}
	d, err := h.Distance(ref)
	if err != nil {
		return -1
	}
	return d
}

// Package vision implements the image operations behind hook detection:
// cropping a frame to a region, resizing to template size, grayscale
// conversion, SSIM scoring and perceptual-hash distance.
package vision

import (
	"image"
	"image/draw"

	"github.com/nfnt/resize"

	apperrors "github.com/GriffinCanCode/hookwatch/internal/errors"
)

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// Crop returns the part of frame covered by r. r is relative to the frame
// origin, so a display captured at (0,0) uses plain screen coordinates.
func Crop(frame image.Image, r image.Rectangle) (image.Image, error) {
	b := frame.Bounds()
	abs := r.Add(b.Min)
	if r.Empty() || !abs.In(b) {
		return nil, apperrors.Newf(apperrors.RegionInvalid, "region %v outside frame %v", r, b)
	}
	if s, ok := frame.(subImager); ok {
		return s.SubImage(abs), nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), frame, abs.Min, draw.Src)
	return dst, nil
}

// Resize scales img to w x h with bilinear filtering. An image that already
// has the requested size is returned unchanged.
func Resize(img image.Image, w, h int) (image.Image, error) {
	if w <= 0 || h <= 0 {
		return nil, apperrors.Newf(apperrors.RegionInvalid, "invalid resize target %dx%d", w, h)
	}
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return img, nil
	}
	return resize.Resize(uint(w), uint(h), img, resize.Bilinear), nil
}

// ToGray converts img to an 8-bit single-channel image anchored at (0,0),
// using the ITU-R 601 luma weights of color.GrayModel.
func ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) {
		return g
	}
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

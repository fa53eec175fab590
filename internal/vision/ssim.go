package vision

import (
	"image"

	apperrors "github.com/GriffinCanCode/hookwatch/internal/errors"
)

// SSIM parameters (Wang et al. 2004, uniform window as in scikit-image).
const (
	WindowSize = 7
	k1         = 0.01
	k2         = 0.03
	dataRange  = 255.0
)

// SSIM returns the mean structural similarity of two equally sized grayscale
// images, in [-1, 1]. Windows are 7x7, uniform, fully inside the image, with
// sample (n-1) covariance. Identical inputs score exactly 1.
func SSIM(a, b *image.Gray) (float64, error) {
	ab, bb := a.Bounds(), b.Bounds()
	if ab.Dx() != bb.Dx() || ab.Dy() != bb.Dy() {
		return 0, apperrors.Newf(apperrors.RegionInvalid, "size mismatch %dx%d vs %dx%d", ab.Dx(), ab.Dy(), bb.Dx(), bb.Dy())
	}
	w, h := ab.Dx(), ab.Dy()
	if w < WindowSize || h < WindowSize {
		return 0, apperrors.Newf(apperrors.RegionInvalid, "image %dx%d smaller than %dx%d window", w, h, WindowSize, WindowSize)
	}

	t := newTables(a, b)

	n := float64(WindowSize * WindowSize)
	covNorm := n / (n - 1)
	c1 := (k1 * dataRange) * (k1 * dataRange)
	c2 := (k2 * dataRange) * (k2 * dataRange)

	var total float64
	count := 0
	for y := 0; y+WindowSize <= h; y++ {
		for x := 0; x+WindowSize <= w; x++ {
			sa, sb, saa, sbb, sab := t.window(x, y)

			ux := float64(sa) / n
			uy := float64(sb) / n
			vx := covNorm * (float64(saa)/n - ux*ux)
			vy := covNorm * (float64(sbb)/n - uy*uy)
			vxy := covNorm * (float64(sab)/n - ux*uy)

			num := (2*ux*uy + c1) * (2*vxy + c2)
			den := (ux*ux + uy*uy + c1) * (vx + vy + c2)
			total += num / den
			count++
		}
	}
	return total / float64(count), nil
}

// tables holds summed-area tables of a, b, a², b² and ab. Sums are exact
// integers, so identical inputs produce identical window statistics.
type tables struct {
	stride           int
	a, b, aa, bb, ab []int64
}

func newTables(a, b *image.Gray) *tables {
	ab, bb := a.Bounds(), b.Bounds()
	w, h := ab.Dx(), ab.Dy()
	stride := w + 1
	size := stride * (h + 1)
	t := &tables{
		stride: stride,
		a:      make([]int64, size),
		b:      make([]int64, size),
		aa:     make([]int64, size),
		bb:     make([]int64, size),
		ab:     make([]int64, size),
	}

	for y := 0; y < h; y++ {
		var ra, rb, raa, rbb, rab int64
		for x := 0; x < w; x++ {
			pa := int64(a.GrayAt(ab.Min.X+x, ab.Min.Y+y).Y)
			pb := int64(b.GrayAt(bb.Min.X+x, bb.Min.Y+y).Y)
			ra += pa
			rb += pb
			raa += pa * pa
			rbb += pb * pb
			rab += pa * pb

			i := (y+1)*stride + x + 1
			up := y*stride + x + 1
			t.a[i] = t.a[up] + ra
			t.b[i] = t.b[up] + rb
			t.aa[i] = t.aa[up] + raa
			t.bb[i] = t.bb[up] + rbb
			t.ab[i] = t.ab[up] + rab
		}
	}
	return t
}

func (t *tables) window(x, y int) (sa, sb, saa, sbb, sab int64) {
	tl := y*t.stride + x
	tr := tl + WindowSize
	bl := (y+WindowSize)*t.stride + x
	br := bl + WindowSize
	sum := func(s []int64) int64 { return s[br] - s[tr] - s[bl] + s[tl] }
	return sum(t.a), sum(t.b), sum(t.aa), sum(t.bb), sum(t.ab)
}

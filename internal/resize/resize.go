// Package resize decides output dimensions for a transform request.
// Images are only ever scaled down; a request at or beyond the original
// resolution passes through as a pure format conversion.
package resize

import "math"

// Plan holds the outcome of a resize decision.
type Plan struct {
	Width  int
	Height int
	Resize bool
}

// Compute returns the output dimensions for an origWidth x origHeight
// source given the requested dimensions. reqWidth and reqHeight are zero
// when absent. Aspect ratio is always preserved; when both dimensions are
// requested the output fits within the requested box.
func Compute(origWidth, origHeight, reqWidth, reqHeight int) Plan {
	noResize := Plan{Width: origWidth, Height: origHeight}

	switch {
	case reqWidth > 0 && reqHeight > 0:
		widthRatio := float64(reqWidth) / float64(origWidth)
		heightRatio := float64(reqHeight) / float64(origHeight)
		if widthRatio >= 1 || heightRatio >= 1 {
			return noResize
		}
		if widthRatio >= heightRatio {
			return Plan{
				Width:  reqWidth,
				Height: roundRatio(reqWidth, origHeight, origWidth),
				Resize: true,
			}
		}
		return Plan{
			Width:  roundRatio(reqHeight, origWidth, origHeight),
			Height: reqHeight,
			Resize: true,
		}

	case reqWidth > 0:
		if reqWidth >= origWidth {
			return noResize
		}
		return Plan{
			Width:  reqWidth,
			Height: roundRatio(reqWidth, origHeight, origWidth),
			Resize: true,
		}

	case reqHeight > 0:
		if reqHeight >= origHeight {
			return noResize
		}
		return Plan{
			Width:  roundRatio(reqHeight, origWidth, origHeight),
			Height: reqHeight,
			Resize: true,
		}
	}

	return noResize
}

func roundRatio(n, num, den int) int {
	return int(math.Round(float64(n) * float64(num) / float64(den)))
}

package vocoder

import "math"

// HannWindow returns an n-point Hann window. In periodic mode the (n+1)-point
// window is evaluated and the last sample dropped, which is the variant needed
// for overlap-add synthesis: the taper reaches zero at the left edge only, so
// overlapping frames never double-count the boundary sample.
func HannWindow(n int, periodic bool) []float64 {
	if n <= 0 {
		return nil
	}
	w := make([]float64, n)
	denom := n - 1
	if periodic {
		denom = n
	}
	if denom == 0 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(denom)))
	}
	return w
}

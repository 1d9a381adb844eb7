package vocoder

import (
	"fmt"
	"math"
	"math/cmplx"
)

// magClipMax bounds the exponentiated log-magnitude so a runaway embedding
// value cannot blow up the reconstruction.
const magClipMax = 100.0

// ShapeError reports an embedding matrix whose dimensions cannot be
// interpreted as per-frame spectra.
type ShapeError struct {
	NCodes int
	NEmbd  int
	Len    int
	Reason string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("embedding shape %dx%d (flat length %d): %s", e.NCodes, e.NEmbd, e.Len, e.Reason)
}

// buildSpectra reshapes the flat embedding matrix into one one-sided complex
// spectrum per frame. The first half of each row holds log-magnitudes, the
// second half phases in radians. Each spectrum has half+1 bins; the final bin
// is left at zero, and any bins between half and the transform Nyquist stay
// implicitly zero too.
func buildSpectra(embd []float32, nCodes, nEmbd int) ([][]complex128, error) {
	if nCodes < 1 {
		return nil, &ShapeError{NCodes: nCodes, NEmbd: nEmbd, Len: len(embd), Reason: "need at least one frame"}
	}
	if nEmbd <= 0 || nEmbd%2 != 0 {
		return nil, &ShapeError{NCodes: nCodes, NEmbd: nEmbd, Len: len(embd), Reason: "embedding width must be a positive even number"}
	}
	if len(embd) != nCodes*nEmbd {
		return nil, &ShapeError{NCodes: nCodes, NEmbd: nEmbd, Len: len(embd), Reason: "flat length does not match n_codes * n_embd"}
	}

	half := nEmbd / 2
	spectra := make([][]complex128, nCodes)
	for l := 0; l < nCodes; l++ {
		row := embd[l*nEmbd : (l+1)*nEmbd]
		spec := make([]complex128, half+1)
		for k := 0; k < half; k++ {
			mag := math.Exp(float64(row[k]))
			if mag > magClipMax {
				mag = magClipMax
			}
			phi := float64(row[k+half])
			spec[k] = cmplx.Rect(mag, phi)
		}
		spectra[l] = spec
	}
	return spectra, nil
}

package vocoder

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// synthesizeFrame converts one one-sided spectrum into a windowed time-domain
// frame of length nFFT. The spectrum is treated as the non-negative-frequency
// half of a conjugate-symmetric full spectrum, so the inverse transform is
// real up to rounding; the imaginary residue is discarded.
func synthesizeFrame(spectrum []complex128, window []float64, nFFT int) []float64 {
	full := make([]complex128, nFFT)
	bins := len(spectrum)
	if bins > nFFT/2+1 {
		bins = nFFT/2 + 1
	}
	copy(full, spectrum[:bins])
	for k := 1; k < bins && k < nFFT-k; k++ {
		full[nFFT-k] = cmplx.Conj(spectrum[k])
	}

	td := fft.IFFT(full)
	frame := make([]float64, nFFT)
	for i := range frame {
		frame[i] = real(td[i]) * window[i]
	}
	return frame
}

package optimizer

import (
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// CPUSpectrum returns the magnitude of each non-negative frequency bin of
// the real FFT of values, so len(result) == len(values)/2+1. It is pure and
// returns nil for fewer than two values.
func CPUSpectrum(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	fft := fourier.NewFFT(len(values))
	coeffs := fft.Coefficients(nil, values)

	mags := make([]float64, len(coeffs))
	for i, c := range coeffs {
		mags[i] = cmplx.Abs(c)
	}
	return mags
}

// DominantBin returns the strongest non-DC bin and its magnitude. A spectrum
// with only the DC bin reports bin 0.
func DominantBin(spectrum []float64) (int, float64) {
	if len(spectrum) == 0 {
		return 0, 0
	}
	if len(spectrum) == 1 {
		return 0, spectrum[0]
	}
	best := 1
	for i := 2; i < len(spectrum); i++ {
		if spectrum[i] > spectrum[best] {
			best = i
		}
	}
	return best, spectrum[best]
}

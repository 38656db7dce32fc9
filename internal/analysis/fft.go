package analysis

import (
	"math"
	"math/cmplx"
)

// fft computes the discrete Fourier transform with a radix-2
// Cooley-Tukey recursion. Length must be a power of two; callers
// zero-pad before entry.
func fft(data []float64) []complex128 {
	n := len(data)
	if n <= 1 {
		result := make([]complex128, n)
		for i := range data {
			result[i] = complex(data[i], 0)
		}
		return result
	}
	if n%2 != 0 {
		panic("fft requires power of 2 length")
	}

	even := make([]float64, n/2)
	odd := make([]float64, n/2)
	for i := 0; i < n/2; i++ {
		even[i] = data[2*i]
		odd[i] = data[2*i+1]
	}

	feven := fft(even)
	fodd := fft(odd)

	result := make([]complex128, n)
	for k := 0; k < n/2; k++ {
		t := cmplx.Exp(complex(0, -2*math.Pi*float64(k)/float64(n))) * fodd[k]
		result[k] = feven[k] + t
		result[k+n/2] = feven[k] - t
	}
	return result
}

// DominantFrequency estimates the strongest oscillation frequency (Hz)
// in a uniformly sampled signal. The signal is mean-removed, Hann
// windowed, and zero-padded to a power of two; the DC bin is excluded.
func DominantFrequency(signal []float64, dt float64) float64 {
	if len(signal) < 4 || dt <= 0 {
		return 0
	}

	mean := 0.0
	for _, v := range signal {
		mean += v
	}
	mean /= float64(len(signal))

	n := 1
	for n < len(signal) {
		n *= 2
	}
	padded := make([]float64, n)
	for i, v := range signal {
		w := 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(len(signal)-1)))
		padded[i] = (v - mean) * w
	}

	spectrum := fft(padded)
	bestBin := 0
	bestMag := 0.0
	for k := 1; k <= n/2; k++ {
		mag := cmplx.Abs(spectrum[k])
		if mag > bestMag {
			bestMag = mag
			bestBin = k
		}
	}
	return float64(bestBin) / (float64(n) * dt)
}

package turns

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	fftSize    = 2048
	fftHop     = 512
	numMels    = 40
	logEpsilon = 1e-10
)

// mfcc computes mel-frequency cepstral coefficients. A single instance is not
// safe for concurrent use.
type mfcc struct {
	numCoeffs int
	fft       *fourier.FFT
	window    []float64
	filters   [][]float64
	dct       [][]float64

	frame  []float64
	coeffs []complex128
	mels   []float64
}

func newMFCC(sampleRate, numCoeffs int) *mfcc {
	m := &mfcc{
		numCoeffs: numCoeffs,
		fft:       fourier.NewFFT(fftSize),
		window:    hann(fftSize),
		filters:   melFilters(sampleRate, fftSize, numMels),
		dct:       dctMatrix(numCoeffs, numMels),
		frame:     make([]float64, fftSize),
		coeffs:    make([]complex128, fftSize/2+1),
		mels:      make([]float64, numMels),
	}
	return m
}

// compute returns the MFCC vector of samples, averaged over fftSize windows
// taken every fftHop samples. Short inputs are zero padded.
func (m *mfcc) compute(samples []float32) []float64 {
	out := make([]float64, m.numCoeffs)

	var n int
	for start := 0; n == 0 || start < len(samples); start += fftHop {
		for i := range m.frame {
			m.frame[i] = 0
			if start+i < len(samples) {
				m.frame[i] = float64(samples[start+i]) * m.window[i]
			}
		}

		m.coeffs = m.fft.Coefficients(m.coeffs, m.frame)

		for b, filter := range m.filters {
			var energy float64
			for k, w := range filter {
				if w == 0 {
					continue
				}
				c := m.coeffs[k]
				energy += w * (real(c)*real(c) + imag(c)*imag(c))
			}
			m.mels[b] = math.Log(energy + logEpsilon)
		}

		for k, row := range m.dct {
			var sum float64
			for b, v := range row {
				sum += v * m.mels[b]
			}
			out[k] += sum
		}
		n++
	}

	for k := range out {
		out[k] /= float64(n)
	}

	return out
}

func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

func hzToMel(hz float64) float64 {
	return 2595 * math.Log10(1+hz/700)
}

func melToHz(mel float64) float64 {
	return 700 * (math.Pow(10, mel/2595) - 1)
}

// melFilters builds triangular filters evenly spaced on the mel scale between
// 0Hz and the Nyquist frequency, one row per band over the FFT bins.
func melFilters(sampleRate, size, bands int) [][]float64 {
	bins := size/2 + 1
	maxMel := hzToMel(float64(sampleRate) / 2)

	edges := make([]float64, bands+2)
	for i := range edges {
		edges[i] = melToHz(maxMel * float64(i) / float64(bands+1))
	}

	filters := make([][]float64, bands)
	for b := range filters {
		lower, center, upper := edges[b], edges[b+1], edges[b+2]
		filters[b] = make([]float64, bins)
		for k := range filters[b] {
			f := float64(k) * float64(sampleRate) / float64(size)
			w := math.Min((f-lower)/(center-lower), (upper-f)/(upper-center))
			filters[b][k] = math.Max(0, w)
		}
	}

	return filters
}

// dctMatrix returns the first rows of an orthonormal DCT-II of size n.
func dctMatrix(rows, n int) [][]float64 {
	m := make([][]float64, rows)
	for k := range m {
		scale := math.Sqrt(2 / float64(n))
		if k == 0 {
			scale = math.Sqrt(1 / float64(n))
		}
		m[k] = make([]float64, n)
		for i := range m[k] {
			m[k][i] = scale * math.Cos(math.Pi*float64(k)*(2*float64(i)+1)/(2*float64(n)))
		}
	}
	return m
}

package capture

import (
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	fftSize      = 256
	binCount     = fftSize / 2
	smoothing    = 0.8
	minDecibels  = -100.0
	maxDecibels  = -30.0
	byteScaleMax = 255.0

	// DefaultThreshold is the mean byte-scaled magnitude above which the
	// tab counts as audible. Tuned empirically; not adaptive.
	DefaultThreshold = 10.0
)

// Analyzer meters short-time spectral energy over a rolling window of the
// most recent samples. It mirrors a fixed-resolution frequency analysis
// with per-bin temporal smoothing: each reading folds 20% of the new
// magnitude into the running value.
type Analyzer struct {
	threshold float64

	mu       sync.Mutex
	fft      *fourier.FFT
	ring     [fftSize]float64
	pos      int
	count    int
	smoothed [binCount]float64
	window   [fftSize]float64
	scratch  [fftSize]float64
}

func NewAnalyzer(threshold float64) *Analyzer {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	a := &Analyzer{
		threshold: threshold,
		fft:       fourier.NewFFT(fftSize),
	}
	// Hann window
	for i := range a.window {
		a.window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(fftSize-1)))
	}
	return a
}

// Write appends little-endian 16-bit mono PCM to the rolling window.
func (a *Analyzer) Write(pcm []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8)
		a.ring[a.pos] = float64(s) / 32768.0
		a.pos = (a.pos + 1) % fftSize
		if a.count < fftSize {
			a.count++
		}
	}
}

// Level computes one analysis tick: the mean byte-scaled magnitude across
// all frequency bins, the thresholded activity flag, and the normalized
// level in [0,1].
func (a *Analyzer) Level() (hasAudio bool, level float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.count < fftSize {
		return false, 0
	}

	// Unroll the ring into time order and window it.
	for i := 0; i < fftSize; i++ {
		a.scratch[i] = a.ring[(a.pos+i)%fftSize] * a.window[i]
	}

	coeffs := a.fft.Coefficients(nil, a.scratch[:])

	var sum float64
	for k := 0; k < binCount; k++ {
		mag := cmplx.Abs(coeffs[k]) / fftSize
		a.smoothed[k] = smoothing*a.smoothed[k] + (1-smoothing)*mag
		sum += byteMagnitude(a.smoothed[k])
	}
	mean := sum / binCount

	level = mean / byteScaleMax
	if level > 1 {
		level = 1
	}
	return mean > a.threshold, level
}

// byteMagnitude maps a linear magnitude onto the 0..255 scale through the
// usual decibel range clamp.
func byteMagnitude(mag float64) float64 {
	if mag <= 0 {
		return 0
	}
	db := 20 * math.Log10(mag)
	v := byteScaleMax * (db - minDecibels) / (maxDecibels - minDecibels)
	if v < 0 {
		return 0
	}
	if v > byteScaleMax {
		return byteScaleMax
	}
	return v
}

// Reset clears the rolling window and the smoothed spectrum.
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ring = [fftSize]float64{}
	a.smoothed = [binCount]float64{}
	a.pos = 0
	a.count = 0
}

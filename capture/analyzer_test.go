package capture

import (
	"encoding/binary"
	"math/rand"
	"testing"
)

func genNoise(amplitude float64, samples int) []byte {
	rng := rand.New(rand.NewSource(42))
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		s := int16(amplitude * 32767 * (rng.Float64()*2 - 1))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func genSilence(samples int) []byte {
	return make([]byte, samples*2)
}

func TestAnalyzerSilence(t *testing.T) {
	a := NewAnalyzer(0)
	a.Write(genSilence(fftSize * 2))
	hasAudio, level := a.Level()
	if hasAudio {
		t.Error("silence should not register as audio")
	}
	if level != 0 {
		t.Errorf("level = %v, want 0", level)
	}
}

func TestAnalyzerNoise(t *testing.T) {
	a := NewAnalyzer(0)
	a.Write(genNoise(0.5, fftSize*2))

	// Let smoothing converge over a few ticks.
	var hasAudio bool
	var level float64
	for i := 0; i < 10; i++ {
		hasAudio, level = a.Level()
	}
	if !hasAudio {
		t.Error("loud noise should register as audio")
	}
	if level <= 0.05 || level > 1 {
		t.Errorf("level = %v, want within (0.05, 1]", level)
	}
}

func TestAnalyzerLevelClamped(t *testing.T) {
	a := NewAnalyzer(0)
	a.Write(genNoise(1.0, fftSize*4))
	for i := 0; i < 20; i++ {
		if _, level := a.Level(); level > 1 {
			t.Fatalf("level = %v, exceeds 1", level)
		}
	}
}

func TestAnalyzerInsufficientData(t *testing.T) {
	a := NewAnalyzer(0)
	a.Write(genNoise(0.5, fftSize/2))
	if hasAudio, level := a.Level(); hasAudio || level != 0 {
		t.Errorf("partial window should yield no signal, got %v %v", hasAudio, level)
	}
}

func TestAnalyzerSmoothingDecays(t *testing.T) {
	a := NewAnalyzer(0)
	a.Write(genNoise(0.5, fftSize*2))
	for i := 0; i < 10; i++ {
		a.Level()
	}
	_, loud := a.Level()

	// Feed silence; the smoothed spectrum should decay, not vanish at once.
	a.Write(genSilence(fftSize * 2))
	_, first := a.Level()
	if first >= loud {
		t.Errorf("level should fall after silence: %v -> %v", loud, first)
	}
	var last float64
	for i := 0; i < 50; i++ {
		_, last = a.Level()
	}
	if last >= first {
		t.Errorf("level should keep decaying: %v -> %v", first, last)
	}
}

func TestAnalyzerThreshold(t *testing.T) {
	quiet := NewAnalyzer(254.0) // absurdly high bar
	quiet.Write(genNoise(0.5, fftSize*2))
	for i := 0; i < 10; i++ {
		if hasAudio, _ := quiet.Level(); hasAudio {
			t.Fatal("threshold 254 should never trip on noise")
		}
	}
}

func TestAnalyzerReset(t *testing.T) {
	a := NewAnalyzer(0)
	a.Write(genNoise(0.5, fftSize*2))
	for i := 0; i < 5; i++ {
		a.Level()
	}
	a.Reset()
	if hasAudio, level := a.Level(); hasAudio || level != 0 {
		t.Errorf("reset analyzer should be silent, got %v %v", hasAudio, level)
	}
}

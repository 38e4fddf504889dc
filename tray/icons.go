package tray

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
)

var (
	iconInactive    []byte
	iconInactiveHi  []byte
	iconListeningHi []byte
	iconSpeakingHi  []byte
)

func init() {
	transparent := color.RGBA{A: 0}
	blue := color.RGBA{R: 33, G: 150, B: 243, A: 255}
	green := color.RGBA{R: 76, G: 175, B: 80, A: 255}
	dotR := 44.0 / 6.5
	iconInactive = renderIcon(22, &transparent, 22.0/8)
	iconInactiveHi = renderIcon(44, &transparent, 44.0/8)
	iconListeningHi = renderIcon(44, &blue, dotR)
	iconSpeakingHi = renderIcon(44, &green, dotR)
}

func encodePNG(img image.Image) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic("encodePNG: " + err.Error())
	}
	return buf.Bytes()
}

func drawCircleIcon(img *image.RGBA, size int, dot *color.RGBA, dotR float64) {
	cx, cy := float64(size)/2, float64(size)/2
	r := float64(size)/2 - 1
	for y := range size {
		for x := range size {
			d := math.Hypot(float64(x)+0.5-cx, float64(y)+0.5-cy)
			if dot != nil && d <= dotR {
				img.Set(x, y, dot)
			} else if d <= r {
				img.Set(x, y, color.Black)
			}
		}
	}
}

func renderIcon(size int, dot *color.RGBA, dotR float64) []byte {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	drawCircleIcon(img, size, dot, dotR)
	return encodePNG(img)
}

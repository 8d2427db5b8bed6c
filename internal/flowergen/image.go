package flowergen

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"

	"gardensim.ai/internal/sim/genetics"
)

const spriteSize = 16

// Image renders the flower sprite for a genome: petal hue and sheen from
// the effect genes, petal count from fragrance, a darker center for males.
// Purely a function of its arguments.
func (l *Local) Image(g genetics.Genome, sex string) []byte {
	img := image.NewRGBA(image.Rect(0, 0, spriteSize, spriteSize))

	petal := color.RGBA{
		R: uint8(60 + 195*clamp01(g[genetics.GeneHue])),
		G: uint8(40 + 160*clamp01(g[genetics.GeneNectar])),
		B: uint8(60 + 195*clamp01(g[genetics.GeneSheen])),
		A: 255,
	}
	center := color.RGBA{R: 220, G: 180, B: 40, A: 255}
	if sex == "M" {
		center = color.RGBA{R: 110, G: 80, B: 30, A: 255}
	}

	petals := 4 + int(clamp01(g[genetics.GeneFragrance])*4)
	cx, cy := float64(spriteSize)/2, float64(spriteSize)/2
	for i := 0; i < petals; i++ {
		ang := 2 * math.Pi * float64(i) / float64(petals)
		px := cx + 4.5*math.Cos(ang)
		py := cy + 4.5*math.Sin(ang)
		fillCircle(img, px, py, 2.6, petal)
	}
	fillCircle(img, cx, cy, 2.2, center)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}

func fillCircle(img *image.RGBA, cx, cy, r float64, c color.RGBA) {
	for y := 0; y < spriteSize; y++ {
		for x := 0; x < spriteSize; x++ {
			dx, dy := float64(x)+0.5-cx, float64(y)+0.5-cy
			if dx*dx+dy*dy <= r*r {
				img.SetRGBA(x, y, c)
			}
		}
	}
}

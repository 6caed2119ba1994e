package render

import (
	"image"
	"image/color"
	"image/draw"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	placeholderText = "Select a product to begin"
	placeholderSize = 20
)

var placeholderColor = color.RGBA{R: 0x66, G: 0x66, B: 0x66, A: 0xff}

var placeholderFace = sync.OnceValue(func() font.Face {
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    placeholderSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		panic(err)
	}
	return face
})

// drawPlaceholder writes text centered on dst.
func drawPlaceholder(dst draw.Image, text string) {
	face := placeholderFace()
	b := dst.Bounds()

	width := font.MeasureString(face, text)
	m := face.Metrics()
	textHeight := m.Ascent + m.Descent

	x := fixed.I(b.Min.X+b.Dx()/2) - width/2
	y := fixed.I(b.Min.Y+b.Dy()/2) - textHeight/2 + m.Ascent

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(placeholderColor),
		Face: face,
		Dot:  fixed.Point26_6{X: x, Y: y},
	}
	d.DrawString(text)
}

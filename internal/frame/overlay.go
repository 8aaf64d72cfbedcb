package frame

import (
	"image"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// DrawText burns text into the buffer with its top-left corner at (x, y).
// Glyph pixels are set to the maximum sample value on every band; the
// text box background is cleared to zero.
func (b *Buffer) DrawText(x, y int, text string) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	height := face.Metrics().Height.Ceil()
	if width == 0 {
		return
	}

	mask := image.NewAlpha(image.Rect(0, 0, width, height))
	d := &font.Drawer{
		Dst:  mask,
		Src:  image.Opaque,
		Face: face,
		Dot:  fixed.P(0, face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)

	for my := 0; my < height; my++ {
		py := y + my
		if py < 0 || py >= b.Height {
			continue
		}
		for mx := 0; mx < width; mx++ {
			px := x + mx
			if px < 0 || px >= b.Width {
				continue
			}
			if mask.AlphaAt(mx, my).A > 0x7F {
				b.setMax(px, py)
			} else {
				b.setGray8(px, py, 0)
			}
		}
	}
}

// Overlay draws text onto an arbitrary image, used when rendering the
// display into a JPEG.
func Overlay(dst draw.Image, x, y int, text string) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.White,
		Face: face,
		Dot:  fixed.P(x, y+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)
}

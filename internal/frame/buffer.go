// Package frame holds image buffers shared by the grab path and the display.
package frame

import (
	"fmt"
	"image"
)

// Format describes the pixel layout of a buffer.
type Format struct {
	Width    int
	Height   int
	Bands    int
	BitDepth int
}

// BytesPerSample is 1 for depths up to 8 bits and 2 above.
func (f Format) BytesPerSample() int {
	if f.BitDepth > 8 {
		return 2
	}
	return 1
}

// Size is the number of bytes a buffer of this format holds.
func (f Format) Size() int {
	return f.Width * f.Height * f.Bands * f.BytesPerSample()
}

// Valid reports whether the format describes a non-empty image.
func (f Format) Valid() bool {
	return f.Width > 0 && f.Height > 0 && f.Bands > 0 && f.BitDepth > 0 && f.BitDepth <= 16
}

func (f Format) String() string {
	return fmt.Sprintf("%dx%d %d band(s) %d bit", f.Width, f.Height, f.Bands, f.BitDepth)
}

// Buffer is an interleaved image. Samples wider than 8 bits are stored
// little-endian.
type Buffer struct {
	Format
	Pix []byte

	// Index is the position of the buffer in its grab list.
	Index int
}

// New allocates a zeroed buffer.
func New(f Format) (*Buffer, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("invalid buffer format %s", f)
	}
	return &Buffer{Format: f, Pix: make([]byte, f.Size())}, nil
}

// Clear sets every byte of the buffer to v.
func (b *Buffer) Clear(v byte) {
	for i := range b.Pix {
		b.Pix[i] = v
	}
}

func (b *Buffer) maxSample() uint16 {
	return uint16(1)<<b.BitDepth - 1
}

// gray8 returns the 8-bit luminance of pixel (x, y), taken from band 0.
func (b *Buffer) gray8(x, y int) uint8 {
	bps := b.BytesPerSample()
	off := (y*b.Width + x) * b.Bands * bps
	if bps == 1 {
		return b.Pix[off]
	}
	v := uint16(b.Pix[off]) | uint16(b.Pix[off+1])<<8
	return uint8(v >> (b.BitDepth - 8))
}

func (b *Buffer) setGray8(x, y int, v uint8) {
	bps := b.BytesPerSample()
	off := (y*b.Width + x) * b.Bands * bps
	for band := 0; band < b.Bands; band++ {
		if bps == 1 {
			b.Pix[off+band] = v
			continue
		}
		s := uint16(v) << (b.BitDepth - 8)
		b.Pix[off+2*band] = byte(s)
		b.Pix[off+2*band+1] = byte(s >> 8)
	}
}

func (b *Buffer) setMax(x, y int) {
	bps := b.BytesPerSample()
	off := (y*b.Width + x) * b.Bands * bps
	m := b.maxSample()
	for band := 0; band < b.Bands; band++ {
		if bps == 1 {
			b.Pix[off+band] = byte(m)
			continue
		}
		b.Pix[off+2*band] = byte(m)
		b.Pix[off+2*band+1] = byte(m >> 8)
	}
}

// CopyFrom copies src into b. Buffers of the same format are copied
// verbatim; otherwise the overlapping region is converted through 8-bit
// luminance.
func (b *Buffer) CopyFrom(src *Buffer) {
	if b.Format == src.Format {
		copy(b.Pix, src.Pix)
		return
	}
	w := min(b.Width, src.Width)
	h := min(b.Height, src.Height)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			b.setGray8(x, y, src.gray8(x, y))
		}
	}
}

// Gray returns an 8-bit grayscale snapshot of the buffer.
func (b *Buffer) Gray() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, b.Width, b.Height))
	if b.Bands == 1 && b.BytesPerSample() == 1 {
		copy(img.Pix, b.Pix)
		return img
	}
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			img.Pix[y*img.Stride+x] = b.gray8(x, y)
		}
	}
	return img
}

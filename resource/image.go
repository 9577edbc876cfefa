package resource

import (
	"image"

	"golang.org/x/image/draw"

	"github.com/gogpu/gputypes"
)

// TextureFromImage builds a TextureDesc from an arbitrary image.Image,
// converting the pixels to tightly packed RGBA8. Images already backed
// by *image.RGBA with a zero-origin bounds and tight stride are copied
// without conversion.
func TextureFromImage(label string, img image.Image) TextureDesc {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	rgba := asTightRGBA(img)
	if rgba == nil {
		rgba = image.NewRGBA(image.Rect(0, 0, w, h))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}

	return TextureDesc{
		Label:  label,
		Width:  uint32(w),
		Height: uint32(h),
		Format: gputypes.TextureFormatRGBA8Unorm,
		Pixels: rgba.Pix,
	}
}

// TextureUpdateFromImage builds a TextureUpdate writing img into the
// region anchored at (x, y).
func TextureUpdateFromImage(x, y int, img image.Image) TextureUpdate {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	rgba := asTightRGBA(img)
	if rgba == nil {
		rgba = image.NewRGBA(image.Rect(0, 0, w, h))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}

	return TextureUpdate{
		Region: image.Rect(x, y, x+w, y+h),
		Pixels: rgba.Pix,
	}
}

// asTightRGBA returns img's backing pixels when they are already in the
// layout uploads expect, avoiding a copy on the common path.
func asTightRGBA(img image.Image) *image.RGBA {
	rgba, ok := img.(*image.RGBA)
	if !ok {
		return nil
	}
	b := rgba.Bounds()
	if b.Min != (image.Point{}) || rgba.Stride != 4*b.Dx() {
		return nil
	}
	return rgba
}

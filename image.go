package kawase

import (
	"image"
	"image/draw"
)

// copyPitchAlignment is the buffer row alignment WebGPU (and DX12)
// require for texture-to-buffer copies.
const copyPitchAlignment = 256

// alignBytesPerRow rounds a tight row size up to the copy pitch.
func alignBytesPerRow(bytesPerRow uint32) uint32 {
	return (bytesPerRow + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
}

// imageToBGRA converts any image.Image to tightly packed 8-bit BGRA
// bytes, the layout the pyramid textures use.
func imageToBGRA(img image.Image) []byte {
	b := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || b.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}

	w, h := b.Dx(), b.Dy()
	out := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		src := rgba.Pix[y*rgba.Stride : y*rgba.Stride+w*4]
		dst := out[y*w*4:]
		for x := 0; x < w*4; x += 4 {
			dst[x+0] = src[x+2]
			dst[x+1] = src[x+1]
			dst[x+2] = src[x+0]
			dst[x+3] = src[x+3]
		}
	}
	return out
}

// bgraToRGBAImage converts a GPU readback (BGRA rows padded to
// alignedBytesPerRow) into a tightly packed *image.RGBA.
func bgraToRGBAImage(readback []byte, w, h, alignedBytesPerRow uint32) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, int(w), int(h)))
	bytesPerRow := w * 4
	for y := uint32(0); y < h; y++ {
		src := readback[y*alignedBytesPerRow : y*alignedBytesPerRow+bytesPerRow]
		dst := out.Pix[int(y)*out.Stride : int(y)*out.Stride+int(bytesPerRow)]
		for x := uint32(0); x < bytesPerRow; x += 4 {
			dst[x+0] = src[x+2]
			dst[x+1] = src[x+1]
			dst[x+2] = src[x+0]
			dst[x+3] = src[x+3]
		}
	}
	return out
}

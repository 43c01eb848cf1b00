package kawase

import (
	"errors"
	"image"

	xdraw "golang.org/x/image/draw"
)

// FrameSource supplies frames for the streaming path. It is the
// content-capture collaborator: something that rasterizes the current
// visual content into a CPU-writable buffer compatible with the
// capture-buffer pool.
//
// CaptureFrame is called once per tick from the goroutine driving
// RenderFrame, never concurrently with itself.
type FrameSource interface {
	// SourceSize returns the resolved source dimensions in pixels.
	// A change of size triggers a pool and pyramid rebuild on the
	// next tick.
	SourceSize() (width, height int)

	// CaptureFrame rasterizes the current frame into dst as tightly
	// packed 8-bit BGRA, len(dst) = width*height*4 for the current
	// SourceSize.
	CaptureFrame(dst []byte) error
}

// errNilFrame is returned by ImageSource when its callback yields nil.
var errNilFrame = errors.New("kawase: image source returned nil frame")

// ImageSource adapts a frame callback producing image.Image values into
// a FrameSource. Frames whose size differs from the source size are
// scaled with a bilinear kernel.
type ImageSource struct {
	width  int
	height int
	next   func() image.Image

	scratch *image.RGBA
}

// NewImageSource creates an ImageSource with fixed output dimensions.
// next is invoked once per captured frame.
func NewImageSource(width, height int, next func() image.Image) *ImageSource {
	return &ImageSource{width: width, height: height, next: next}
}

// SourceSize implements FrameSource.
func (s *ImageSource) SourceSize() (int, int) { return s.width, s.height }

// CaptureFrame implements FrameSource.
func (s *ImageSource) CaptureFrame(dst []byte) error {
	img := s.next()
	if img == nil {
		return errNilFrame
	}

	if s.scratch == nil ||
		s.scratch.Rect.Dx() != s.width || s.scratch.Rect.Dy() != s.height {
		s.scratch = image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	}

	b := img.Bounds()
	if b.Dx() == s.width && b.Dy() == s.height {
		xdraw.Draw(s.scratch, s.scratch.Rect, img, b.Min, xdraw.Src)
	} else {
		xdraw.BiLinear.Scale(s.scratch, s.scratch.Rect, img, b, xdraw.Src, nil)
	}

	// RGBA scratch to the pool's BGRA layout.
	rowBytes := s.width * 4
	for y := 0; y < s.height; y++ {
		src := s.scratch.Pix[y*s.scratch.Stride : y*s.scratch.Stride+rowBytes]
		out := dst[y*rowBytes:]
		for x := 0; x < rowBytes; x += 4 {
			out[x+0] = src[x+2]
			out[x+1] = src[x+1]
			out[x+2] = src[x+0]
			out[x+3] = src[x+3]
		}
	}
	return nil
}

package kawase

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// pyramidLevel is one render target in the ladder. Owned exclusively by
// texturePyramid.
type pyramidLevel struct {
	tex    hal.Texture
	view   hal.TextureView
	width  uint32
	height uint32
}

// texturePyramid owns the ladder of iterations+1 render targets used as
// intermediate storage between blur passes. Level i has dimensions
// floor(baseW/2^i) x floor(baseH/2^i). Level 0 is both the final
// upsample target and the result read back by the blocking path.
//
// The ladder is rebuilt only when (base size, iterations) changes from
// the last successful build. A rebuild allocates the complete new
// ladder in a scratch slice first and swaps it in only on full
// success, so a failed resize leaves the previous pyramid intact and
// usable.
type texturePyramid struct {
	levels     []pyramidLevel
	baseWidth  uint32
	baseHeight uint32
	iterations int
}

// matches reports whether the pyramid was last built for exactly these
// parameters. Value comparison, not identity.
func (p *texturePyramid) matches(w, h uint32, iterations int) bool {
	return len(p.levels) > 0 &&
		p.baseWidth == w && p.baseHeight == h && p.iterations == iterations
}

// level returns the i-th ladder entry. Callers index within
// [0, iterations].
func (p *texturePyramid) level(i int) *pyramidLevel {
	return &p.levels[i]
}

// create builds the ladder for the given base size and iteration count.
// No-op when the current ladder already matches. All failures wrap
// ErrResourceAllocation and leave any previous ladder untouched.
func (p *texturePyramid) create(device hal.Device, w, h uint32, iterations int) error {
	if p.matches(w, h, iterations) {
		return nil
	}
	if w == 0 || h == 0 {
		return fmt.Errorf("%w: pyramid base size %dx%d", ErrResourceAllocation, w, h)
	}

	scratch := make([]pyramidLevel, 0, iterations+1)
	for i := 0; i <= iterations; i++ {
		lw := w >> uint(i)
		lh := h >> uint(i)
		if lw == 0 || lh == 0 {
			destroyLevels(device, scratch)
			return fmt.Errorf("%w: pyramid level %d is %dx%d (base %dx%d, %d iterations)",
				ErrResourceAllocation, i, lw, lh, w, h, iterations)
		}

		lvl, err := createLevel(device, i, lw, lh)
		if err != nil {
			destroyLevels(device, scratch)
			return err
		}
		scratch = append(scratch, lvl)
	}

	// Full ladder built; publish it and release the old one.
	old := p.levels
	p.levels = scratch
	p.baseWidth = w
	p.baseHeight = h
	p.iterations = iterations
	destroyLevels(device, old)

	Logger().Info("kawase: pyramid rebuilt",
		"base_width", w, "base_height", h, "levels", iterations+1)
	return nil
}

// clear releases all levels. The next use must call create again.
func (p *texturePyramid) clear(device hal.Device) {
	destroyLevels(device, p.levels)
	p.levels = nil
	p.baseWidth = 0
	p.baseHeight = 0
	p.iterations = 0
}

// createLevel allocates one render target. Every level is sampled by
// the next pass and rendered into by the previous one; level 0 is also
// copied out for CPU readback.
func createLevel(device hal.Device, index int, w, h uint32) (pyramidLevel, error) {
	usage := gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding
	if index == 0 {
		usage |= gputypes.TextureUsageCopySrc
	}

	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         fmt.Sprintf("kawase_level_%d", index),
		Size:          hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        intermediateFormat,
		Usage:         usage,
	})
	if err != nil {
		return pyramidLevel{}, fmt.Errorf("%w: create level %d texture (%dx%d): %w",
			ErrResourceAllocation, index, w, h, err)
	}

	view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label: fmt.Sprintf("kawase_level_%d_view", index),
	})
	if err != nil {
		device.DestroyTexture(tex)
		return pyramidLevel{}, fmt.Errorf("%w: create level %d view: %w",
			ErrResourceAllocation, index, err)
	}

	return pyramidLevel{tex: tex, view: view, width: w, height: h}, nil
}

// destroyLevels releases a ladder in reverse creation order.
func destroyLevels(device hal.Device, levels []pyramidLevel) {
	for i := len(levels) - 1; i >= 0; i-- {
		if levels[i].view != nil {
			device.DestroyTextureView(levels[i].view)
		}
		if levels[i].tex != nil {
			device.DestroyTexture(levels[i].tex)
		}
	}
}

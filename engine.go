package kawase

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Engine is a Dual Kawase blur engine bound to one device and queue.
// It owns the texture pyramid, the pipeline cache, the shared quad,
// and the streaming-path scheduler; all of them are allocated lazily
// and reused across invocations.
//
// One goroutine drives the engine at a time: the blocking path is a
// single call, the streaming path an externally triggered tick.
// ClearCache and Destroy may be called from any goroutine; internal
// state is guarded accordingly.
type Engine struct {
	device hal.Device
	queue  hal.Queue
	opts   engineOptions

	mu      sync.Mutex
	cache   *pipelineCache
	pyramid texturePyramid
	quad    fullscreenQuad
	sched   *frameScheduler

	// Streaming state. dirty gates the pyramid/pool rebuild so a
	// stable source pays only for pass encoding per tick.
	source       FrameSource
	sourceParams Params
	dirty        bool

	destroyed bool
}

// New creates an engine for the given device and queue.
func New(device hal.Device, queue hal.Queue, opts ...Option) (*Engine, error) {
	if device == nil || queue == nil {
		return nil, fmt.Errorf("%w: %w", ErrInitialization, ErrNilDevice)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &Engine{
		device: device,
		queue:  queue,
		opts:   o,
		cache:  newPipelineCache(device, o.spirvShaders),
		sched:  newFrameScheduler(device, queue, o.maxInFlight),
	}, nil
}

// BlurImage applies the blur to a single image: upload, 2k passes, one
// submission, fence wait, readback. The result has the same dimensions
// as the input. Blocking; call it off any latency-sensitive goroutine.
func (e *Engine) BlurImage(img image.Image, params Params) (*image.RGBA, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return nil, ErrEngineDestroyed
	}

	b := img.Bounds()
	w, h := uint32(b.Dx()), uint32(b.Dy())

	if err := e.quad.ensure(e.device, e.queue); err != nil {
		return nil, err
	}
	if !e.pyramid.matches(w, h, params.Iterations) {
		// Streaming frames still on the GPU sample the old levels;
		// wait them out before the rebuild frees those textures.
		e.sched.drain()
	}
	if err := e.pyramid.create(e.device, w, h, params.Iterations); err != nil {
		return nil, err
	}

	srcTex, srcView, err := e.uploadSource(img, w, h)
	if err != nil {
		return nil, err
	}
	defer func() {
		e.device.DestroyTextureView(srcView)
		e.device.DestroyTexture(srcTex)
	}()

	return e.encodeSubmitReadback(srcView, w, h, params)
}

// AttachLiveSource binds a frame source and parameters for the
// streaming path. Passing nil detaches. Parameters are validated here,
// before any tick runs.
func (e *Engine) AttachLiveSource(src FrameSource, params Params) error {
	if src != nil {
		if err := params.Validate(); err != nil {
			return err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return ErrEngineDestroyed
	}

	e.source = src
	e.sourceParams = params
	e.dirty = true
	return nil
}

// RenderFrame runs one streaming tick: capture a frame from the
// attached source into a pooled buffer, encode the blur plus a
// presentation copy into target (skipped when target is nil), and
// submit without waiting for the GPU.
//
// The tick blocks on the frame gate while the maximum number of frames
// is in flight. Allocation and submission failures drop the tick and
// return nil; the next tick retries. Initialization failures surface.
func (e *Engine) RenderFrame(target hal.TextureView, targetWidth, targetHeight uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return ErrEngineDestroyed
	}
	if e.source == nil {
		return ErrNoSource
	}

	sw, sh := e.source.SourceSize()
	w, h := uint32(sw), uint32(sh)
	if !e.pyramid.matches(w, h, e.sourceParams.Iterations) {
		e.dirty = true
	}

	if err := e.quad.ensure(e.device, e.queue); err != nil {
		return e.absorbTick("quad", err)
	}
	if e.dirty {
		// ensurePool only drains when the source size changed; an
		// iteration-only change still frees the old pyramid levels,
		// so wait out in-flight frames here in every rebuild case.
		e.sched.drain()
		if err := e.pyramid.create(e.device, w, h, e.sourceParams.Iterations); err != nil {
			return e.absorbTick("pyramid rebuild", err)
		}
		if err := e.sched.ensurePool(w, h); err != nil {
			return e.absorbTick("pool rebuild", err)
		}
		e.dirty = false
	}

	e.sched.acquire()
	slot := e.sched.nextSlot()

	if err := e.source.CaptureFrame(slot.pixels); err != nil {
		e.sched.release()
		return e.absorbTick("capture", err)
	}
	e.sched.upload(slot)

	if err := e.encodeSubmitAsync(slot, target, targetWidth, targetHeight); err != nil {
		e.sched.release()
		return e.absorbTick("submit", err)
	}
	return nil
}

// ClearCache releases the pyramid, the pipeline cache, and the capture
// pool. Safe at any time; the next operation reallocates lazily and
// reproduces the same output.
func (e *Engine) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return
	}
	e.clearLocked()
}

// InFlightFrames reports how many streaming frames are currently
// submitted but not yet completed by the GPU.
func (e *Engine) InFlightFrames() int {
	return e.sched.inFlight()
}

// Destroy releases all engine resources. In-flight GPU work is not
// canceled; it completes harmlessly against resources the waiters
// still reference. Idempotent.
func (e *Engine) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return
	}
	e.clearLocked()
	e.quad.destroy(e.device)
	e.source = nil
	e.destroyed = true
}

func (e *Engine) clearLocked() {
	e.sched.clear()
	e.pyramid.clear(e.device)
	e.cache.clear()
	e.dirty = true
}

// absorbTick implements the streaming failure policy: initialization
// and parameter failures surface, everything else drops the tick and
// self-heals next tick.
func (e *Engine) absorbTick(stage string, err error) error {
	if errors.Is(err, ErrInitialization) || errors.Is(err, ErrParameter) {
		return err
	}
	Logger().Warn("kawase: tick dropped", "stage", stage, "error", err)
	return nil
}

// uploadSource creates a sampled texture holding the image's pixels.
func (e *Engine) uploadSource(img image.Image, w, h uint32) (hal.Texture, hal.TextureView, error) {
	tex, err := e.device.CreateTexture(&hal.TextureDescriptor{
		Label:         "kawase_source",
		Size:          hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        intermediateFormat,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: create source texture: %w", ErrResourceAllocation, err)
	}
	view, err := e.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label: "kawase_source_view",
	})
	if err != nil {
		e.device.DestroyTexture(tex)
		return nil, nil, fmt.Errorf("%w: create source view: %w", ErrResourceAllocation, err)
	}

	e.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: tex, MipLevel: 0},
		imageToBGRA(img),
		&hal.ImageDataLayout{Offset: 0, BytesPerRow: w * 4, RowsPerImage: h},
		&hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	)
	return tex, view, nil
}

// encodeSubmitReadback drives the blocking path: encode all passes and
// the level-0 copy-out, submit once, wait on the fence, read back.
func (e *Engine) encodeSubmitReadback(srcView hal.TextureView, w, h uint32, params Params) (*image.RGBA, error) {
	encoder, err := e.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "kawase_blur_encoder",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create encoder: %w", ErrSubmission, err)
	}
	if err := encoder.BeginEncoding("kawase_blur"); err != nil {
		return nil, fmt.Errorf("%w: begin encoding: %w", ErrSubmission, err)
	}

	be := &blurEncoder{
		device:  e.device,
		queue:   e.queue,
		cache:   e.cache,
		quad:    &e.quad,
		pyramid: &e.pyramid,
	}
	res, err := be.encodeBlur(encoder, srcView, params)
	if err != nil {
		encoder.DiscardEncoding()
		return nil, err
	}
	defer destroyPassResources(e.device, res)

	// Level 0 holds the result; copy it out through a staging buffer.
	level0 := e.pyramid.level(0)
	preCopy, postCopy := copyOutBarriers(level0.tex)
	encoder.TransitionTextures(preCopy)

	alignedBytesPerRow := alignBytesPerRow(w * 4)
	stagingSize := uint64(alignedBytesPerRow) * uint64(h)
	stagingBuf, err := e.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "kawase_staging",
		Size:  stagingSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		encoder.DiscardEncoding()
		return nil, fmt.Errorf("%w: create staging buffer: %w", ErrResourceAllocation, err)
	}
	defer e.device.DestroyBuffer(stagingBuf)

	encoder.CopyTextureToBuffer(level0.tex, stagingBuf, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  alignedBytesPerRow,
			RowsPerImage: h,
		},
		TextureBase: hal.ImageCopyTexture{Texture: level0.tex, MipLevel: 0},
		Size:        hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	}})

	// Transition level 0 back to RenderAttachment. The pyramid is
	// cached across calls; without this the next blur's transition
	// (which expects RENDER_TARGET) would be invalid on DX12.
	encoder.TransitionTextures(postCopy)

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("%w: end encoding: %w", ErrSubmission, err)
	}
	defer e.device.FreeCommandBuffer(cmdBuf)

	fence, err := e.device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("%w: create fence: %w", ErrSubmission, err)
	}
	defer e.device.DestroyFence(fence)

	if err := e.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return nil, fmt.Errorf("%w: submit: %w", ErrSubmission, err)
	}
	fenceOK, err := e.device.Wait(fence, 1, e.opts.submitTimeout)
	if err != nil || !fenceOK {
		return nil, fmt.Errorf("%w: wait for GPU: ok=%v err=%v", ErrSubmission, fenceOK, err)
	}

	readback := make([]byte, stagingSize)
	if err := e.queue.ReadBuffer(stagingBuf, 0, readback); err != nil {
		return nil, fmt.Errorf("%w: readback: %w", ErrSubmission, err)
	}

	return bgraToRGBAImage(readback, w, h, alignedBytesPerRow), nil
}

// copyOutBarriers returns the transitions bracketing the level-0
// copy-out: into CopySrc for the buffer copy, back to RenderAttachment
// afterwards so the level's next render pass sees the usage it expects.
func copyOutBarriers(tex hal.Texture) (pre, post []hal.TextureBarrier) {
	pre = []hal.TextureBarrier{{
		Texture: tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}}
	post = []hal.TextureBarrier{{
		Texture: tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageCopySrc,
			NewUsage: gputypes.TextureUsageRenderAttachment,
		},
	}}
	return pre, post
}

// encodeSubmitAsync drives one streaming submission: the blur passes
// plus the presentation copy, submitted without waiting. A completion
// waiter frees the per-frame resources and the gate unit.
func (e *Engine) encodeSubmitAsync(slot *captureSlot, target hal.TextureView, tw, th uint32) error {
	encoder, err := e.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "kawase_frame_encoder",
	})
	if err != nil {
		return fmt.Errorf("%w: create encoder: %w", ErrSubmission, err)
	}
	if err := encoder.BeginEncoding("kawase_frame"); err != nil {
		return fmt.Errorf("%w: begin encoding: %w", ErrSubmission, err)
	}

	be := &blurEncoder{
		device:  e.device,
		queue:   e.queue,
		cache:   e.cache,
		quad:    &e.quad,
		pyramid: &e.pyramid,
	}
	res, err := be.encodeBlur(encoder, slot.view, e.sourceParams)
	if err != nil {
		encoder.DiscardEncoding()
		return err
	}

	if target != nil {
		copyRes, err := be.encodeCopy(encoder, target, tw, th, e.sourceParams.Offset)
		if err != nil {
			encoder.DiscardEncoding()
			destroyPassResources(e.device, res)
			return err
		}
		res = append(res, copyRes)
	}

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		destroyPassResources(e.device, res)
		return fmt.Errorf("%w: end encoding: %w", ErrSubmission, err)
	}

	fence, err := e.device.CreateFence()
	if err != nil {
		destroyPassResources(e.device, res)
		e.device.FreeCommandBuffer(cmdBuf)
		return fmt.Errorf("%w: create fence: %w", ErrSubmission, err)
	}

	if err := e.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		destroyPassResources(e.device, res)
		e.device.FreeCommandBuffer(cmdBuf)
		e.device.DestroyFence(fence)
		return fmt.Errorf("%w: submit: %w", ErrSubmission, err)
	}

	e.sched.watchCompletion(fence, cmdBuf, res, e.opts.submitTimeout)
	return nil
}

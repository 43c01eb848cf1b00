package kawase

import (
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// captureSlot is one pooled frame: a CPU-writable pixel buffer the
// source rasterizes into, paired with the GPU texture the first blur
// pass samples. The slot is reused only after the GPU has completed
// the frame that consumed it.
type captureSlot struct {
	index  int
	pixels []byte
	tex    hal.Texture
	view   hal.TextureView
	width  uint32
	height uint32
}

// frameScheduler paces frame production against GPU consumption on the
// streaming path. A counting gate bounds the number of in-flight
// frames; capture slots are handed out round-robin; a per-submission
// waiter returns the gate unit when the GPU signals completion.
type frameScheduler struct {
	device   hal.Device
	queue    hal.Queue
	capacity int

	// gate holds one token per available frame slot. acquire blocks
	// the tick (not other goroutines) when all tokens are out.
	gate chan struct{}

	slots []*captureSlot
	next  int

	width  uint32
	height uint32
}

func newFrameScheduler(device hal.Device, queue hal.Queue, capacity int) *frameScheduler {
	s := &frameScheduler{
		device:   device,
		queue:    queue,
		capacity: capacity,
		gate:     make(chan struct{}, capacity),
	}
	for i := 0; i < capacity; i++ {
		s.gate <- struct{}{}
	}
	return s
}

// acquire takes one gate unit, blocking the calling tick while all
// units are outstanding.
func (s *frameScheduler) acquire() {
	<-s.gate
}

// release returns one gate unit. Called from completion waiters and
// from error paths that never submitted.
func (s *frameScheduler) release() {
	s.gate <- struct{}{}
}

// inFlight reports how many gate units are currently outstanding.
func (s *frameScheduler) inFlight() int {
	return s.capacity - len(s.gate)
}

// drain waits out every in-flight frame, then returns the gate units.
// Callers quiesce the GPU this way before replacing resources that
// submitted frames still reference.
func (s *frameScheduler) drain() {
	for i := 0; i < s.capacity; i++ {
		<-s.gate
	}
	for i := 0; i < s.capacity; i++ {
		s.gate <- struct{}{}
	}
}

// nextSlot returns the next capture slot in round-robin order. Caller
// must hold a gate unit, which guarantees the slot's previous frame
// has completed.
func (s *frameScheduler) nextSlot() *captureSlot {
	slot := s.slots[s.next]
	s.next = (s.next + 1) % len(s.slots)
	return slot
}

// ensurePool builds (or rebuilds) the capture pool for the given
// dimensions. No-op when dimensions are unchanged. A rebuild first
// drains the gate so no in-flight frame still references a slot, so
// this never runs on the per-tick hot path for a stable source.
func (s *frameScheduler) ensurePool(w, h uint32) error {
	if s.width == w && s.height == h && len(s.slots) > 0 {
		return nil
	}
	if w == 0 || h == 0 {
		return fmt.Errorf("%w: capture pool size %dx%d", ErrResourceAllocation, w, h)
	}

	// Wait out all in-flight frames, then rebuild.
	for i := 0; i < s.capacity; i++ {
		<-s.gate
	}
	defer func() {
		for i := 0; i < s.capacity; i++ {
			s.gate <- struct{}{}
		}
	}()

	s.destroySlots()

	slots := make([]*captureSlot, 0, s.capacity)
	for i := 0; i < s.capacity; i++ {
		slot, err := s.createSlot(i, w, h)
		if err != nil {
			for _, sl := range slots {
				s.destroySlot(sl)
			}
			return err
		}
		slots = append(slots, slot)
	}

	s.slots = slots
	s.next = 0
	s.width = w
	s.height = h
	Logger().Info("kawase: capture pool rebuilt", "width", w, "height", h, "slots", s.capacity)
	return nil
}

// upload copies a slot's pixels into its texture for the GPU to sample.
func (s *frameScheduler) upload(slot *captureSlot) {
	s.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: slot.tex, MipLevel: 0},
		slot.pixels,
		&hal.ImageDataLayout{Offset: 0, BytesPerRow: slot.width * 4, RowsPerImage: slot.height},
		&hal.Extent3D{Width: slot.width, Height: slot.height, DepthOrArrayLayers: 1},
	)
}

// watchCompletion waits for the frame's fence on a separate goroutine,
// then frees the submission's resources and returns the gate unit.
// This is the only place a streaming frame's slot becomes reusable;
// CPU-side submission completion never releases anything.
func (s *frameScheduler) watchCompletion(fence hal.Fence, cmdBuf hal.CommandBuffer, res []passResources, timeout time.Duration) {
	go func() {
		ok, err := s.device.Wait(fence, 1, timeout)
		if err != nil || !ok {
			Logger().Warn("kawase: frame completion wait failed", "ok", ok, "error", err)
		}
		destroyPassResources(s.device, res)
		s.device.FreeCommandBuffer(cmdBuf)
		s.device.DestroyFence(fence)
		s.release()
	}()
}

// clear tears the pool down after draining in-flight frames. The next
// tick rebuilds it lazily.
func (s *frameScheduler) clear() {
	for i := 0; i < s.capacity; i++ {
		<-s.gate
	}
	s.destroySlots()
	s.width = 0
	s.height = 0
	for i := 0; i < s.capacity; i++ {
		s.gate <- struct{}{}
	}
}

func (s *frameScheduler) createSlot(index int, w, h uint32) (*captureSlot, error) {
	tex, err := s.device.CreateTexture(&hal.TextureDescriptor{
		Label:         fmt.Sprintf("kawase_capture_%d", index),
		Size:          hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        intermediateFormat,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create capture texture %d: %w", ErrResourceAllocation, index, err)
	}
	view, err := s.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label: fmt.Sprintf("kawase_capture_%d_view", index),
	})
	if err != nil {
		s.device.DestroyTexture(tex)
		return nil, fmt.Errorf("%w: create capture view %d: %w", ErrResourceAllocation, index, err)
	}

	return &captureSlot{
		index:  index,
		pixels: make([]byte, int(w)*int(h)*4),
		tex:    tex,
		view:   view,
		width:  w,
		height: h,
	}, nil
}

func (s *frameScheduler) destroySlot(slot *captureSlot) {
	if slot.view != nil {
		s.device.DestroyTextureView(slot.view)
		slot.view = nil
	}
	if slot.tex != nil {
		s.device.DestroyTexture(slot.tex)
		slot.tex = nil
	}
}

func (s *frameScheduler) destroySlots() {
	for i := len(s.slots) - 1; i >= 0; i-- {
		s.destroySlot(s.slots[i])
	}
	s.slots = nil
}

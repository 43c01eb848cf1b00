package kawase

import (
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"
)

// DeviceHandle is an alias for gpucontext.DeviceProvider, giving the
// engine a kawase-specific name for the host-integration interface
// while staying fully compatible with the gpucontext ecosystem.
type DeviceHandle = gpucontext.DeviceProvider

// NewFromProvider creates an engine from a host device provider (for
// example a gogpu window context). The provider must additionally
// expose the underlying HAL handles through HalDevice() any and
// HalQueue() any.
func NewFromProvider(provider DeviceHandle, opts ...Option) (*Engine, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: %w", ErrInitialization, ErrNilDevice)
	}

	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("%w: provider does not expose HAL types", ErrInitialization)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: provider HalDevice is not hal.Device", ErrInitialization)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: provider HalQueue is not hal.Queue", ErrInitialization)
	}

	return New(device, queue, opts...)
}

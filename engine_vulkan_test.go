//go:build vulkan

package kawase

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// createVulkanDevice opens the first usable Vulkan adapter, preferring
// discrete and integrated GPUs. Skips when no adapter is present.
func createVulkanDevice(t *testing.T) (hal.Device, hal.Queue, func()) {
	t.Helper()
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		t.Skip("vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		t.Skipf("create vulkan instance: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		t.Skip("no vulkan adapters found")
	}

	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("open device: %v", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup
}

// Blurring a uniform image is the identity up to the clamp-to-edge
// border, so a solid-white source must come back solid white. Every
// tap samples 1.0 and the kernel weights sum to 1.
func TestBlurImageWhiteStaysWhite(t *testing.T) {
	device, queue, cleanup := createVulkanDevice(t)
	defer cleanup()

	eng, err := New(device, queue)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer eng.Destroy()

	out, err := eng.BlurImage(whiteImage(256, 256), Params{Iterations: 3, Offset: 2.0})
	if err != nil {
		t.Fatalf("BlurImage: %v", err)
	}

	for i, v := range out.Pix {
		if v != 255 {
			t.Fatalf("pixel byte %d = %d, want 255", i, v)
		}
	}
}

// Two runs over the same input and parameters must agree byte for byte
// on real hardware, including across an intervening ClearCache.
func TestBlurImageDeterministicOnDevice(t *testing.T) {
	device, queue, cleanup := createVulkanDevice(t)
	defer cleanup()

	eng, err := New(device, queue)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer eng.Destroy()

	img := whiteImage(128, 128)
	params := Params{Iterations: 2, Offset: 3.0}

	a, err := eng.BlurImage(img, params)
	if err != nil {
		t.Fatalf("first BlurImage: %v", err)
	}
	eng.ClearCache()
	b, err := eng.BlurImage(img, params)
	if err != nil {
		t.Fatalf("second BlurImage: %v", err)
	}

	for i := range a.Pix {
		if a.Pix[i] != b.Pix[i] {
			t.Fatalf("pixel byte %d differs: %d vs %d", i, a.Pix[i], b.Pix[i])
		}
	}
}

// Command kawaseblur applies a Dual Kawase blur to a PNG file.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/png"
	"log"
	"log/slog"
	"os"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/kawase"
)

func main() {
	var (
		input      = flag.String("input", "", "input PNG file (required)")
		output     = flag.String("output", "blurred.png", "output PNG file")
		iterations = flag.Int("iterations", 3, "blur iterations (1-5)")
		offset     = flag.Float64("offset", 2.0, "blur offset (1.0-5.0)")
		verbose    = flag.Bool("v", false, "enable debug logging")
		dryRun     = flag.Bool("noop", false, "run against the noop backend (no GPU required)")
	)
	flag.Parse()

	if *input == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *verbose {
		kawase.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	img, err := loadPNG(*input)
	if err != nil {
		log.Fatalf("Failed to load %s: %v", *input, err)
	}

	device, queue, cleanup, err := openDevice(*dryRun)
	if err != nil {
		log.Fatalf("Failed to open GPU device: %v", err)
	}
	defer cleanup()

	eng, err := kawase.New(device, queue)
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}
	defer eng.Destroy()

	blurred, err := eng.BlurImage(img, kawase.Params{
		Iterations: *iterations,
		Offset:     float32(*offset),
	})
	if err != nil {
		log.Fatalf("Blur failed: %v", err)
	}

	if err := savePNG(*output, blurred); err != nil {
		log.Fatalf("Failed to save %s: %v", *output, err)
	}

	b := img.Bounds()
	log.Printf("Blurred %s (%dx%d, iterations=%d, offset=%g) -> %s",
		*input, b.Dx(), b.Dy(), *iterations, *offset, *output)
}

// openDevice acquires a standalone device and queue: the Vulkan backend
// by default, the noop backend when dry-running.
func openDevice(dryRun bool) (hal.Device, hal.Queue, func(), error) {
	var (
		instance hal.Instance
		err      error
	)
	if dryRun {
		api := noop.API{}
		instance, err = api.CreateInstance(nil)
	} else {
		backend, ok := hal.GetBackend(gputypes.BackendVulkan)
		if !ok {
			return nil, nil, nil, fmt.Errorf("vulkan backend not available")
		}
		instance, err = backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, nil, nil, fmt.Errorf("no GPU adapters found")
	}

	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, nil, nil, fmt.Errorf("open device: %w", err)
	}

	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup, nil
}

func loadPNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return png.Decode(f)
}

func savePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

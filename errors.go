package kawase

import (
	"errors"
	"fmt"
)

// Error categories. All errors returned by this package wrap exactly one
// of these sentinels, so callers can classify failures with errors.Is
// without depending on message text.
var (
	// ErrInitialization indicates the device or shader toolchain was
	// unusable at construction time. Fatal, never retried.
	ErrInitialization = errors.New("kawase: initialization failed")

	// ErrParameter indicates iterations or offset outside the valid
	// range. Rejected before any GPU work; no state is mutated.
	ErrParameter = errors.New("kawase: invalid parameter")

	// ErrResourceAllocation indicates a texture or buffer could not be
	// created (zero size, device exhaustion). Previously valid pyramid
	// and pool state is preserved; the caller may retry with adjusted
	// parameters.
	ErrResourceAllocation = errors.New("kawase: resource allocation failed")

	// ErrSubmission indicates a command encoder or submission was
	// unavailable. Surfaced in blocking mode; in streaming mode the
	// tick is dropped and the next tick retries.
	ErrSubmission = errors.New("kawase: command submission failed")
)

// Initialization-class refinements reported by the pipeline cache.
// Both wrap ErrInitialization, so errors.Is(err, ErrInitialization)
// holds for either.
var (
	// ErrShaderCompile indicates a shader module failed to build.
	ErrShaderCompile = fmt.Errorf("%w: shader compilation", ErrInitialization)

	// ErrPipelineCompile indicates a render pipeline failed to build.
	ErrPipelineCompile = fmt.Errorf("%w: pipeline compilation", ErrInitialization)
)

// ErrNoSource is returned by RenderFrame when no live source has been
// attached.
var ErrNoSource = errors.New("kawase: no live source attached")

// ErrEngineDestroyed is returned by operations on an engine after
// Destroy.
var ErrEngineDestroyed = errors.New("kawase: engine destroyed")

// ErrNilDevice is returned by constructors when the device or queue
// is nil, or when a DeviceProvider does not expose hal handles.
var ErrNilDevice = errors.New("kawase: nil device")

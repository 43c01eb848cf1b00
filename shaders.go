package kawase

import _ "embed"

// Embedded WGSL shader sources, compiled into the binary at build time.
// All three share the same vertex stage, uniform layout, and bind group
// layout; only the fragment kernels differ.

//go:embed shaders/downsample.wgsl
var downsampleShaderSource string

//go:embed shaders/upsample.wgsl
var upsampleShaderSource string

//go:embed shaders/copy.wgsl
var copyShaderSource string

// GetDownsampleShaderSource returns the WGSL source of the downsample
// kernel. Exposed for diagnostics and tests.
func GetDownsampleShaderSource() string { return downsampleShaderSource }

// GetUpsampleShaderSource returns the WGSL source of the upsample
// kernel.
func GetUpsampleShaderSource() string { return upsampleShaderSource }

// GetCopyShaderSource returns the WGSL source of the presentation copy
// pass.
func GetCopyShaderSource() string { return copyShaderSource }

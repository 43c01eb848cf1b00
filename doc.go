// Package kawase implements a Dual Kawase blur engine on top of
// gogpu/wgpu.
//
// # Overview
//
// Dual Kawase blur approximates a wide Gaussian blur by ping-ponging
// an image through a pyramid of render targets at halving resolutions:
// a chain of downsample passes followed by a chain of upsample passes,
// each using a small fixed-weight sampling pattern. The cost scales
// with the number of pyramid levels, not with the blur radius, which
// makes it cheap enough to run every display refresh.
//
// # Quick Start
//
//	import "github.com/gogpu/kawase"
//
//	eng := kawase.New(device, queue)
//	defer eng.Destroy()
//
//	blurred, err := eng.BlurImage(src, kawase.Params{Iterations: 3, Offset: 2.0})
//
// # Execution modes
//
// BlurImage is the blocking one-shot path: it encodes all passes into
// a single command sequence, submits, waits for GPU completion, and
// reads the result back to an *image.RGBA. Call it off any
// latency-sensitive goroutine.
//
// AttachLiveSource plus per-tick RenderFrame form the streaming path:
// each tick captures a frame from the attached source into a pooled
// buffer, encodes the blur plus a presentation copy, and submits
// without waiting. At most three frames are in flight at once; slots
// are recycled only when the GPU signals completion of the frame that
// held them.
//
// # Resource lifecycle
//
// The engine owns a texture pyramid and a pipeline cache. Both are
// allocated lazily, reused across invocations, and rebuilt only when
// the source dimensions or iteration count change. ClearCache releases
// everything on demand (for example under memory pressure); the next
// operation reallocates transparently.
package kawase

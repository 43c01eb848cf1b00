package kawase

import "time"

// Option configures an Engine during creation.
//
// Example:
//
//	eng := kawase.New(device, queue,
//	    kawase.WithMaxInFlight(2),
//	    kawase.WithSubmitTimeout(2*time.Second))
type Option func(*engineOptions)

// engineOptions holds optional configuration for Engine creation.
type engineOptions struct {
	maxInFlight   int
	submitTimeout time.Duration
	spirvShaders  bool
}

// defaultOptions returns the default engine options.
func defaultOptions() engineOptions {
	return engineOptions{
		maxInFlight:   defaultMaxInFlight,
		submitTimeout: defaultSubmitTimeout,
	}
}

// defaultMaxInFlight is the streaming-path frame bound ("triple
// buffering"): transient GPU memory stays bounded while the producer
// never stalls waiting for the frame it just submitted.
const defaultMaxInFlight = 3

// defaultSubmitTimeout bounds the blocking-path fence wait.
const defaultSubmitTimeout = 5 * time.Second

// WithMaxInFlight overrides the streaming-path bound on concurrently
// in-flight frames. Values below 1 are ignored. The capture-buffer
// pool has the same size as this bound.
func WithMaxInFlight(n int) Option {
	return func(o *engineOptions) {
		if n >= 1 {
			o.maxInFlight = n
		}
	}
}

// WithSubmitTimeout overrides the fence-wait timeout used by the
// blocking path. Values of zero or below are ignored.
func WithSubmitTimeout(d time.Duration) Option {
	return func(o *engineOptions) {
		if d > 0 {
			o.submitTimeout = d
		}
	}
}

// WithSPIRVShaders makes the pipeline cache compile the embedded WGSL
// sources to SPIR-V through naga before handing them to the device.
// Use this with backends that do not ingest WGSL directly.
func WithSPIRVShaders() Option {
	return func(o *engineOptions) {
		o.spirvShaders = true
	}
}

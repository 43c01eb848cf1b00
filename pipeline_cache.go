package kawase

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/kawase/internal/shader"
)

// Intermediate levels hold gamma-corrected 8-bit BGRA; the presentation
// copy renders into linear 8-bit BGRA.
const (
	intermediateFormat = gputypes.TextureFormatBGRA8UnormSrgb
	presentationFormat = gputypes.TextureFormatBGRA8Unorm
)

// pipelineRole selects one of the three fixed shader roles. The set is
// closed; there is no open-ended dispatch.
type pipelineRole int

const (
	roleDownsample pipelineRole = iota
	roleUpsample
	roleCopy

	roleCount
)

func (r pipelineRole) String() string {
	switch r {
	case roleDownsample:
		return "downsample"
	case roleUpsample:
		return "upsample"
	case roleCopy:
		return "copy"
	default:
		return fmt.Sprintf("pipelineRole(%d)", int(r))
	}
}

// source returns the role's embedded WGSL.
func (r pipelineRole) source() string {
	switch r {
	case roleDownsample:
		return downsampleShaderSource
	case roleUpsample:
		return upsampleShaderSource
	default:
		return copyShaderSource
	}
}

// targetFormat returns the color target format the role renders into.
func (r pipelineRole) targetFormat() gputypes.TextureFormat {
	if r == roleCopy {
		return presentationFormat
	}
	return intermediateFormat
}

// pipelineEntry is one compiled role. Immutable once built; the cache
// is cleared as a unit, never entry by entry.
type pipelineEntry struct {
	shaderModule hal.ShaderModule
	pipeline     hal.RenderPipeline
}

// pipelineCache lazily compiles and memoizes the render pipelines for
// the three roles, plus the bind group layout, pipeline layout, and
// sampler they share.
//
// Reads vastly outnumber writes once the cache is warm, so lookups take
// a read lock and fall back to double-checked compilation under the
// write lock.
type pipelineCache struct {
	device hal.Device
	spirv  bool

	mu         sync.RWMutex
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	sampler    hal.Sampler
	entries    [roleCount]*pipelineEntry
}

func newPipelineCache(device hal.Device, spirv bool) *pipelineCache {
	return &pipelineCache{device: device, spirv: spirv}
}

// getOrCreate returns the compiled pipeline for role, building it on
// first use. Compile failures are initialization-class and never
// retried by the cache itself; a later call after clear() starts fresh.
func (c *pipelineCache) getOrCreate(role pipelineRole) (hal.RenderPipeline, error) {
	c.mu.RLock()
	if e := c.entries[role]; e != nil {
		c.mu.RUnlock()
		return e.pipeline, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if e := c.entries[role]; e != nil {
		return e.pipeline, nil
	}

	if err := c.ensureSharedLocked(); err != nil {
		return nil, err
	}

	entry, err := c.compileLocked(role)
	if err != nil {
		return nil, err
	}
	c.entries[role] = entry
	Logger().Debug("kawase: pipeline compiled", "role", role.String())
	return entry.pipeline, nil
}

// bindGroupLayout returns the layout shared by all roles, compiling the
// shared objects if needed. Pass encoding uses it to build per-pass
// bind groups.
func (c *pipelineCache) bindGroupLayout() (hal.BindGroupLayout, error) {
	c.mu.RLock()
	if c.bindLayout != nil {
		defer c.mu.RUnlock()
		return c.bindLayout, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureSharedLocked(); err != nil {
		return nil, err
	}
	return c.bindLayout, nil
}

// linearSampler returns the shared bilinear clamp-to-edge sampler.
func (c *pipelineCache) linearSampler() (hal.Sampler, error) {
	c.mu.RLock()
	if c.sampler != nil {
		defer c.mu.RUnlock()
		return c.sampler, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureSharedLocked(); err != nil {
		return nil, err
	}
	return c.sampler, nil
}

// ensureSharedLocked builds the bind group layout, pipeline layout, and
// sampler shared by every role. Caller holds the write lock.
func (c *pipelineCache) ensureSharedLocked() error {
	if c.bindLayout != nil {
		return nil
	}

	bindLayout, err := c.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "kawase_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
			{
				Binding:    1,
				Visibility: gputypes.ShaderStageFragment,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			},
			{
				Binding:    2,
				Visibility: gputypes.ShaderStageFragment,
				Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("%w: create bind group layout: %w", ErrPipelineCompile, err)
	}

	pipeLayout, err := c.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "kawase_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{bindLayout},
	})
	if err != nil {
		c.device.DestroyBindGroupLayout(bindLayout)
		return fmt.Errorf("%w: create pipeline layout: %w", ErrPipelineCompile, err)
	}

	sampler, err := c.device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "kawase_sampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeLinear,
	})
	if err != nil {
		c.device.DestroyPipelineLayout(pipeLayout)
		c.device.DestroyBindGroupLayout(bindLayout)
		return fmt.Errorf("%w: create sampler: %w", ErrResourceAllocation, err)
	}

	c.bindLayout = bindLayout
	c.pipeLayout = pipeLayout
	c.sampler = sampler
	return nil
}

// compileLocked builds the shader module and render pipeline for one
// role. Caller holds the write lock and has ensured the shared objects.
func (c *pipelineCache) compileLocked(role pipelineRole) (*pipelineEntry, error) {
	src := role.source()
	if src == "" {
		return nil, fmt.Errorf("%w: %s shader source missing", ErrShaderCompile, role)
	}

	var shaderSource hal.ShaderSource
	if c.spirv {
		code, err := shader.CompileToSPIRV(src)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrShaderCompile, role, err)
		}
		shaderSource = hal.ShaderSource{SPIRV: code}
	} else {
		shaderSource = hal.ShaderSource{WGSL: src}
	}

	shaderModule, err := c.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "kawase_" + role.String() + "_shader",
		Source: shaderSource,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrShaderCompile, role, err)
	}

	pipeline, err := c.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "kawase_" + role.String() + "_pipeline",
		Layout: c.pipeLayout,
		Vertex: hal.VertexState{
			Module:     shaderModule,
			EntryPoint: "vs_main",
			Buffers:    quadVertexLayout(),
		},
		Fragment: &hal.FragmentState{
			Module:     shaderModule,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{
					Format:    role.targetFormat(),
					WriteMask: gputypes.ColorWriteMaskAll,
				},
			},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleStrip,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		c.device.DestroyShaderModule(shaderModule)
		return nil, fmt.Errorf("%w: %s: %w", ErrPipelineCompile, role, err)
	}

	return &pipelineEntry{shaderModule: shaderModule, pipeline: pipeline}, nil
}

// clear drops every entry and the shared objects, in reverse creation
// order. Entries rebuild lazily on next use.
func (c *pipelineCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for role := roleCount - 1; role >= 0; role-- {
		e := c.entries[role]
		if e == nil {
			continue
		}
		if e.pipeline != nil {
			c.device.DestroyRenderPipeline(e.pipeline)
		}
		if e.shaderModule != nil {
			c.device.DestroyShaderModule(e.shaderModule)
		}
		c.entries[role] = nil
	}

	if c.sampler != nil {
		c.device.DestroySampler(c.sampler)
		c.sampler = nil
	}
	if c.pipeLayout != nil {
		c.device.DestroyPipelineLayout(c.pipeLayout)
		c.pipeLayout = nil
	}
	if c.bindLayout != nil {
		c.device.DestroyBindGroupLayout(c.bindLayout)
		c.bindLayout = nil
	}
}

package kawase

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// blurUniformSize covers the per-pass uniform pair: halfpixel vec2 plus
// offset vec2, 16 bytes. Matches BlurUniforms in the WGSL sources.
const blurUniformSize = 16

// externalSource marks a pass that samples the caller's source texture
// instead of a pyramid level.
const externalSource = -1

// blurPass is one step of the plan: sample srcLevel, render into
// dstLevel with the role's pipeline.
type blurPass struct {
	role     pipelineRole
	srcLevel int
	dstLevel int
}

// planPasses returns the ordered 2k-pass sequence for k iterations:
// downsample steps i=0..k-1 render level i (the external source for
// i=0) into level i+1, then upsample steps i=k..1 render level i into
// level i-1. The result lands in level 0.
func planPasses(k int) []blurPass {
	passes := make([]blurPass, 0, 2*k)
	for i := 0; i < k; i++ {
		src := i
		if i == 0 {
			src = externalSource
		}
		passes = append(passes, blurPass{role: roleDownsample, srcLevel: src, dstLevel: i + 1})
	}
	for i := k; i >= 1; i-- {
		passes = append(passes, blurPass{role: roleUpsample, srcLevel: i, dstLevel: i - 1})
	}
	return passes
}

// blurUniformData serializes the per-pass uniforms for a target of the
// given dimensions: halfpixel = (0.5/tw, 0.5/th), offsetVec = (o, o).
func blurUniformData(tw, th uint32, offset float32) []byte {
	data := make([]byte, blurUniformSize)
	binary.LittleEndian.PutUint32(data[0:], math.Float32bits(0.5/float32(tw)))
	binary.LittleEndian.PutUint32(data[4:], math.Float32bits(0.5/float32(th)))
	binary.LittleEndian.PutUint32(data[8:], math.Float32bits(offset))
	binary.LittleEndian.PutUint32(data[12:], math.Float32bits(offset))
	return data
}

// passResources holds the per-pass uniform buffer and bind group. They
// stay alive until the GPU has consumed the submission: the blocking
// path frees them after the fence wait, the streaming path from the
// frame's completion waiter.
type passResources struct {
	uniformBuf hal.Buffer
	bindGroup  hal.BindGroup
}

// destroyPassResources releases per-pass resources in reverse order.
func destroyPassResources(device hal.Device, res []passResources) {
	for i := len(res) - 1; i >= 0; i-- {
		if res[i].bindGroup != nil {
			device.DestroyBindGroup(res[i].bindGroup)
		}
		if res[i].uniformBuf != nil {
			device.DestroyBuffer(res[i].uniformBuf)
		}
	}
}

// blurEncoder encodes blur and copy passes onto one command encoder.
// Each invocation owns its encoder; nothing here is shared across
// concurrent encodes except the immutable cache and quad.
type blurEncoder struct {
	device  hal.Device
	queue   hal.Queue
	cache   *pipelineCache
	quad    *fullscreenQuad
	pyramid *texturePyramid
}

// encodeBlur records the 2k blur passes for params onto enc, sampling
// sourceView in the first pass. The returned resources must be released
// once the submission has completed on the GPU.
func (b *blurEncoder) encodeBlur(enc hal.CommandEncoder, sourceView hal.TextureView, params Params) ([]passResources, error) {
	passes := planPasses(params.Iterations)
	res := make([]passResources, 0, len(passes))

	for _, pass := range passes {
		srcView := sourceView
		if pass.srcLevel != externalSource {
			srcView = b.pyramid.level(pass.srcLevel).view
		}
		dst := b.pyramid.level(pass.dstLevel)

		pr, err := b.encodePass(enc, pass.role, srcView, dst.view, dst.width, dst.height, params.Offset)
		if err != nil {
			destroyPassResources(b.device, res)
			return nil, err
		}
		res = append(res, pr)
	}
	return res, nil
}

// encodeCopy records the presentation copy pass: level 0 blitted into
// target. The target format must match presentationFormat.
func (b *blurEncoder) encodeCopy(enc hal.CommandEncoder, target hal.TextureView, tw, th uint32, offset float32) (passResources, error) {
	src := b.pyramid.level(0)
	return b.encodePass(enc, roleCopy, src.view, target, tw, th, offset)
}

// encodePass records a single fullscreen pass: bind the role pipeline,
// upload the per-pass uniforms, bind the source for bilinear
// clamp-to-edge sampling, draw the quad. The whole target is
// overwritten, so the load op clears and nothing is preserved.
func (b *blurEncoder) encodePass(
	enc hal.CommandEncoder,
	role pipelineRole,
	srcView, dstView hal.TextureView,
	tw, th uint32,
	offset float32,
) (passResources, error) {
	pipeline, err := b.cache.getOrCreate(role)
	if err != nil {
		return passResources{}, err
	}
	bindLayout, err := b.cache.bindGroupLayout()
	if err != nil {
		return passResources{}, err
	}
	sampler, err := b.cache.linearSampler()
	if err != nil {
		return passResources{}, err
	}

	uniformBuf, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "kawase_" + role.String() + "_uniform",
		Size:  blurUniformSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return passResources{}, fmt.Errorf("%w: create %s uniform buffer: %w",
			ErrResourceAllocation, role, err)
	}
	b.queue.WriteBuffer(uniformBuf, 0, blurUniformData(tw, th, offset))

	bindGroup, err := b.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "kawase_" + role.String() + "_bind",
		Layout: bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{
				Buffer: uniformBuf.NativeHandle(), Offset: 0, Size: blurUniformSize,
			}},
			{Binding: 1, Resource: gputypes.TextureViewBinding{
				TextureView: srcView.NativeHandle(),
			}},
			{Binding: 2, Resource: gputypes.SamplerBinding{
				Sampler: sampler.NativeHandle(),
			}},
		},
	})
	if err != nil {
		b.device.DestroyBuffer(uniformBuf)
		return passResources{}, fmt.Errorf("%w: create %s bind group: %w",
			ErrResourceAllocation, role, err)
	}

	rp := enc.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "kawase_" + role.String() + "_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{
			{
				View:       dstView,
				LoadOp:     gputypes.LoadOpClear,
				StoreOp:    gputypes.StoreOpStore,
				ClearValue: gputypes.Color{R: 0, G: 0, B: 0, A: 0},
			},
		},
	})
	rp.SetPipeline(pipeline)
	rp.SetBindGroup(0, bindGroup, nil)
	rp.SetVertexBuffer(0, b.quad.vertBuf, 0)
	rp.Draw(quadVertexCount, 1, 0, 0)
	rp.End()

	return passResources{uniformBuf: uniformBuf, bindGroup: bindGroup}, nil
}

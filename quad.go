package kawase

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Every pass draws the same 4-vertex triangle strip covering the full
// clip space. The quad carries a single vec3 position attribute; the
// vertex stage derives texture coordinates from it.
const (
	quadVertexCount  = 4
	quadVertexStride = 12 // one vec3<f32> position
)

// fullscreenQuad owns the shared vertex buffer. Created lazily on first
// use and reused by every pass of every invocation.
type fullscreenQuad struct {
	vertBuf hal.Buffer
}

// ensure creates the vertex buffer if it does not exist yet.
func (q *fullscreenQuad) ensure(device hal.Device, queue hal.Queue) error {
	if q.vertBuf != nil {
		return nil
	}

	data := quadVertexData()
	buf, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: "kawase_quad_verts",
		Size:  uint64(len(data)),
		Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("%w: create quad vertex buffer: %w", ErrResourceAllocation, err)
	}
	queue.WriteBuffer(buf, 0, data)
	q.vertBuf = buf
	return nil
}

// destroy releases the vertex buffer. Safe to call repeatedly.
func (q *fullscreenQuad) destroy(device hal.Device) {
	if q.vertBuf != nil {
		device.DestroyBuffer(q.vertBuf)
		q.vertBuf = nil
	}
}

// quadVertexData serializes the strip vertices: bottom-left,
// bottom-right, top-left, top-right in clip space.
func quadVertexData() []byte {
	verts := [quadVertexCount][3]float32{
		{-1, -1, 0},
		{1, -1, 0},
		{-1, 1, 0},
		{1, 1, 0},
	}

	data := make([]byte, 0, quadVertexCount*quadVertexStride)
	var tmp [4]byte
	for _, v := range verts {
		for _, f := range v {
			binary.LittleEndian.PutUint32(tmp[:], math.Float32bits(f))
			data = append(data, tmp[:]...)
		}
	}
	return data
}

// quadVertexLayout returns the vertex buffer layout shared by all three
// pipeline roles. Matches the vs_main input in the blur shaders:
//
//	location 0: position (vec3<f32>)
func quadVertexLayout() []gputypes.VertexBufferLayout {
	return []gputypes.VertexBufferLayout{
		{
			ArrayStride: quadVertexStride,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
			},
		},
	}
}

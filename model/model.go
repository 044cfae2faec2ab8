// Package model holds indexed meshes in host-visible memory and draws them with a
// graphics pipeline that uses the flat vertex format
package model

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/arsenal/memutils"
	"github.com/vkngwrapper/cadence/device"
	"github.com/vkngwrapper/cadence/memory"
	"github.com/vkngwrapper/cadence/pipeline"
	"github.com/vkngwrapper/cadence/resource"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"golang.org/x/exp/slog"
)

const (
	vertexSize = 20
	indexSize  = 4
)

// VertexData is a triangle list mesh: every three indices select one triangle
type VertexData struct {
	Vertices []pipeline.FlatVertex
	Indices  []uint32
}

// Square is two triangles covering most of the viewport, red along the top edge and blue
// along the bottom
func Square() VertexData {
	red := [3]float32{1, 0, 0}
	blue := [3]float32{0, 0, 1}

	return VertexData{
		Vertices: []pipeline.FlatVertex{
			{Position: [2]float32{-0.8, 0.8}, Color: red},
			{Position: [2]float32{-0.8, -0.8}, Color: blue},
			{Position: [2]float32{0.8, 0.8}, Color: red},
			{Position: [2]float32{0.8, -0.8}, Color: blue},
		},
		Indices: []uint32{0, 1, 2, 2, 1, 3},
	}
}

func (d VertexData) VertexDataSize() int {
	return len(d.Vertices) * vertexSize
}

func (d VertexData) IndexDataSize() int {
	return len(d.Indices) * indexSize
}

func (d VertexData) validate() error {
	if len(d.Vertices) == 0 || len(d.Indices) == 0 {
		return errors.Newf("model needs vertices and indices, got %d vertices and %d indices", len(d.Vertices), len(d.Indices))
	}

	for position, index := range d.Indices {
		if int(index) >= len(d.Vertices) {
			return errors.Newf("index %d at position %d is past the last of %d vertices", index, position, len(d.Vertices))
		}
	}
	return nil
}

// Model is a mesh uploaded to the device. Its vertex and index buffers share one arena.
type Model struct {
	logger     *slog.Logger
	vertices   *resource.Buffer
	indices    *resource.Buffer
	arena      *memory.Arena
	indexCount int
}

// New uploads data into a new host-visible, host-coherent arena. The vertex buffer sits at
// the start of the arena and the index buffer follows it at the next aligned offset.
func New(dev *device.Device, allocator *memory.Allocator, data VertexData) (*Model, error) {
	err := data.validate()
	if err != nil {
		return nil, err
	}

	m := &Model{
		logger:     dev.Logger(),
		indexCount: len(data.Indices),
	}

	err = m.upload(dev, allocator, data)
	if err != nil {
		m.Destroy()
		return nil, err
	}

	dev.Logger().Debug("Model::New",
		slog.Int("Vertices", len(data.Vertices)),
		slog.Int("Indices", len(data.Indices)),
		slog.String("Arena", m.arena.Handle().String()),
	)
	return m, nil
}

func (m *Model) upload(dev *device.Device, allocator *memory.Allocator, data VertexData) error {
	var err error
	m.vertices, err = resource.NewBuffer(dev, data.VertexDataSize(), core1_0.BufferUsageVertexBuffer)
	if err != nil {
		return err
	}

	m.indices, err = resource.NewBuffer(dev, data.IndexDataSize(), core1_0.BufferUsageIndexBuffer)
	if err != nil {
		return err
	}

	vertexRequirements := m.vertices.MemoryRequirements()
	indexRequirements := m.indices.MemoryRequirements()
	indexOffset := memutils.AlignUp(vertexRequirements.Size, uint(indexRequirements.Alignment))

	memoryTypeIndex, err := dev.Context().FindMemoryType(
		vertexRequirements.MemoryTypeBits&indexRequirements.MemoryTypeBits,
		core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent,
	)
	if err != nil {
		return errors.Wrap(err, "no memory type can hold both model buffers")
	}

	m.arena, err = allocator.Allocate(indexOffset+indexRequirements.Size, memoryTypeIndex)
	if err != nil {
		return err
	}

	err = m.vertices.Bind(m.arena, 0)
	if err != nil {
		return err
	}

	err = m.indices.Bind(m.arena, indexOffset)
	if err != nil {
		return err
	}

	err = m.arena.Map(common.WholeSize, 0)
	if err != nil {
		return err
	}

	err = memory.WriteSlice(m.arena, data.Vertices, 0)
	if err != nil {
		return err
	}

	err = memory.WriteSlice(m.arena, data.Indices, indexOffset)
	if err != nil {
		return err
	}

	return m.arena.Unmap()
}

func (m *Model) IndexCount() int {
	return m.indexCount
}

// Bind records the model's vertex buffer at binding 0 and its 32-bit index buffer
func (m *Model) Bind(cmd core1_0.CommandBuffer) {
	cmd.CmdBindVertexBuffers(0, []core1_0.Buffer{m.vertices.VulkanBuffer()}, []int{0})
	cmd.CmdBindIndexBuffer(m.indices.VulkanBuffer(), 0, core1_0.IndexTypeUInt32)
}

// Draw records one instance of every indexed triangle
func (m *Model) Draw(cmd core1_0.CommandBuffer) {
	cmd.CmdDrawIndexed(m.indexCount, 1, 0, 0, 0)
}

// Destroy releases the buffers and then the arena behind them
func (m *Model) Destroy() {
	if m.vertices != nil {
		m.vertices.Destroy()
		m.vertices = nil
	}
	if m.indices != nil {
		m.indices.Destroy()
		m.indices = nil
	}

	if m.arena != nil {
		err := m.arena.Free()
		if err != nil && !errors.Is(err, memory.ErrStaleHandle) {
			m.logger.Error("could not free model arena", slog.String("Arena", m.arena.Handle().String()), slog.Any("error", err))
		}
		m.arena = nil
	}
}

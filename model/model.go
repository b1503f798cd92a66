// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package model defines the vertex format the pipeline is built for.
package model

import (
	"unsafe"

	"github.com/devblok/triangle/gfx"
	glm "github.com/go-gl/mathgl/mgl32"
)

// Vertex is a model vertex
type Vertex struct {
	Pos glm.Vec4
}

// Stride is the byte distance between consecutive vertices.
func Stride() uint32 {
	return uint32(unsafe.Sizeof(Vertex{}))
}

// InputLayout describes Vertex to the input assembler, one
// POSITION element advancing per vertex.
func InputLayout() []gfx.InputElementDesc {
	return []gfx.InputElementDesc{{
		SemanticName:      "POSITION",
		SemanticIndex:     0,
		Format:            gfx.FormatR32G32B32A32Float,
		InputSlot:         0,
		AlignedByteOffset: gfx.AppendAlignedElement,
		InputSlotClass:    gfx.PerVertexData,
	}}
}

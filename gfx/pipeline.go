// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

// AppendAlignedElement places an input element directly after the previous one.
const AppendAlignedElement = 0xffffffff

// DefaultSampleMask enables every sample.
const DefaultSampleMask = 0xffffffff

// InputClassification tells whether an element advances per vertex or per instance.
type InputClassification int

// Input classifications
const (
	PerVertexData InputClassification = iota
	PerInstanceData
)

// InputElementDesc describes one vertex attribute.
type InputElementDesc struct {
	SemanticName         string
	SemanticIndex        uint32
	Format               Format
	InputSlot            uint32
	AlignedByteOffset    uint32
	InputSlotClass       InputClassification
	InstanceDataStepRate uint32
}

// InputLayoutStride returns the byte stride of slot 0 and the resolved
// offset of each element.
func InputLayoutStride(elements []InputElementDesc) (stride uint32, offsets []uint32) {
	offsets = make([]uint32, len(elements))
	for i, e := range elements {
		offset := e.AlignedByteOffset
		if offset == AppendAlignedElement {
			offset = stride
		}
		offsets[i] = offset
		if end := offset + e.Format.Size(); end > stride {
			stride = end
		}
	}
	return stride, offsets
}

// FillMode of the rasterizer
type FillMode int

// Fill modes
const (
	FillSolid FillMode = iota
	FillWireframe
)

// CullMode of the rasterizer
type CullMode int

// Cull modes
const (
	CullBack CullMode = iota
	CullFront
	CullNone
)

// RasterizerDesc describes the rasterizer stage.
type RasterizerDesc struct {
	FillMode              FillMode
	CullMode              CullMode
	FrontCounterClockwise bool
	DepthBias             int32
	DepthBiasClamp        float32
	SlopeScaledDepthBias  float32
	DepthClipEnable       bool
	MultisampleEnable     bool
	AntialiasedLineEnable bool
}

// DefaultRasterizerDesc returns solid fill, back face culling and depth clip.
func DefaultRasterizerDesc() RasterizerDesc {
	return RasterizerDesc{
		FillMode:        FillSolid,
		CullMode:        CullBack,
		DepthClipEnable: true,
	}
}

// Blend factor
type Blend int

// Blend factors
const (
	BlendZero Blend = iota
	BlendOne
	BlendSrcAlpha
	BlendInvSrcAlpha
)

// BlendOp combines the blend factors.
type BlendOp int

// Blend operations
const (
	BlendOpAdd BlendOp = iota
	BlendOpSubtract
)

// ColorWriteEnableAll writes every channel.
const ColorWriteEnableAll = 0xf

// RenderTargetBlendDesc describes blending for one render target.
type RenderTargetBlendDesc struct {
	BlendEnable           bool
	SrcBlend              Blend
	DestBlend             Blend
	BlendOp               BlendOp
	SrcBlendAlpha         Blend
	DestBlendAlpha        Blend
	BlendOpAlpha          BlendOp
	RenderTargetWriteMask uint8
}

// BlendDesc describes the output merger blend state.
type BlendDesc struct {
	AlphaToCoverageEnable  bool
	IndependentBlendEnable bool
	RenderTarget           [8]RenderTargetBlendDesc
}

// DefaultBlendDesc returns opaque writes of every channel on all targets.
func DefaultBlendDesc() BlendDesc {
	var desc BlendDesc
	for i := range desc.RenderTarget {
		desc.RenderTarget[i] = RenderTargetBlendDesc{
			SrcBlend:              BlendOne,
			DestBlend:             BlendZero,
			BlendOp:               BlendOpAdd,
			SrcBlendAlpha:         BlendOne,
			DestBlendAlpha:        BlendZero,
			BlendOpAlpha:          BlendOpAdd,
			RenderTargetWriteMask: ColorWriteEnableAll,
		}
	}
	return desc
}

// PrimitiveTopologyType is the primitive class a pipeline assembles.
type PrimitiveTopologyType int

// Topology types
const (
	TopologyTypeUndefined PrimitiveTopologyType = iota
	TopologyTypePoint
	TopologyTypeLine
	TopologyTypeTriangle
)

// GraphicsPipelineStateDesc describes a graphics pipeline.
type GraphicsPipelineStateDesc struct {
	RootSignature         RootSignature
	VS                    []byte
	PS                    []byte
	InputLayout           []InputElementDesc
	RasterizerState       RasterizerDesc
	BlendState            BlendDesc
	SampleMask            uint32
	PrimitiveTopologyType PrimitiveTopologyType
	NumRenderTargets      int
	RTVFormats            [8]Format
	SampleDesc            SampleDesc
}

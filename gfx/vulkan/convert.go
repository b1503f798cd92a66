// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vulkan

import (
	"github.com/devblok/triangle/gfx"
	vk "github.com/devblok/vulkan"
)

func vkFormat(f gfx.Format) vk.Format {
	switch f {
	case gfx.FormatR8G8B8A8Unorm:
		return vk.FormatR8g8b8a8Unorm
	case gfx.FormatB8G8R8A8Unorm:
		return vk.FormatB8g8r8a8Unorm
	case gfx.FormatR32G32B32A32Float:
		return vk.FormatR32g32b32a32Sfloat
	case gfx.FormatR32G32B32Float:
		return vk.FormatR32g32b32Sfloat
	case gfx.FormatR32G32Float:
		return vk.FormatR32g32Sfloat
	}
	return vk.FormatUndefined
}

func gfxFormat(f vk.Format) gfx.Format {
	switch f {
	case vk.FormatR8g8b8a8Unorm:
		return gfx.FormatR8G8B8A8Unorm
	case vk.FormatB8g8r8a8Unorm:
		return gfx.FormatB8G8R8A8Unorm
	case vk.FormatR32g32b32a32Sfloat:
		return gfx.FormatR32G32B32A32Float
	case vk.FormatR32g32b32Sfloat:
		return gfx.FormatR32G32B32Float
	case vk.FormatR32g32Sfloat:
		return gfx.FormatR32G32Float
	}
	return gfx.FormatUnknown
}

// imageLayout maps a resource state to the layout and access mask an
// image has while in it. Render targets use the general layout so that
// clears can be recorded outside of a render pass.
func imageLayout(s gfx.ResourceState) (vk.ImageLayout, vk.AccessFlags, bool) {
	switch s {
	case gfx.StatePresent:
		return vk.ImageLayoutPresentSrc, vk.AccessFlags(vk.AccessMemoryReadBit), true
	case gfx.StateRenderTarget:
		return vk.ImageLayoutGeneral, vk.AccessFlags(vk.AccessTransferWriteBit | vk.AccessColorAttachmentWriteBit), true
	case gfx.StatePixelShaderResource:
		return vk.ImageLayoutShaderReadOnlyOptimal, vk.AccessFlags(vk.AccessShaderReadBit), true
	case gfx.StateCopyDest:
		return vk.ImageLayoutTransferDstOptimal, vk.AccessFlags(vk.AccessTransferWriteBit), true
	case gfx.StateCopySource:
		return vk.ImageLayoutTransferSrcOptimal, vk.AccessFlags(vk.AccessTransferReadBit), true
	}
	return vk.ImageLayoutUndefined, 0, false
}

func shaderStages(v gfx.ShaderVisibility) vk.ShaderStageFlags {
	switch v {
	case gfx.VisibilityVertex:
		return vk.ShaderStageFlags(vk.ShaderStageVertexBit)
	case gfx.VisibilityHull:
		return vk.ShaderStageFlags(vk.ShaderStageTessellationControlBit)
	case gfx.VisibilityDomain:
		return vk.ShaderStageFlags(vk.ShaderStageTessellationEvaluationBit)
	case gfx.VisibilityGeometry:
		return vk.ShaderStageFlags(vk.ShaderStageGeometryBit)
	case gfx.VisibilityPixel:
		return vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
	}
	return vk.ShaderStageFlags(vk.ShaderStageAllGraphics)
}

func descriptorType(t gfx.DescriptorRangeType) vk.DescriptorType {
	switch t {
	case gfx.DescriptorRangeUAV:
		return vk.DescriptorTypeStorageImage
	case gfx.DescriptorRangeCBV:
		return vk.DescriptorTypeUniformBuffer
	case gfx.DescriptorRangeSampler:
		return vk.DescriptorTypeSampler
	}
	return vk.DescriptorTypeSampledImage
}

// samplerFilter splits a filter into min/mag filter, mipmap mode and
// whether anisotropy is enabled.
func samplerFilter(f gfx.Filter) (vk.Filter, vk.SamplerMipmapMode, bool) {
	switch f {
	case gfx.FilterMinMagPointMipLinear:
		return vk.FilterNearest, vk.SamplerMipmapModeLinear, false
	case gfx.FilterMinMagMipLinear:
		return vk.FilterLinear, vk.SamplerMipmapModeLinear, false
	case gfx.FilterAnisotropic:
		return vk.FilterLinear, vk.SamplerMipmapModeLinear, true
	}
	return vk.FilterNearest, vk.SamplerMipmapModeNearest, false
}

func addressMode(m gfx.TextureAddressMode) vk.SamplerAddressMode {
	switch m {
	case gfx.AddressMirror:
		return vk.SamplerAddressModeMirroredRepeat
	case gfx.AddressClamp:
		return vk.SamplerAddressModeClampToEdge
	case gfx.AddressBorder:
		return vk.SamplerAddressModeClampToBorder
	}
	return vk.SamplerAddressModeRepeat
}

func compareOp(c gfx.ComparisonFunc) vk.CompareOp {
	switch c {
	case gfx.ComparisonLess:
		return vk.CompareOpLess
	case gfx.ComparisonEqual:
		return vk.CompareOpEqual
	case gfx.ComparisonLessEqual:
		return vk.CompareOpLessOrEqual
	case gfx.ComparisonAlways:
		return vk.CompareOpAlways
	}
	return vk.CompareOpNever
}

func borderColor(c gfx.BorderColor) vk.BorderColor {
	switch c {
	case gfx.BorderOpaqueBlack:
		return vk.BorderColorFloatOpaqueBlack
	case gfx.BorderOpaqueWhite:
		return vk.BorderColorFloatOpaqueWhite
	}
	return vk.BorderColorFloatTransparentBlack
}

func cullMode(c gfx.CullMode) vk.CullModeFlags {
	switch c {
	case gfx.CullFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	case gfx.CullNone:
		return vk.CullModeFlags(vk.CullModeNone)
	}
	return vk.CullModeFlags(vk.CullModeBackBit)
}

// frontFace follows the clockwise-front convention unless told otherwise.
func frontFace(counterClockwise bool) vk.FrontFace {
	if counterClockwise {
		return vk.FrontFaceCounterClockwise
	}
	return vk.FrontFaceClockwise
}

func polygonMode(f gfx.FillMode) vk.PolygonMode {
	if f == gfx.FillWireframe {
		return vk.PolygonModeLine
	}
	return vk.PolygonModeFill
}

func topology(t gfx.PrimitiveTopologyType) (vk.PrimitiveTopology, bool) {
	switch t {
	case gfx.TopologyTypePoint:
		return vk.PrimitiveTopologyPointList, true
	case gfx.TopologyTypeLine:
		return vk.PrimitiveTopologyLineList, true
	case gfx.TopologyTypeTriangle:
		return vk.PrimitiveTopologyTriangleList, true
	}
	return vk.PrimitiveTopologyTriangleList, false
}

func blendFactor(b gfx.Blend) vk.BlendFactor {
	switch b {
	case gfx.BlendOne:
		return vk.BlendFactorOne
	case gfx.BlendSrcAlpha:
		return vk.BlendFactorSrcAlpha
	case gfx.BlendInvSrcAlpha:
		return vk.BlendFactorOneMinusSrcAlpha
	}
	return vk.BlendFactorZero
}

func blendOp(op gfx.BlendOp) vk.BlendOp {
	if op == gfx.BlendOpSubtract {
		return vk.BlendOpSubtract
	}
	return vk.BlendOpAdd
}

func vkBool(b bool) vk.Bool32 {
	if b {
		return vk.True
	}
	return vk.False
}

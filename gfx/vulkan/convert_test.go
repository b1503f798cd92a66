// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vulkan

import (
	"testing"

	"github.com/devblok/triangle/gfx"
	vk "github.com/devblok/vulkan"
	qt "github.com/frankban/quicktest"
)

func TestFormats(t *testing.T) {
	c := qt.New(t)

	for _, f := range []gfx.Format{
		gfx.FormatR8G8B8A8Unorm,
		gfx.FormatB8G8R8A8Unorm,
		gfx.FormatR32G32B32A32Float,
		gfx.FormatR32G32B32Float,
		gfx.FormatR32G32Float,
	} {
		c.Assert(gfxFormat(vkFormat(f)), qt.Equals, f)
	}
	c.Assert(vkFormat(gfx.FormatUnknown), qt.Equals, vk.FormatUndefined)
}

func TestRenderTargetLayouts(t *testing.T) {
	c := qt.New(t)

	present, _, ok := imageLayout(gfx.StatePresent)
	c.Assert(ok, qt.IsTrue)
	c.Assert(present, qt.Equals, vk.ImageLayoutPresentSrc)

	target, access, ok := imageLayout(gfx.StateRenderTarget)
	c.Assert(ok, qt.IsTrue)
	c.Assert(target, qt.Equals, vk.ImageLayoutGeneral)
	c.Assert(access&vk.AccessFlags(vk.AccessTransferWriteBit), qt.Not(qt.Equals), vk.AccessFlags(0))

	_, _, ok = imageLayout(gfx.ResourceState(0x1))
	c.Assert(ok, qt.IsFalse)
}

func TestFirstTransitionDiscards(t *testing.T) {
	c := qt.New(t)

	r := &Resource{}
	c.Assert(r.oldLayout(gfx.StatePresent), qt.Equals, vk.ImageLayoutUndefined)
	c.Assert(r.oldLayout(gfx.StateRenderTarget), qt.Equals, vk.ImageLayoutGeneral)
	c.Assert(r.oldLayout(gfx.StatePresent), qt.Equals, vk.ImageLayoutPresentSrc)
}

func TestRootSignatureBindings(t *testing.T) {
	c := qt.New(t)

	desc := gfx.RootSignatureDesc{
		Parameters: []gfx.RootParameter{
			gfx.DescriptorTableParameter(gfx.VisibilityAll, gfx.DescriptorRange{
				RangeType:      gfx.DescriptorRangeSRV,
				NumDescriptors: 2,
			}),
			gfx.ConstantBufferViewParameter(0, 0, gfx.VisibilityVertex),
		},
		StaticSamplers: []gfx.StaticSamplerDesc{
			gfx.NewStaticSampler(0, gfx.FilterMinMagMipPoint, gfx.AddressClamp, gfx.VisibilityGeometry),
			gfx.NewStaticSampler(1, gfx.FilterMinMagPointMipLinear, gfx.AddressWrap, gfx.VisibilityPixel),
		},
	}
	b := bindings(desc, nil)
	c.Assert(b, qt.HasLen, 4)

	c.Assert(b[0].Binding, qt.Equals, uint32(0))
	c.Assert(b[0].DescriptorType, qt.Equals, vk.DescriptorTypeSampledImage)
	c.Assert(b[0].DescriptorCount, qt.Equals, uint32(2))

	c.Assert(b[1].DescriptorType, qt.Equals, vk.DescriptorTypeUniformBuffer)
	c.Assert(b[1].StageFlags, qt.Equals, vk.ShaderStageFlags(vk.ShaderStageVertexBit))

	c.Assert(b[2].DescriptorType, qt.Equals, vk.DescriptorTypeSampler)
	c.Assert(b[2].StageFlags, qt.Equals, vk.ShaderStageFlags(vk.ShaderStageGeometryBit))
	c.Assert(b[3].Binding, qt.Equals, uint32(3))
	c.Assert(b[3].StageFlags, qt.Equals, vk.ShaderStageFlags(vk.ShaderStageFragmentBit))
}

func TestSamplerInfo(t *testing.T) {
	c := qt.New(t)

	point := samplerInfo(gfx.NewStaticSampler(0, gfx.FilterMinMagMipPoint, gfx.AddressClamp, gfx.VisibilityAll))
	c.Assert(point.MinFilter, qt.Equals, vk.FilterNearest)
	c.Assert(point.MipmapMode, qt.Equals, vk.SamplerMipmapModeNearest)
	c.Assert(point.AddressModeU, qt.Equals, vk.SamplerAddressModeClampToEdge)
	c.Assert(point.AnisotropyEnable, qt.Equals, vk.Bool32(vk.False))
	c.Assert(point.BorderColor, qt.Equals, vk.BorderColorFloatOpaqueWhite)

	mip := samplerInfo(gfx.NewStaticSampler(1, gfx.FilterMinMagPointMipLinear, gfx.AddressWrap, gfx.VisibilityAll))
	c.Assert(mip.MagFilter, qt.Equals, vk.FilterNearest)
	c.Assert(mip.MipmapMode, qt.Equals, vk.SamplerMipmapModeLinear)
	c.Assert(mip.AddressModeW, qt.Equals, vk.SamplerAddressModeRepeat)
}

func TestVertexInput(t *testing.T) {
	c := qt.New(t)

	vb, attrs := vertexInput([]gfx.InputElementDesc{
		{SemanticName: "POSITION", Format: gfx.FormatR32G32B32A32Float, AlignedByteOffset: gfx.AppendAlignedElement},
		{SemanticName: "TEXCOORD", Format: gfx.FormatR32G32Float, AlignedByteOffset: gfx.AppendAlignedElement},
	})
	c.Assert(vb, qt.HasLen, 1)
	c.Assert(vb[0].Stride, qt.Equals, uint32(24))
	c.Assert(vb[0].InputRate, qt.Equals, vk.VertexInputRateVertex)
	c.Assert(attrs[1].Location, qt.Equals, uint32(1))
	c.Assert(attrs[1].Offset, qt.Equals, uint32(16))
	c.Assert(attrs[1].Format, qt.Equals, vk.FormatR32g32Sfloat)

	vb, attrs = vertexInput(nil)
	c.Assert(vb, qt.IsNil)
	c.Assert(attrs, qt.IsNil)
}

func TestRasterState(t *testing.T) {
	c := qt.New(t)

	c.Assert(cullMode(gfx.CullBack), qt.Equals, vk.CullModeFlags(vk.CullModeBackBit))
	c.Assert(frontFace(false), qt.Equals, vk.FrontFaceClockwise)
	c.Assert(polygonMode(gfx.FillWireframe), qt.Equals, vk.PolygonModeLine)

	topo, ok := topology(gfx.TopologyTypeTriangle)
	c.Assert(ok, qt.IsTrue)
	c.Assert(topo, qt.Equals, vk.PrimitiveTopologyTriangleList)
	_, ok = topology(gfx.TopologyTypeUndefined)
	c.Assert(ok, qt.IsFalse)

	c.Assert(blendFactor(gfx.BlendInvSrcAlpha), qt.Equals, vk.BlendFactorOneMinusSrcAlpha)
	c.Assert(blendOp(gfx.BlendOpAdd), qt.Equals, vk.BlendOpAdd)
}

// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vulkan

import (
	"encoding/binary"
	"fmt"

	"github.com/devblok/triangle/core"
	"github.com/devblok/triangle/gfx"
	vk "github.com/devblok/vulkan"
)

const spirvMagic = 0x07230203

// bindings flattens a root signature into descriptor set bindings.
// Table ranges and root descriptors take consecutive binding numbers,
// static samplers follow them.
func bindings(desc gfx.RootSignatureDesc, samplers []vk.Sampler) []vk.DescriptorSetLayoutBinding {
	var out []vk.DescriptorSetLayoutBinding
	next := uint32(0)
	for _, p := range desc.Parameters {
		stages := shaderStages(p.ShaderVisibility)
		switch p.Type {
		case gfx.RootParameterDescriptorTable:
			for _, r := range p.Ranges {
				out = append(out, vk.DescriptorSetLayoutBinding{
					Binding:         next,
					DescriptorType:  descriptorType(r.RangeType),
					DescriptorCount: r.NumDescriptors,
					StageFlags:      stages,
				})
				next++
			}
		case gfx.RootParameterCBV, gfx.RootParameter32BitConstants:
			out = append(out, vk.DescriptorSetLayoutBinding{
				Binding:         next,
				DescriptorType:  vk.DescriptorTypeUniformBuffer,
				DescriptorCount: 1,
				StageFlags:      stages,
			})
			next++
		case gfx.RootParameterSRV:
			out = append(out, vk.DescriptorSetLayoutBinding{
				Binding:         next,
				DescriptorType:  vk.DescriptorTypeSampledImage,
				DescriptorCount: 1,
				StageFlags:      stages,
			})
			next++
		case gfx.RootParameterUAV:
			out = append(out, vk.DescriptorSetLayoutBinding{
				Binding:         next,
				DescriptorType:  vk.DescriptorTypeStorageImage,
				DescriptorCount: 1,
				StageFlags:      stages,
			})
			next++
		}
	}
	for i, s := range desc.StaticSamplers {
		b := vk.DescriptorSetLayoutBinding{
			Binding:         next,
			DescriptorType:  vk.DescriptorTypeSampler,
			DescriptorCount: 1,
			StageFlags:      shaderStages(s.ShaderVisibility),
		}
		if i < len(samplers) {
			b.PImmutableSamplers = []vk.Sampler{samplers[i]}
		}
		out = append(out, b)
		next++
	}
	return out
}

func samplerInfo(s gfx.StaticSamplerDesc) vk.SamplerCreateInfo {
	filter, mipmap, anisotropic := samplerFilter(s.Filter)
	return vk.SamplerCreateInfo{
		SType:            vk.StructureTypeSamplerCreateInfo,
		MagFilter:        filter,
		MinFilter:        filter,
		MipmapMode:       mipmap,
		AddressModeU:     addressMode(s.AddressU),
		AddressModeV:     addressMode(s.AddressV),
		AddressModeW:     addressMode(s.AddressW),
		MipLodBias:       s.MipLODBias,
		AnisotropyEnable: vkBool(anisotropic),
		MaxAnisotropy:    float32(s.MaxAnisotropy),
		CompareEnable:    vk.False,
		CompareOp:        compareOp(s.ComparisonFunc),
		MinLod:           s.MinLOD,
		MaxLod:           s.MaxLOD,
		BorderColor:      borderColor(s.BorderColor),
	}
}

func (d *Device) createRootSignature(desc gfx.RootSignatureDesc) (*RootSignature, error) {
	rs := &RootSignature{dev: d, desc: desc}
	for _, s := range desc.StaticSamplers {
		sci := samplerInfo(s)
		var sampler vk.Sampler
		if err := d.result("vk.CreateSampler()", vk.CreateSampler(d.device, &sci, nil, &sampler)); err != nil {
			rs.Release()
			return nil, err
		}
		rs.samplers = append(rs.samplers, sampler)
	}

	b := bindings(desc, rs.samplers)
	dslci := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(b)),
		PBindings:    b,
	}
	if err := d.result("vk.CreateDescriptorSetLayout()", vk.CreateDescriptorSetLayout(d.device, &dslci, nil, &rs.setLayout)); err != nil {
		rs.Release()
		return nil, err
	}

	plci := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: 1,
		PSetLayouts:    []vk.DescriptorSetLayout{rs.setLayout},
	}
	if err := d.result("vk.CreatePipelineLayout()", vk.CreatePipelineLayout(d.device, &plci, nil, &rs.layout)); err != nil {
		rs.Release()
		return nil, err
	}
	return rs, nil
}

func (d *Device) shaderModule(code []byte) (vk.ShaderModule, error) {
	if len(code) < 4 || len(code)%4 != 0 || binary.LittleEndian.Uint32(code) != spirvMagic {
		return nil, fmt.Errorf("%w: %w", gfx.ErrInvalidCall, errNotSPIRV)
	}
	smci := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    core.SliceUint32(code),
	}
	var module vk.ShaderModule
	if err := d.result("vk.CreateShaderModule()", vk.CreateShaderModule(d.device, &smci, nil, &module)); err != nil {
		return nil, err
	}
	return module, nil
}

func vertexInput(elements []gfx.InputElementDesc) ([]vk.VertexInputBindingDescription, []vk.VertexInputAttributeDescription) {
	if len(elements) == 0 {
		return nil, nil
	}
	stride, offsets := gfx.InputLayoutStride(elements)
	rate := vk.VertexInputRateVertex
	if elements[0].InputSlotClass == gfx.PerInstanceData {
		rate = vk.VertexInputRateInstance
	}
	attributes := make([]vk.VertexInputAttributeDescription, len(elements))
	for i, e := range elements {
		attributes[i] = vk.VertexInputAttributeDescription{
			Location: uint32(i),
			Binding:  e.InputSlot,
			Format:   vkFormat(e.Format),
			Offset:   offsets[i],
		}
	}
	return []vk.VertexInputBindingDescription{{
		Binding:   0,
		Stride:    stride,
		InputRate: rate,
	}}, attributes
}

// CreateGraphicsPipelineState implements gfx.Device. Shaders must be
// SPIR-V. The render pass keeps targets in the general layout and loads
// their contents.
func (d *Device) CreateGraphicsPipelineState(desc gfx.GraphicsPipelineStateDesc) (gfx.PipelineState, error) {
	if err := d.Err(); err != nil {
		return nil, err
	}
	rs, ok := desc.RootSignature.(*RootSignature)
	if !ok || rs.dev != d {
		return nil, fmt.Errorf("%w: pipeline needs a root signature from this device", gfx.ErrInvalidCall)
	}
	if len(desc.VS) == 0 {
		return nil, fmt.Errorf("%w: pipeline has no vertex shader", gfx.ErrInvalidCall)
	}
	topo, ok := topology(desc.PrimitiveTopologyType)
	if !ok {
		return nil, fmt.Errorf("%w: undefined primitive topology", gfx.ErrInvalidCall)
	}
	if desc.NumRenderTargets < 0 || desc.NumRenderTargets > len(desc.RTVFormats) {
		return nil, fmt.Errorf("%w: %d render targets", gfx.ErrInvalidCall, desc.NumRenderTargets)
	}
	if desc.SampleDesc.Count != 1 {
		return nil, fmt.Errorf("%w: sample count %d", gfx.ErrUnsupported, desc.SampleDesc.Count)
	}

	p := &PipelineState{dev: d, desc: desc}
	fail := func(err error) (gfx.PipelineState, error) {
		p.Release()
		return nil, err
	}

	var (
		attachments []vk.AttachmentDescription
		references  []vk.AttachmentReference
		blends      []vk.PipelineColorBlendAttachmentState
	)
	for i := 0; i < desc.NumRenderTargets; i++ {
		format := vkFormat(desc.RTVFormats[i])
		if format == vk.FormatUndefined {
			return fail(fmt.Errorf("%w: render target %d has no format", gfx.ErrInvalidCall, i))
		}
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         format,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpLoad,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutGeneral,
			FinalLayout:    vk.ImageLayoutGeneral,
		})
		references = append(references, vk.AttachmentReference{
			Attachment: uint32(i),
			Layout:     vk.ImageLayoutGeneral,
		})

		bd := desc.BlendState.RenderTarget[0]
		if desc.BlendState.IndependentBlendEnable {
			bd = desc.BlendState.RenderTarget[i]
		}
		blends = append(blends, vk.PipelineColorBlendAttachmentState{
			BlendEnable:         vkBool(bd.BlendEnable),
			SrcColorBlendFactor: blendFactor(bd.SrcBlend),
			DstColorBlendFactor: blendFactor(bd.DestBlend),
			ColorBlendOp:        blendOp(bd.BlendOp),
			SrcAlphaBlendFactor: blendFactor(bd.SrcBlendAlpha),
			DstAlphaBlendFactor: blendFactor(bd.DestBlendAlpha),
			AlphaBlendOp:        blendOp(bd.BlendOpAlpha),
			ColorWriteMask:      vk.ColorComponentFlags(bd.RenderTargetWriteMask),
		})
	}

	rpci := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses: []vk.SubpassDescription{{
			PipelineBindPoint:    vk.PipelineBindPointGraphics,
			ColorAttachmentCount: uint32(len(references)),
			PColorAttachments:    references,
		}},
	}
	if err := d.result("vk.CreateRenderPass()", vk.CreateRenderPass(d.device, &rpci, nil, &p.renderPass)); err != nil {
		return fail(err)
	}

	var stages []vk.PipelineShaderStageCreateInfo
	for _, s := range []struct {
		code  []byte
		stage vk.ShaderStageFlagBits
	}{
		{desc.VS, vk.ShaderStageVertexBit},
		{desc.PS, vk.ShaderStageFragmentBit},
	} {
		if len(s.code) == 0 {
			continue
		}
		module, err := d.shaderModule(s.code)
		if err != nil {
			return fail(err)
		}
		p.modules = append(p.modules, module)
		stages = append(stages, vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  s.stage,
			Module: module,
			PName:  core.SafeString("main"),
		})
	}

	vertexBindings, vertexAttributes := vertexInput(desc.InputLayout)
	raster := desc.RasterizerState
	gpci := []vk.GraphicsPipelineCreateInfo{{
		SType:      vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount: uint32(len(stages)),
		PStages:    stages,
		PVertexInputState: &vk.PipelineVertexInputStateCreateInfo{
			SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
			VertexBindingDescriptionCount:   uint32(len(vertexBindings)),
			PVertexBindingDescriptions:      vertexBindings,
			VertexAttributeDescriptionCount: uint32(len(vertexAttributes)),
			PVertexAttributeDescriptions:    vertexAttributes,
		},
		PInputAssemblyState: &vk.PipelineInputAssemblyStateCreateInfo{
			SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
			Topology: topo,
		},
		PViewportState: &vk.PipelineViewportStateCreateInfo{
			SType:         vk.StructureTypePipelineViewportStateCreateInfo,
			ViewportCount: 1,
			ScissorCount:  1,
		},
		PRasterizationState: &vk.PipelineRasterizationStateCreateInfo{
			SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
			DepthClampEnable:        vkBool(!raster.DepthClipEnable),
			RasterizerDiscardEnable: vkBool(len(desc.PS) == 0),
			PolygonMode:             polygonMode(raster.FillMode),
			CullMode:                cullMode(raster.CullMode),
			FrontFace:               frontFace(raster.FrontCounterClockwise),
			DepthBiasEnable:         vkBool(raster.DepthBias != 0 || raster.SlopeScaledDepthBias != 0),
			DepthBiasConstantFactor: float32(raster.DepthBias),
			DepthBiasClamp:          raster.DepthBiasClamp,
			DepthBiasSlopeFactor:    raster.SlopeScaledDepthBias,
			LineWidth:               1,
		},
		PMultisampleState: &vk.PipelineMultisampleStateCreateInfo{
			SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
			RasterizationSamples:  vk.SampleCount1Bit,
			PSampleMask:           []vk.SampleMask{vk.SampleMask(desc.SampleMask)},
			AlphaToCoverageEnable: vkBool(desc.BlendState.AlphaToCoverageEnable),
		},
		PColorBlendState: &vk.PipelineColorBlendStateCreateInfo{
			SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
			AttachmentCount: uint32(len(blends)),
			PAttachments:    blends,
		},
		PDynamicState: &vk.PipelineDynamicStateCreateInfo{
			SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
			DynamicStateCount: 2,
			PDynamicStates: []vk.DynamicState{
				vk.DynamicStateViewport,
				vk.DynamicStateScissor,
			},
		},
		Layout:     rs.layout,
		RenderPass: p.renderPass,
	}}

	pipelines := make([]vk.Pipeline, 1)
	if err := d.result("vk.CreateGraphicsPipelines()", vk.CreateGraphicsPipelines(d.device, nil, 1, gpci, nil, pipelines)); err != nil {
		return fail(err)
	}
	p.pipeline = pipelines[0]
	return p, nil
}

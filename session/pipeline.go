// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package session

import (
	"fmt"

	"github.com/devblok/triangle/event"
	"github.com/devblok/triangle/gfx"
	"github.com/devblok/triangle/model"
	log "github.com/sirupsen/logrus"
)

// RootSignatureDesc describes the resources the pipeline may bind:
// a table of two SRVs at t0, a CBV at b0, a point-clamp sampler for the
// geometry stage at s0 and a point-mip-linear wrap sampler for the pixel
// stage at s1.
func RootSignatureDesc() gfx.RootSignatureDesc {
	return gfx.RootSignatureDesc{
		Flags: gfx.RootSignatureAllowInputAssemblerInputLayout |
			gfx.RootSignatureDenyHullShaderRootAccess |
			gfx.RootSignatureDenyDomainShaderRootAccess |
			gfx.RootSignatureAllowStreamOutput,
		Parameters: []gfx.RootParameter{
			gfx.DescriptorTableParameter(gfx.VisibilityAll, gfx.DescriptorRange{
				RangeType:          gfx.DescriptorRangeSRV,
				NumDescriptors:     2,
				BaseShaderRegister: 0,
			}),
			gfx.ConstantBufferViewParameter(0, 0, gfx.VisibilityAll),
		},
		StaticSamplers: []gfx.StaticSamplerDesc{
			gfx.NewStaticSampler(0, gfx.FilterMinMagMipPoint, gfx.AddressClamp, gfx.VisibilityGeometry),
			gfx.NewStaticSampler(1, gfx.FilterMinMagPointMipLinear, gfx.AddressWrap, gfx.VisibilityPixel),
		},
	}
}

// PipelineStateDesc binds the vertex shader to the fixed function state:
// default rasterizer and blend, triangles, one render target.
func PipelineStateDesc(rootSignature gfx.RootSignature, vertexShader []byte) gfx.GraphicsPipelineStateDesc {
	desc := gfx.GraphicsPipelineStateDesc{
		RootSignature:         rootSignature,
		VS:                    vertexShader,
		InputLayout:           model.InputLayout(),
		RasterizerState:       gfx.DefaultRasterizerDesc(),
		BlendState:            gfx.DefaultBlendDesc(),
		SampleMask:            gfx.DefaultSampleMask,
		PrimitiveTopologyType: gfx.TopologyTypeTriangle,
		NumRenderTargets:      1,
		SampleDesc:            gfx.SampleDesc{Count: 1},
	}
	desc.RTVFormats[0] = RenderTargetFormat
	return desc
}

// loadPipeline creates the device, queue, swap chain, render target
// views and the command allocator.
func (s *Session) loadPipeline() error {
	adapters, err := s.factory.Adapters()
	if err != nil {
		return fmt.Errorf("Adapters(): %w", err)
	}
	adapter, err := gfx.SelectAdapter(adapters)
	if err != nil {
		return err
	}
	info := adapter.Info()
	s.log = s.log.WithField("adapter", info.Name)

	if s.device, err = s.factory.CreateDevice(adapter); err != nil {
		return fmt.Errorf("CreateDevice(): %w", err)
	}
	s.log.WithFields(log.Fields{
		"software": info.Software,
		"memory":   info.DedicatedVideoMemory,
	}).Debug("Created device")

	if s.commandQueue, err = s.device.CreateCommandQueue(gfx.CommandQueueDesc{Type: gfx.CommandListDirect}); err != nil {
		return fmt.Errorf("CreateCommandQueue(): %w", err)
	}

	s.swapChain, err = s.factory.CreateSwapChainForWindow(s.commandQueue, s.window, gfx.SwapChainDesc{
		Width:       s.width,
		Height:      s.height,
		Format:      RenderTargetFormat,
		SampleDesc:  gfx.SampleDesc{Count: 1},
		BufferUsage: gfx.UsageRenderTargetOutput,
		BufferCount: FrameCount,
		Scaling:     gfx.ScalingStretch,
		SwapEffect:  gfx.SwapEffectFlipDiscard,
	})
	if err != nil {
		return fmt.Errorf("CreateSwapChainForWindow(): %w", err)
	}

	// Fullscreen transitions are left to the host message loop.
	if err := s.factory.MakeWindowAssociation(s.window, gfx.NoAltEnter); err != nil {
		return fmt.Errorf("MakeWindowAssociation(): %w", err)
	}
	s.frameIndex = s.swapChain.CurrentBackBufferIndex()

	if s.rtvHeap, err = s.device.CreateDescriptorHeap(gfx.DescriptorHeapDesc{
		Type:           gfx.DescriptorHeapRTV,
		NumDescriptors: FrameCount,
	}); err != nil {
		return fmt.Errorf("CreateDescriptorHeap(): %w", err)
	}
	s.rtvDescriptorSize = s.device.DescriptorHandleIncrementSize(gfx.DescriptorHeapRTV)

	handle := s.rtvHeap.CPUDescriptorHandleForHeapStart()
	for n := 0; n < FrameCount; n++ {
		rt, err := s.swapChain.Buffer(n)
		if err != nil {
			return fmt.Errorf("SwapChain.Buffer(%d): %w", n, err)
		}
		if err := s.device.CreateRenderTargetView(rt, handle); err != nil {
			return fmt.Errorf("CreateRenderTargetView(%d): %w", n, err)
		}
		rt.SetName(RenderTargetName)
		s.renderTargets[n] = rt
		handle = handle.Offset(1, s.rtvDescriptorSize)
	}

	if s.commandAllocator, err = s.device.CreateCommandAllocator(gfx.CommandListDirect); err != nil {
		return fmt.Errorf("CreateCommandAllocator(): %w", err)
	}
	return nil
}

// loadAssets creates the root signature, pipeline state, command list
// and fence, then waits once so the frame loop starts with an idle GPU.
func (s *Session) loadAssets() error {
	blob, err := gfx.SerializeRootSignature(RootSignatureDesc())
	if err != nil {
		return fmt.Errorf("SerializeRootSignature(): %w", err)
	}
	if s.rootSignature, err = s.device.CreateRootSignature(blob); err != nil {
		return fmt.Errorf("CreateRootSignature(): %w", err)
	}

	vertexShader, err := s.shaders.Compile(s.vertexShader, VertexShaderEntry, VertexShaderTarget)
	if err != nil {
		return fmt.Errorf("compile %s: %w", s.vertexShader, err)
	}

	if s.pipelineState, err = s.device.CreateGraphicsPipelineState(PipelineStateDesc(s.rootSignature, vertexShader)); err != nil {
		return fmt.Errorf("CreateGraphicsPipelineState(): %w", err)
	}

	if s.commandList, err = s.device.CreateCommandList(gfx.CommandListDirect, s.commandAllocator, s.pipelineState); err != nil {
		return fmt.Errorf("CreateCommandList(): %w", err)
	}
	// Lists are created recording, the frame loop expects it closed.
	if err := s.commandList.Close(); err != nil {
		return fmt.Errorf("CommandList.Close(): %w", err)
	}

	if s.fence, err = s.device.CreateFence(0); err != nil {
		return fmt.Errorf("CreateFence(): %w", err)
	}
	s.fenceValue = 1

	if s.fenceEvent, err = event.New(); err != nil {
		return fmt.Errorf("create fence event: %w", err)
	}

	return s.WaitForPreviousFrame()
}

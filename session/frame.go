// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package session

import (
	"fmt"

	"github.com/devblok/triangle/gfx"
	log "github.com/sirupsen/logrus"
)

// FillCommandList records the frame. The previous frame must be complete,
// which WaitForPreviousFrame guarantees.
func (s *Session) FillCommandList() error {
	if err := s.commandAllocator.Reset(); err != nil {
		return fmt.Errorf("CommandAllocator.Reset(): %w", err)
	}
	if err := s.commandList.Reset(s.commandAllocator, s.pipelineState); err != nil {
		return fmt.Errorf("CommandList.Reset(): %w", err)
	}

	s.commandList.SetGraphicsRootSignature(s.rootSignature)
	s.commandList.RSSetViewports(s.viewport)
	s.commandList.RSSetScissorRects(s.scissorRect)

	renderTarget := s.renderTargets[s.frameIndex]
	s.commandList.ResourceBarrier(gfx.TransitionBarrier(renderTarget, gfx.StatePresent, gfx.StateRenderTarget))

	rtv := s.rtvHeap.CPUDescriptorHandleForHeapStart().Offset(s.frameIndex, s.rtvDescriptorSize)
	s.commandList.OMSetRenderTargets([]gfx.CPUDescriptorHandle{rtv}, nil)
	s.commandList.ClearRenderTargetView(rtv, [4]float32(ClearColor))

	s.commandList.ResourceBarrier(gfx.TransitionBarrier(renderTarget, gfx.StateRenderTarget, gfx.StatePresent))

	if err := s.commandList.Close(); err != nil {
		return fmt.Errorf("CommandList.Close(): %w", err)
	}
	return nil
}

// WaitForPreviousFrame signals the fence behind everything submitted so
// far and blocks until the GPU reaches it. Afterwards no submitted work is
// pending and the frame index names the next back buffer.
func (s *Session) WaitForPreviousFrame() error {
	fence := s.fenceValue
	if err := s.commandQueue.Signal(s.fence, fence); err != nil {
		return fmt.Errorf("Signal(): %w", err)
	}
	s.fenceValue++

	if s.fence.CompletedValue() < fence {
		if err := s.fence.SetEventOnCompletion(fence, s.fenceEvent); err != nil {
			return fmt.Errorf("SetEventOnCompletion(): %w", err)
		}
		if err := s.fenceEvent.Wait(); err != nil {
			return fmt.Errorf("wait for fence %d: %w", fence, err)
		}
	}

	s.frameIndex = s.swapChain.CurrentBackBufferIndex()
	s.log.WithFields(log.Fields{
		"fence": fence,
		"frame": s.frameIndex,
	}).Trace("Previous frame complete")
	return nil
}

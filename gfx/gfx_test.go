// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import (
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"
)

type testAdapter AdapterInfo

func (a testAdapter) Info() AdapterInfo { return AdapterInfo(a) }

func TestSelectAdapter(t *testing.T) {
	c := qt.New(t)

	_, err := SelectAdapter(nil)
	c.Assert(err, qt.Equals, ErrNoAdapter)

	soft := testAdapter{ID: 0, Name: "soft", Software: true}
	hw := testAdapter{ID: 1, Name: "hw"}
	hw2 := testAdapter{ID: 2, Name: "hw2"}

	a, err := SelectAdapter([]Adapter{soft, hw, hw2})
	c.Assert(err, qt.IsNil)
	c.Assert(a.Info().Name, qt.Equals, "hw")

	a, err = SelectAdapter([]Adapter{soft})
	c.Assert(err, qt.IsNil)
	c.Assert(a.Info().Name, qt.Equals, "soft")
}

func TestDescriptorHandleOffset(t *testing.T) {
	c := qt.New(t)

	start := CPUDescriptorHandle{Ptr: 0x1000}
	c.Assert(start.Offset(0, 32), qt.Equals, start)
	c.Assert(start.Offset(1, 32).Ptr, qt.Equals, uintptr(0x1020))
	c.Assert(start.Offset(3, 32).Offset(-2, 32).Ptr, qt.Equals, uintptr(0x1020))
}

func TestInputLayoutStride(t *testing.T) {
	c := qt.New(t)

	stride, offsets := InputLayoutStride([]InputElementDesc{
		{SemanticName: "POSITION", Format: FormatR32G32B32A32Float, AlignedByteOffset: AppendAlignedElement},
		{SemanticName: "TEXCOORD", Format: FormatR32G32Float, AlignedByteOffset: AppendAlignedElement},
	})
	c.Assert(stride, qt.Equals, uint32(24))
	c.Assert(offsets, qt.DeepEquals, []uint32{0, 16})
}

func TestRootSignatureSerialization(t *testing.T) {
	c := qt.New(t)

	desc := RootSignatureDesc{
		Flags: RootSignatureAllowInputAssemblerInputLayout | RootSignatureAllowStreamOutput,
		Parameters: []RootParameter{
			DescriptorTableParameter(VisibilityAll, DescriptorRange{RangeType: DescriptorRangeSRV, NumDescriptors: 2}),
			ConstantBufferViewParameter(0, 0, VisibilityAll),
		},
		StaticSamplers: []StaticSamplerDesc{
			NewStaticSampler(0, FilterMinMagMipPoint, AddressClamp, VisibilityGeometry),
			NewStaticSampler(1, FilterMinMagPointMipLinear, AddressWrap, VisibilityPixel),
		},
	}

	blob, err := SerializeRootSignature(desc)
	c.Assert(err, qt.IsNil)

	got, err := DeserializeRootSignature(blob)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Flags, qt.Equals, desc.Flags)
	c.Assert(got.Parameters, qt.HasLen, 2)
	c.Assert(got.Parameters[0].Ranges[0].NumDescriptors, qt.Equals, uint32(2))
	c.Assert(got.Parameters[1].Type, qt.Equals, RootParameterCBV)
	c.Assert(got.StaticSamplers[1].ShaderVisibility, qt.Equals, VisibilityPixel)
}

func TestRootSignatureValidation(t *testing.T) {
	c := qt.New(t)

	_, err := SerializeRootSignature(RootSignatureDesc{
		Parameters: []RootParameter{DescriptorTableParameter(VisibilityAll)},
	})
	c.Assert(errors.Is(err, ErrRootSignature), qt.IsTrue)

	_, err = SerializeRootSignature(RootSignatureDesc{
		StaticSamplers: []StaticSamplerDesc{
			NewStaticSampler(0, FilterMinMagMipPoint, AddressClamp, VisibilityAll),
			NewStaticSampler(0, FilterMinMagMipLinear, AddressWrap, VisibilityAll),
		},
	})
	c.Assert(errors.Is(err, ErrRootSignature), qt.IsTrue)

	_, err = DeserializeRootSignature([]byte("nope"))
	c.Assert(errors.Is(err, ErrRootSignature), qt.IsTrue)
}

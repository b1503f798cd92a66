// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
)

// RootSignatureFlags alter root signature layout.
type RootSignatureFlags uint32

// Root signature flags
const (
	RootSignatureAllowInputAssemblerInputLayout RootSignatureFlags = 1 << iota
	RootSignatureDenyVertexShaderRootAccess
	RootSignatureDenyHullShaderRootAccess
	RootSignatureDenyDomainShaderRootAccess
	RootSignatureDenyGeometryShaderRootAccess
	RootSignatureDenyPixelShaderRootAccess
	RootSignatureAllowStreamOutput
)

// ShaderVisibility selects the stages a root parameter or sampler is visible to.
type ShaderVisibility int

// Shader visibilities
const (
	VisibilityAll ShaderVisibility = iota
	VisibilityVertex
	VisibilityHull
	VisibilityDomain
	VisibilityGeometry
	VisibilityPixel
)

// RootParameterType is the kind of a root parameter.
type RootParameterType int

// Root parameter types
const (
	RootParameterDescriptorTable RootParameterType = iota
	RootParameter32BitConstants
	RootParameterCBV
	RootParameterSRV
	RootParameterUAV
)

// DescriptorRangeType is the kind of descriptors in a table range.
type DescriptorRangeType int

// Descriptor range types
const (
	DescriptorRangeSRV DescriptorRangeType = iota
	DescriptorRangeUAV
	DescriptorRangeCBV
	DescriptorRangeSampler
)

// DescriptorRange is a run of descriptors inside a descriptor table.
type DescriptorRange struct {
	RangeType          DescriptorRangeType
	NumDescriptors     uint32
	BaseShaderRegister uint32
	RegisterSpace      uint32
}

// RootDescriptor addresses an inline root descriptor.
type RootDescriptor struct {
	ShaderRegister uint32
	RegisterSpace  uint32
}

// RootParameter is one slot of a root signature.
type RootParameter struct {
	Type             RootParameterType
	Ranges           []DescriptorRange
	Descriptor       RootDescriptor
	ShaderVisibility ShaderVisibility
}

// DescriptorTableParameter returns a descriptor table parameter over ranges.
func DescriptorTableParameter(visibility ShaderVisibility, ranges ...DescriptorRange) RootParameter {
	return RootParameter{
		Type:             RootParameterDescriptorTable,
		Ranges:           ranges,
		ShaderVisibility: visibility,
	}
}

// ConstantBufferViewParameter returns an inline CBV parameter.
func ConstantBufferViewParameter(register, space uint32, visibility ShaderVisibility) RootParameter {
	return RootParameter{
		Type:             RootParameterCBV,
		Descriptor:       RootDescriptor{ShaderRegister: register, RegisterSpace: space},
		ShaderVisibility: visibility,
	}
}

// Filter is a sampler filter.
type Filter int

// Sampler filters
const (
	FilterMinMagMipPoint Filter = iota
	FilterMinMagPointMipLinear
	FilterMinMagMipLinear
	FilterAnisotropic
)

// TextureAddressMode decides sampling outside [0, 1].
type TextureAddressMode int

// Address modes
const (
	AddressWrap TextureAddressMode = iota
	AddressMirror
	AddressClamp
	AddressBorder
)

// ComparisonFunc is a depth or sampler comparison.
type ComparisonFunc int

// Comparison functions
const (
	ComparisonNever ComparisonFunc = iota
	ComparisonLess
	ComparisonEqual
	ComparisonLessEqual
	ComparisonAlways
)

// BorderColor of a static sampler
type BorderColor int

// Border colors
const (
	BorderTransparentBlack BorderColor = iota
	BorderOpaqueBlack
	BorderOpaqueWhite
)

// StaticSamplerDesc is a sampler baked into a root signature.
type StaticSamplerDesc struct {
	Filter           Filter
	AddressU         TextureAddressMode
	AddressV         TextureAddressMode
	AddressW         TextureAddressMode
	MipLODBias       float32
	MaxAnisotropy    uint32
	ComparisonFunc   ComparisonFunc
	BorderColor      BorderColor
	MinLOD           float32
	MaxLOD           float32
	ShaderRegister   uint32
	RegisterSpace    uint32
	ShaderVisibility ShaderVisibility
}

// NewStaticSampler returns a sampler at register using the same address
// mode on every axis, with the usual defaults for everything else.
func NewStaticSampler(register uint32, filter Filter, address TextureAddressMode, visibility ShaderVisibility) StaticSamplerDesc {
	return StaticSamplerDesc{
		Filter:           filter,
		AddressU:         address,
		AddressV:         address,
		AddressW:         address,
		MaxAnisotropy:    16,
		ComparisonFunc:   ComparisonLessEqual,
		BorderColor:      BorderOpaqueWhite,
		MaxLOD:           math.MaxFloat32,
		ShaderRegister:   register,
		ShaderVisibility: visibility,
	}
}

// RootSignatureDesc describes a root signature.
type RootSignatureDesc struct {
	Parameters     []RootParameter
	StaticSamplers []StaticSamplerDesc
	Flags          RootSignatureFlags
}

const rootSignatureMagic = "RTS1"

// ErrRootSignature is wrapped by serialization failures.
var ErrRootSignature = errors.New("gfx: bad root signature")

// Validate checks the description for structural errors.
func (d RootSignatureDesc) Validate() error {
	for i, p := range d.Parameters {
		if p.Type == RootParameterDescriptorTable {
			if len(p.Ranges) == 0 {
				return fmt.Errorf("%w: parameter %d is a table without ranges", ErrRootSignature, i)
			}
			for j, r := range p.Ranges {
				if r.NumDescriptors == 0 {
					return fmt.Errorf("%w: parameter %d range %d is empty", ErrRootSignature, i, j)
				}
			}
		}
	}
	seen := make(map[[2]uint32]bool, len(d.StaticSamplers))
	for i, s := range d.StaticSamplers {
		key := [2]uint32{s.ShaderRegister, s.RegisterSpace}
		if seen[key] {
			return fmt.Errorf("%w: sampler %d reuses register s%d", ErrRootSignature, i, s.ShaderRegister)
		}
		seen[key] = true
	}
	return nil
}

// SerializeRootSignature validates desc and encodes it into a blob
// accepted by Device.CreateRootSignature.
func SerializeRootSignature(desc RootSignatureDesc) ([]byte, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(rootSignatureMagic)
	if err := gob.NewEncoder(&buf).Encode(desc); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRootSignature, err)
	}
	return buf.Bytes(), nil
}

// DeserializeRootSignature decodes a blob made by SerializeRootSignature.
func DeserializeRootSignature(blob []byte) (RootSignatureDesc, error) {
	var desc RootSignatureDesc
	if len(blob) < len(rootSignatureMagic) || string(blob[:len(rootSignatureMagic)]) != rootSignatureMagic {
		return desc, fmt.Errorf("%w: missing header", ErrRootSignature)
	}
	if err := gob.NewDecoder(bytes.NewReader(blob[len(rootSignatureMagic):])).Decode(&desc); err != nil {
		return desc, fmt.Errorf("%w: %s", ErrRootSignature, err)
	}
	return desc, desc.Validate()
}

// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package shader

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

// SPIRVMagic opens every SPIR-V module.
const SPIRVMagic = 0x07230203

var targetPattern = regexp.MustCompile(`^(vs|ps|gs|hs|ds|cs)_([0-9])_([0-9])$`)

const bytecodeMagic = "TRBC"

// Bytecode is the output of the Reference compiler.
type Bytecode struct {
	Target string
	Entry  string
	Source []byte
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (b Bytecode) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(bytecodeMagic)
	buf.WriteString(b.Target)
	buf.WriteByte(0)
	buf.WriteString(b.Entry)
	buf.WriteByte(0)
	buf.Write(b.Source)
	return buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (b *Bytecode) UnmarshalBinary(data []byte) error {
	if !bytes.HasPrefix(data, []byte(bytecodeMagic)) {
		return fmt.Errorf("%w: not reference bytecode", ErrCompile)
	}
	parts := bytes.SplitN(data[len(bytecodeMagic):], []byte{0}, 3)
	if len(parts) != 3 {
		return fmt.Errorf("%w: truncated reference bytecode", ErrCompile)
	}
	b.Target, b.Entry, b.Source = string(parts[0]), string(parts[1]), parts[2]
	return nil
}

// Reference checks a shader for a valid target profile and the presence of
// its entry point and packages it as Bytecode. It is the compiler of the
// software backend, which does not execute shaders.
type Reference struct{}

// Compile implements Compiler.
func (Reference) Compile(name string, src []byte, entry, target string) ([]byte, error) {
	if !targetPattern.MatchString(target) {
		return nil, fmt.Errorf("%w: %s: unknown target %q", ErrCompile, name, target)
	}
	if entry == "" {
		return nil, fmt.Errorf("%w: %s: empty entry point", ErrCompile, name)
	}
	entryPattern := regexp.MustCompile(`\b` + regexp.QuoteMeta(entry) + `\s*\(`)
	if !entryPattern.Match(src) {
		return nil, fmt.Errorf("%w: %s: entry point %q not found", ErrCompile, name, entry)
	}
	return Bytecode{Target: target, Entry: entry, Source: src}.MarshalBinary()
}

// Precompiled passes SPIR-V modules through unchanged.
type Precompiled struct{}

// Compile implements Compiler.
func (Precompiled) Compile(name string, src []byte, entry, target string) ([]byte, error) {
	if err := ValidateSPIRV(src); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return src, nil
}

// ValidateSPIRV checks the length and magic of a SPIR-V module.
func ValidateSPIRV(code []byte) error {
	if len(code) < 20 || len(code)%4 != 0 {
		return fmt.Errorf("%w: SPIR-V module of %d bytes", ErrCompile, len(code))
	}
	if binary.LittleEndian.Uint32(code) != SPIRVMagic {
		return fmt.Errorf("%w: missing SPIR-V magic", ErrCompile)
	}
	return nil
}

// External runs a compiler executable. Args may use the placeholders
// {in}, {out}, {entry}, {target} and {stage}.
type External struct {
	Tool string
	Args []string
}

// Glslc returns the glslc invocation producing SPIR-V.
func Glslc(tool string) *External {
	if tool == "" {
		tool = "glslc"
	}
	return &External{
		Tool: tool,
		Args: []string{"-fshader-stage={stage}", "-o", "{out}", "{in}"},
	}
}

var glslStages = map[string]string{
	"vertex":   "vert",
	"pixel":    "frag",
	"geometry": "geom",
	"hull":     "tesc",
	"domain":   "tese",
	"compute":  "comp",
}

// Compile implements Compiler.
func (e *External) Compile(name string, src []byte, entry, target string) ([]byte, error) {
	dir, err := os.MkdirTemp("", "shader")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, filepath.Base(name))
	out := in + ".spv"
	if err := os.WriteFile(in, src, 0o600); err != nil {
		return nil, err
	}

	replacer := strings.NewReplacer(
		"{in}", in,
		"{out}", out,
		"{entry}", entry,
		"{target}", target,
		"{stage}", glslStages[Stage(target)],
	)
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		args[i] = replacer.Replace(a)
	}

	if output, err := exec.Command(e.Tool, args...).CombinedOutput(); err != nil {
		return nil, fmt.Errorf("%w: %s %s: %s: %s", ErrCompile, e.Tool, name, err, bytes.TrimSpace(output))
	}
	return os.ReadFile(out)
}

// Compiler names accepted by Defaults
const (
	CompilerSPIRV = "spv"
)

// Defaults returns the vertex shader name and compiler used with a backend.
// tool names an external compiler; "spv" selects precompiled modules.
func Defaults(backend, tool string) (string, Compiler) {
	if backend != "vulkan" {
		return "BaseVS.hlsl", Reference{}
	}
	if tool == CompilerSPIRV {
		return "base.vert.spv", Precompiled{}
	}
	return "base.vert", Glslc(tool)
}

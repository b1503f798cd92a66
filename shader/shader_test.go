// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package shader

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/devblok/triangle/config"
	"github.com/devblok/triangle/utility/kar"
	qt "github.com/frankban/quicktest"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestEmbeddedSources(t *testing.T) {
	c := qt.New(t)

	src, err := Embedded().Find("BaseVS.hlsl")
	c.Assert(err, qt.IsNil)
	c.Assert(string(src), qt.Contains, "SV_POSITION")

	_, err = Embedded().Find("missing.hlsl")
	c.Assert(errors.Is(err, ErrNotFound), qt.IsTrue)
}

func TestWalkEmbedded(t *testing.T) {
	c := qt.New(t)

	var names []string
	err := WalkEmbedded(func(name string, r io.Reader) error {
		data, err := io.ReadAll(r)
		c.Assert(err, qt.IsNil)
		c.Assert(len(data) > 0, qt.IsTrue)
		names = append(names, name)
		return nil
	})
	c.Assert(err, qt.IsNil)
	c.Assert(names, qt.Contains, "BaseVS.hlsl")
	c.Assert(names, qt.Contains, "base.vert")
}

func TestDirSource(t *testing.T) {
	c := qt.New(t)

	root := c.TempDir()
	dir := filepath.Join(root, "shaders")
	c.Assert(os.Mkdir(dir, 0o755), qt.IsNil)
	c.Assert(os.WriteFile(filepath.Join(dir, "a.hlsl"), []byte("float4 main() {}"), 0o644), qt.IsNil)
	c.Assert(os.WriteFile(filepath.Join(root, "secret.hlsl"), []byte("float4 main() {}"), 0o644), qt.IsNil)

	src, err := Dir(dir).Find("a.hlsl")
	c.Assert(err, qt.IsNil)
	c.Assert(string(src), qt.Equals, "float4 main() {}")

	_, err = Dir(dir).Find("../secret.hlsl")
	c.Assert(errors.Is(err, ErrNotFound), qt.IsTrue)
}

func TestBundleSource(t *testing.T) {
	c := qt.New(t)

	b, err := kar.NewBuilder(kar.Header{Version: 1})
	c.Assert(err, qt.IsNil)
	defer b.Close()
	c.Assert(b.Add("BaseVS.hlsl", bytes.NewReader([]byte("float4 main(float4 p : POSITION) : SV_POSITION { return p; }"))), qt.IsNil)
	var buf bytes.Buffer
	_, err = b.WriteTo(&buf)
	c.Assert(err, qt.IsNil)
	ar, err := kar.Open(bytes.NewReader(buf.Bytes()))
	c.Assert(err, qt.IsNil)

	src, err := Bundle(ar).Find("BaseVS.hlsl")
	c.Assert(err, qt.IsNil)
	c.Assert(string(src), qt.Contains, "return p;")

	_, err = Bundle(ar).Find("other.hlsl")
	c.Assert(errors.Is(err, ErrNotFound), qt.IsTrue)
}

func TestReferenceCompiler(t *testing.T) {
	c := qt.New(t)

	src := []byte("float4 main(float4 p : POSITION) : SV_POSITION { return p; }")
	code, err := Reference{}.Compile("vs.hlsl", src, "main", "vs_5_1")
	c.Assert(err, qt.IsNil)

	var bc Bytecode
	c.Assert(bc.UnmarshalBinary(code), qt.IsNil)
	c.Assert(bc.Target, qt.Equals, "vs_5_1")
	c.Assert(bc.Entry, qt.Equals, "main")
	c.Assert(bc.Source, qt.DeepEquals, src)

	_, err = Reference{}.Compile("vs.hlsl", src, "VSMain", "vs_5_1")
	c.Assert(errors.Is(err, ErrCompile), qt.IsTrue)

	_, err = Reference{}.Compile("vs.hlsl", src, "main", "vs_6")
	c.Assert(errors.Is(err, ErrCompile), qt.IsTrue)
}

func TestPrecompiled(t *testing.T) {
	c := qt.New(t)

	module := make([]byte, 20)
	binary.LittleEndian.PutUint32(module, SPIRVMagic)
	code, err := Precompiled{}.Compile("base.vert.spv", module, "main", "vs_5_1")
	c.Assert(err, qt.IsNil)
	c.Assert(code, qt.DeepEquals, module)

	_, err = Precompiled{}.Compile("base.vert.spv", []byte("nope"), "main", "vs_5_1")
	c.Assert(errors.Is(err, ErrCompile), qt.IsTrue)
}

func TestExternalCompilerFailure(t *testing.T) {
	c := qt.New(t)

	e := &External{Tool: filepath.Join(c.TempDir(), "no-such-compiler")}
	_, err := e.Compile("base.vert", []byte("void main() {}"), "main", "vs_5_1")
	c.Assert(errors.Is(err, ErrCompile), qt.IsTrue)
}

func TestLibraryLogsCompilation(t *testing.T) {
	c := qt.New(t)

	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.InfoLevel)
	lib := NewLibrary(Embedded(), Reference{}, logger)

	code, err := lib.Compile("BaseVS.hlsl", "main", "vs_5_1")
	c.Assert(err, qt.IsNil)
	c.Assert(len(code) > 0, qt.IsTrue)
	c.Assert(hook.LastEntry().Message, qt.Equals, "Compiled main vertex shader")
}

func TestDefaults(t *testing.T) {
	c := qt.New(t)

	name, comp := Defaults("soft", "")
	c.Assert(name, qt.Equals, "BaseVS.hlsl")
	c.Assert(comp, qt.Equals, Compiler(Reference{}))

	name, comp = Defaults("vulkan", "")
	c.Assert(name, qt.Equals, "base.vert")
	c.Assert(comp.(*External).Tool, qt.Equals, "glslc")

	name, _ = Defaults("vulkan", CompilerSPIRV)
	c.Assert(name, qt.Equals, "base.vert.spv")
}

func TestLoad(t *testing.T) {
	c := qt.New(t)
	logger, _ := test.NewNullLogger()

	cfg := config.Default()
	lib, name, closeFn, err := Load(cfg, logger)
	c.Assert(err, qt.IsNil)
	c.Assert(name, qt.Equals, "BaseVS.hlsl")
	_, err = lib.Compile(name, "main", "vs_5_1")
	c.Assert(err, qt.IsNil)
	c.Assert(closeFn(), qt.IsNil)

	dir := c.TempDir()
	c.Assert(os.WriteFile(filepath.Join(dir, "base.vert.spv"), []byte("x"), 0o644), qt.IsNil)
	cfg.Renderer.Backend = config.BackendVulkan
	cfg.Shader = config.ShaderConfiguration{Directory: dir, Compiler: CompilerSPIRV}
	lib, name, _, err = Load(cfg, logger)
	c.Assert(err, qt.IsNil)
	c.Assert(name, qt.Equals, "base.vert.spv")
	_, err = lib.Compile(name, "main", "vs_5_1")
	c.Assert(errors.Is(err, ErrCompile), qt.IsTrue)

	cfg.Shader = config.ShaderConfiguration{Bundle: filepath.Join(dir, "missing.kar")}
	_, _, _, err = Load(cfg, logger)
	c.Assert(err, qt.Not(qt.IsNil))
}

// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package shader finds shader sources and compiles them into the
// bytecode a gfx backend accepts.
package shader

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/devblok/triangle/utility/kar"
	"github.com/gobuffalo/packd"
	"github.com/gobuffalo/packr"
	log "github.com/sirupsen/logrus"
)

// package errors
var (
	ErrNotFound = errors.New("shader: source not found")
	ErrCompile  = errors.New("shader: compilation failed")
)

// Source finds shader sources by name.
type Source interface {
	Find(name string) ([]byte, error)
}

// Compiler turns source into backend bytecode.
type Compiler interface {
	Compile(name string, src []byte, entry, target string) ([]byte, error)
}

type boxSource struct {
	box packr.Box
}

// Embedded returns the sources built into the binary.
func Embedded() Source {
	return boxSource{box: packr.NewBox("./assets")}
}

func (s boxSource) Find(name string) ([]byte, error) {
	if !s.box.Has(name) {
		return nil, fmt.Errorf("%w: %s (embedded)", ErrNotFound, name)
	}
	return s.box.Find(name)
}

// WalkEmbedded calls fn with every source built into the binary.
func WalkEmbedded(fn func(name string, r io.Reader) error) error {
	return packr.NewBox("./assets").Walk(func(name string, f packd.File) error {
		return fn(name, f)
	})
}

type dirSource string

// Dir returns the sources in a directory. Names cannot escape it.
func Dir(path string) Source {
	return dirSource(path)
}

func (d dirSource) Find(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(string(d), filepath.Clean("/"+name)))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, name, string(d))
	}
	return data, err
}

type bundleSource struct {
	ar *kar.Archive
}

// Bundle returns the sources stored in a kar archive.
func Bundle(ar *kar.Archive) Source {
	return bundleSource{ar: ar}
}

func (b bundleSource) Find(name string) ([]byte, error) {
	data, err := b.ar.ReadAll(name)
	if errors.Is(err, kar.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s (bundle)", ErrNotFound, name)
	}
	return data, err
}

// Library resolves shaders by name and compiles them.
type Library struct {
	source   Source
	compiler Compiler
	log      log.FieldLogger
}

// NewLibrary creates a library. A nil logger uses the standard logger.
func NewLibrary(source Source, compiler Compiler, logger log.FieldLogger) *Library {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Library{
		source:   source,
		compiler: compiler,
		log:      logger,
	}
}

// Compile finds and compiles the named shader.
func (l *Library) Compile(name, entry, target string) ([]byte, error) {
	src, err := l.source.Find(name)
	if err != nil {
		return nil, err
	}
	code, err := l.compiler.Compile(name, src, entry, target)
	if err != nil {
		return nil, err
	}
	l.log.WithFields(log.Fields{
		"shader": name,
		"target": target,
		"size":   len(code),
	}).Infof("Compiled %s %s shader", entry, Stage(target))
	return code, nil
}

// Stage returns the pipeline stage name of a target profile such as vs_5_1.
func Stage(target string) string {
	prefix := target
	if i := strings.IndexByte(target, '_'); i >= 0 {
		prefix = target[:i]
	}
	switch prefix {
	case "vs":
		return "vertex"
	case "ps":
		return "pixel"
	case "gs":
		return "geometry"
	case "hs":
		return "hull"
	case "ds":
		return "domain"
	case "cs":
		return "compute"
	}
	return "unknown"
}

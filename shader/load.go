// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package shader

import (
	"fmt"

	"github.com/devblok/triangle/config"
	"github.com/devblok/triangle/utility/kar"
	log "github.com/sirupsen/logrus"
)

// Load builds the library a host uses for cfg and returns it with the
// vertex shader name to compile. The returned release function releases
// a shader bundle, if one was opened.
func Load(cfg config.Configuration, logger log.FieldLogger) (lib *Library, vertexShader string, release func() error, err error) {
	vertexShader, compiler := Defaults(cfg.Renderer.Backend, cfg.Shader.Compiler)
	release = func() error { return nil }

	var source Source
	switch {
	case cfg.Shader.Bundle != "":
		ar, err := kar.OpenFile(cfg.Shader.Bundle)
		if err != nil {
			return nil, "", nil, fmt.Errorf("shader bundle %s: %w", cfg.Shader.Bundle, err)
		}
		source, release = Bundle(ar), ar.Close
	case cfg.Shader.Directory != "":
		source = Dir(cfg.Shader.Directory)
	default:
		source = Embedded()
	}
	return NewLibrary(source, compiler, logger), vertexShader, release, nil
}

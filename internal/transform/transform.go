// Package transform provides the compile, minify and optimize stages used
// by the asset pipelines.
package transform

import (
	"errors"
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/svg"
)

const (
	mimeCSS = "text/css"
	mimeSVG = "image/svg+xml"
)

// newMinifier returns a minifier with the CSS and SVG handlers registered.
func newMinifier() *minify.M {
	m := minify.New()
	m.AddFunc(mimeCSS, css.Minify)
	m.AddFunc(mimeSVG, svg.Minify)
	return m
}

// esbuildError converts esbuild diagnostics into a single error.
func esbuildError(msgs []api.Message) error {
	errs := make([]error, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Location != nil {
			errs = append(errs, fmt.Errorf("%d:%d: %s", msg.Location.Line, msg.Location.Column, msg.Text))
			continue
		}
		errs = append(errs, errors.New(msg.Text))
	}
	return errors.Join(errs...)
}

// smaller returns candidate if it is strictly shorter than original.
func smaller(original, candidate []byte) []byte {
	if len(candidate) < len(original) {
		return candidate
	}
	return original
}

var engineNames = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"safari":  api.EngineSafari,
	"ios":     api.EngineIOS,
	"opera":   api.EngineOpera,
	"ie":      api.EngineIE,
	"node":    api.EngineNode,
}

// ParseEngines converts browser targets such as "chrome120" or "safari16.4"
// into esbuild engines.
func ParseEngines(browsers []string) ([]api.Engine, error) {
	engines := make([]api.Engine, 0, len(browsers))
	for _, b := range browsers {
		b = strings.ToLower(strings.TrimSpace(b))
		i := strings.IndexFunc(b, func(r rune) bool { return r >= '0' && r <= '9' })
		if i <= 0 {
			return nil, fmt.Errorf("browser target %q has no version", b)
		}
		name, ok := engineNames[b[:i]]
		if !ok {
			return nil, fmt.Errorf("unknown browser %q", b[:i])
		}
		engines = append(engines, api.Engine{Name: name, Version: b[i:]})
	}
	return engines, nil
}

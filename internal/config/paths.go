package config

import (
	"fmt"
	"path"
	"strings"
)

// Paths maps logical roles to slash-separated paths relative to the project root.
// Distribution paths are never configured directly: they are derived from Src
// by replacing the SrcSegment path element with DistSegment.
type Paths struct {
	Src         string `mapstructure:"src" yaml:"src"`
	SrcSegment  string `mapstructure:"src_segment" yaml:"src_segment"`
	DistSegment string `mapstructure:"dist_segment" yaml:"dist_segment"`
	Scripts     string `mapstructure:"scripts" yaml:"scripts"`
	Styles      string `mapstructure:"styles" yaml:"styles"`
	Images      string `mapstructure:"images" yaml:"images"`
	// Vendor is the dependency-installation directory.
	Vendor string `mapstructure:"vendor" yaml:"vendor"`
}

// Validate checks that the source root contains the source segment exactly once.
func (p Paths) Validate() error {
	if p.Src == "" {
		return fmt.Errorf("paths.src is empty")
	}
	if p.SrcSegment == "" || p.DistSegment == "" {
		return fmt.Errorf("paths.src_segment and paths.dist_segment must be set")
	}
	if p.SrcSegment == p.DistSegment {
		return fmt.Errorf("paths.src_segment and paths.dist_segment are both %q", p.SrcSegment)
	}
	n := 0
	for _, elem := range strings.Split(path.Clean(p.Src), "/") {
		if elem == p.SrcSegment {
			n++
		}
	}
	if n != 1 {
		return fmt.Errorf("paths.src %q must contain the segment %q exactly once, found %d", p.Src, p.SrcSegment, n)
	}
	for name, sub := range map[string]string{"scripts": p.Scripts, "styles": p.Styles, "images": p.Images} {
		if sub == "" || path.IsAbs(sub) || strings.HasPrefix(path.Clean(sub), "..") {
			return fmt.Errorf("paths.%s %q must be a relative subdirectory", name, sub)
		}
	}
	return nil
}

// SrcRoot returns the cleaned source root.
func (p Paths) SrcRoot() string {
	return path.Clean(p.Src)
}

// Dist returns the distribution root derived from Src.
func (p Paths) Dist() string {
	return p.ToDist(p.SrcRoot())
}

// ToDist maps a source path to its distribution counterpart by substituting
// the source segment. Paths without the segment are returned cleaned but
// otherwise unchanged.
func (p Paths) ToDist(src string) string {
	elems := strings.Split(path.Clean(src), "/")
	for i, elem := range elems {
		if elem == p.SrcSegment {
			elems[i] = p.DistSegment
			break
		}
	}
	return strings.Join(elems, "/")
}

// SrcScripts returns the source scripts directory.
func (p Paths) SrcScripts() string { return path.Join(p.SrcRoot(), p.Scripts) }

// SrcStyles returns the source styles directory.
func (p Paths) SrcStyles() string { return path.Join(p.SrcRoot(), p.Styles) }

// SrcImages returns the source images directory.
func (p Paths) SrcImages() string { return path.Join(p.SrcRoot(), p.Images) }

// DistScripts returns the distribution scripts directory.
func (p Paths) DistScripts() string { return p.ToDist(p.SrcScripts()) }

// DistStyles returns the distribution styles directory.
func (p Paths) DistStyles() string { return p.ToDist(p.SrcStyles()) }

// DistImages returns the distribution images directory.
func (p Paths) DistImages() string { return p.ToDist(p.SrcImages()) }

// Package sifter implements discovery and execution of sifter scripts.
//
// A sifter is an external executable that performs one analysis task
// against a course and emits an artifact on stdout: the first line is the
// filename, everything after it is the file content. ie:
//
//	student_report_20140207.csv
//	name,datum
//	johnsmith,things
//
// The script is passed the virtualenv path, platform root path, the
// course id, and any extra arguments supplied by the caller.
package sifter

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// Sifter is one discovered executable in the effective registry.
type Sifter struct {
	// Name is the executable filename, unique in the effective registry.
	Name string

	// Path is the absolute path to the executable.
	Path string

	// Layer names the discovery layer the entry was found in.
	Layer string
}

// Layer is one ordered sifter source directory.
type Layer struct {
	Name string
	Dir  string
}

// Registry discovers sifters across layered, overridable search locations.
//
// Layers are ordered lowest to highest precedence; a later layer providing
// the same name overwrites the earlier entry.
type Registry struct {
	layers []Layer
}

// EnvSifterPath is the environment variable naming an extra, highest
// precedence sifter directory.
const EnvSifterPath = "SIFTX_SIFTER_PATH"

// DefaultLayers returns the standard discovery order: the installed sifter
// directory, the current user's override folder, the working-directory
// override folder, and the environment-specified directory.
func DefaultLayers(installedDir string) []Layer {
	layers := []Layer{
		{Name: "installed", Dir: installedDir},
	}
	if home, err := os.UserHomeDir(); err == nil {
		layers = append(layers, Layer{Name: "home", Dir: filepath.Join(home, "sifters")})
	}
	if cwd, err := os.Getwd(); err == nil {
		layers = append(layers, Layer{Name: "cwd", Dir: filepath.Join(cwd, "sifters")})
	}
	if env := os.Getenv(EnvSifterPath); env != "" {
		layers = append(layers, Layer{Name: "env", Dir: env})
	}
	return layers
}

// NewRegistry creates a registry over the given ordered layers.
func NewRegistry(layers []Layer) *Registry {
	return &Registry{layers: layers}
}

// Layers returns the configured discovery layers, lowest precedence first.
func (r *Registry) Layers() []Layer {
	out := make([]Layer, len(r.layers))
	copy(out, r.layers)
	return out
}

// List returns the effective name to sifter mapping. Missing or unreadable
// layers contribute nothing; an empty registry is an empty map, never an
// error.
func (r *Registry) List() map[string]Sifter {
	effective := make(map[string]Sifter)
	for _, layer := range r.layers {
		entries, err := os.ReadDir(layer.Dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if !isExecutable(info.Mode()) {
				continue
			}
			name := entry.Name()
			effective[name] = Sifter{
				Name:  name,
				Path:  filepath.Join(layer.Dir, name),
				Layer: layer.Name,
			}
		}
	}
	return effective
}

// Names returns the sorted names of the effective registry.
func (r *Registry) Names() []string {
	list := r.List()
	names := make([]string, 0, len(list))
	for name := range list {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup resolves a single sifter by name.
func (r *Registry) Lookup(name string) (Sifter, error) {
	s, ok := r.List()[name]
	if !ok {
		return Sifter{}, &NotFoundError{Name: name}
	}
	return s, nil
}

func isExecutable(mode fs.FileMode) bool {
	return mode.IsRegular() && mode.Perm()&0o111 != 0
}

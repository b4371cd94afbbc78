// Maps dataset names to their backing files.

// Package dataset holds the fixed allow-list of datasets accepted by the server.
package dataset

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
)

// ErrNotAllowed is returned when a dataset name is not in the allow-list.
var ErrNotAllowed = errors.New("dataset not allowed")

// files is the fixed allow-list. Keys are matched exactly.
var files = map[string]string{
	"acoes":         "acoes.json",
	"acoes_pessoas": "acoes_pessoas.json",
	"acoes_imoveis": "acoes_imoveis.json",
	"compras":       "compras.json",
	"lancamentos":   "lancamentos.json",
	"receitas":      "receitas.json",
	"viagem":        "viagem.json",
}

// Registry resolves dataset names to file paths under a data directory.
type Registry struct {
	dataDir string
}

// NewRegistry returns a Registry rooted at dataDir.
func NewRegistry(dataDir string) *Registry {
	return &Registry{dataDir: dataDir}
}

// DataDir returns the directory holding the dataset files.
func (r *Registry) DataDir() string {
	return r.dataDir
}

// Resolve returns the backing file path for name.
//
// The lookup is an exact match; unknown names return an error wrapping
// ErrNotAllowed.
func (r *Registry) Resolve(name string) (string, error) {
	f, ok := files[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNotAllowed, name)
	}
	return filepath.Join(r.dataDir, f), nil
}

// Names returns the allowed dataset names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(files))
	for k := range files {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

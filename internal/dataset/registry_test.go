package dataset

import (
	"errors"
	"path/filepath"
	"slices"
	"testing"
)

func TestRegistry_Resolve(t *testing.T) {
	r := NewRegistry("/data")
	for _, name := range r.Names() {
		t.Run(name, func(t *testing.T) {
			p, err := r.Resolve(name)
			if err != nil {
				t.Fatalf("Resolve(%q) error = %v", name, err)
			}
			if want := filepath.Join("/data", name+".json"); p != want {
				t.Errorf("Resolve(%q) = %q, want %q", name, p, want)
			}
		})
	}
}

func TestRegistry_ResolveNotAllowed(t *testing.T) {
	r := NewRegistry("/data")
	tests := []string{
		"",
		"bogus",
		"Compras",
		"compras ",
		" compras",
		"compras.json",
		"../compras",
		"compras/",
		"acoes_",
		"receita",
	}
	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			p, err := r.Resolve(name)
			if !errors.Is(err, ErrNotAllowed) {
				t.Fatalf("Resolve(%q) error = %v, want ErrNotAllowed", name, err)
			}
			if p != "" {
				t.Errorf("Resolve(%q) path = %q, want empty", name, p)
			}
		})
	}
}

func TestRegistry_Names(t *testing.T) {
	want := []string{"acoes", "acoes_imoveis", "acoes_pessoas", "compras", "lancamentos", "receitas", "viagem"}
	got := NewRegistry("x").Names()
	if !slices.Equal(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

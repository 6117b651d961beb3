// Package store implements the content-addressed pipeline store:
// compiled DAG images keyed by their structural hash, with mutable
// human-readable name aliases resolving to a hash. Stored images are
// immutable; an alias rebind is the only write that replaces anything
//.
package store

import (
	"fmt"
	"sync"

	"github.com/flowrun/flowrun/internal/dagc"
	"github.com/flowrun/flowrun/internal/errors"
)

// Image is one stored compilation artifact: the executable DAG plus the
// source it was compiled from, kept for diagnostics and tooling.
type Image struct {
	DAG    *dagc.DAG
	Name   string
	Source string
}

// Hash returns the image's content address.
func (img *Image) Hash() string { return img.DAG.Hash }

// Store is an in-memory content-addressed image table. It is an
// explicitly owned value: construct one per embedding runtime, never a
// global.
type Store struct {
	mu      sync.RWMutex
	images  map[string]*Image // structural hash -> image
	aliases map[string]string // name -> structural hash
}

// New creates an empty store.
func New() *Store {
	return &Store{images: map[string]*Image{}, aliases: map[string]string{}}
}

// Put inserts an image if its hash is not already present and returns
// the hash. Re-storing an identical image is a no-op returning the same
// hash: content addressing makes the first and second copy
// indistinguishable.
func (s *Store) Put(img *Image) string {
	h := img.Hash()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.images[h]; !ok {
		s.images[h] = img
	}
	return h
}

// Alias binds name to an already-stored hash; rebinding an existing name
// replaces the previous binding. An unknown hash fails so a name can
// never dangle.
func (s *Store) Alias(name, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.images[hash]; !ok {
		return errors.Wrap(errors.New(errors.STO001, "store", fmt.Sprintf("no image with hash %s", hash), nil))
	}
	s.aliases[name] = hash
	return nil
}

// Get resolves ref — an alias name or a structural hash — to its image.
func (s *Store) Get(ref string) (*Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if h, ok := s.aliases[ref]; ok {
		ref = h
	}
	if img, ok := s.images[ref]; ok {
		return img, nil
	}
	return nil, errors.Wrap(errors.New(errors.STO001, "store", fmt.Sprintf("no pipeline %q", ref), nil))
}

// Hashes returns every stored hash, for tooling.
func (s *Store) Hashes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.images))
	for h := range s.images {
		out = append(out, h)
	}
	return out
}

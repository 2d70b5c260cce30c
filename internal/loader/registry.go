package loader

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds named images.
type Registry struct {
	mu     sync.RWMutex
	images map[string]*Image
}

func NewRegistry() *Registry {
	return &Registry{images: make(map[string]*Image)}
}

// Register validates img and adds it. Names must be unique.
func (r *Registry) Register(img *Image) error {
	if err := Validate(img); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.images[img.Name]; ok {
		return fmt.Errorf("image %q already registered", img.Name)
	}
	r.images[img.Name] = img
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(img *Image) {
	if err := r.Register(img); err != nil {
		panic(err)
	}
}

// Lookup returns the image named name.
func (r *Registry) Lookup(name string) (*Image, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	img, ok := r.images[name]
	return img, ok
}

// Resolve looks up every name in order.
func (r *Registry) Resolve(names []string) ([]*Image, error) {
	out := make([]*Image, 0, len(names))
	for _, n := range names {
		img, ok := r.Lookup(n)
		if !ok {
			return nil, fmt.Errorf("unknown app %q", n)
		}
		out = append(out, img)
	}
	return out, nil
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.images))
	for n := range r.images {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

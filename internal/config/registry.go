package config

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/MrWong99/transvox/pkg/analyzer"
	"github.com/MrWong99/transvox/pkg/staging"
	"github.com/MrWong99/transvox/pkg/translate"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	staging     map[string]func(ProviderEntry) (staging.Store, error)
	translation map[string]func(ProviderEntry) (translate.Provider, error)
	decoder     map[string]func(ProviderEntry) (analyzer.Decoder, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		staging:     make(map[string]func(ProviderEntry) (staging.Store, error)),
		translation: make(map[string]func(ProviderEntry) (translate.Provider, error)),
		decoder:     make(map[string]func(ProviderEntry) (analyzer.Decoder, error)),
	}
}

// RegisterStaging registers a staging store factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterStaging(name string, factory func(ProviderEntry) (staging.Store, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.staging[name] = factory
}

// RegisterTranslation registers a translation provider factory under name.
func (r *Registry) RegisterTranslation(name string, factory func(ProviderEntry) (translate.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.translation[name] = factory
}

// RegisterDecoder registers an analyzer decoder factory under name.
func (r *Registry) RegisterDecoder(name string, factory func(ProviderEntry) (analyzer.Decoder, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoder[name] = factory
}

// CreateStaging instantiates a staging store using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateStaging(entry ProviderEntry) (staging.Store, error) {
	r.mu.RLock()
	factory, ok := r.staging[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: staging/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateTranslation instantiates a translation provider using the factory registered under entry.Name.
func (r *Registry) CreateTranslation(entry ProviderEntry) (translate.Provider, error) {
	r.mu.RLock()
	factory, ok := r.translation[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: translation/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateDecoder instantiates an analyzer decoder using the factory registered under entry.Name.
func (r *Registry) CreateDecoder(entry ProviderEntry) (analyzer.Decoder, error) {
	r.mu.RLock()
	factory, ok := r.decoder[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: decoder/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// Names returns the sorted registered names for kind ("staging",
// "translation" or "decoder"). Used for startup logging.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	switch kind {
	case "staging":
		for n := range r.staging {
			names = append(names, n)
		}
	case "translation":
		for n := range r.translation {
			names = append(names, n)
		}
	case "decoder":
		for n := range r.decoder {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

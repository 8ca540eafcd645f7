package kinematic

import (
	"fmt"
	"os"
	"sync"
)

// Params maps description parameter names (for example "robot_description")
// to raw robot description documents.
type Params struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewParams returns an empty parameter registry.
func NewParams() *Params {
	return &Params{docs: make(map[string][]byte)}
}

// Set stores a description document under name.
func (p *Params) Set(name string, doc []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.docs[name] = append([]byte(nil), doc...)
}

// Get returns the document stored under name.
func (p *Params) Get(name string) ([]byte, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	doc, ok := p.docs[name]
	return doc, ok
}

// LoadFile reads a description file and stores it under name.
func (p *Params) LoadFile(name, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read robot description %s: %w", path, err)
	}
	if _, err := Parse(data); err != nil {
		return fmt.Errorf("robot description %s: %w", path, err)
	}
	p.Set(name, data)
	return nil
}

// LoadModel parses the description stored under name.
func (p *Params) LoadModel(name string) (*Model, error) {
	doc, ok := p.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: parameter %q", ErrNoDescription, name)
	}
	return Parse(doc)
}

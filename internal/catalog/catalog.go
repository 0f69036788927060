// Package catalog resolves parameter reference data: display metadata,
// charting options and specification limits per product.
package catalog

import (
	"fmt"
	"slices"
	"sync"

	"spcguard/internal/config"
	"spcguard/internal/model"
)

type Entry struct {
	Parameter    model.Parameter
	SubgroupSize int
	NonNegative  bool
	Spec         model.SpecLimits
	ProductSpecs map[string]model.SpecLimits
}

type Catalog struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func New(params []config.ParameterConfig) *Catalog {
	c := &Catalog{}
	c.Load(params)
	return c
}

func (c *Catalog) Load(params []config.ParameterConfig) {
	entries := make(map[string]Entry, len(params))
	for _, p := range params {
		name := p.Name
		if name == "" {
			name = p.ID
		}
		entries[p.ID] = Entry{
			Parameter:    model.Parameter{ID: p.ID, Name: name, Unit: p.Unit},
			SubgroupSize: p.SubgroupSize,
			NonNegative:  p.NonNegative,
			Spec:         p.Spec,
			ProductSpecs: p.ProductSpecs,
		}
	}
	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
}

func (c *Catalog) Lookup(id string) (Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", model.ErrParameterNotFound, id)
	}
	return e, nil
}

// SpecLimits returns the limits for a product, falling back to the parameter
// defaults when the product has none of its own.
func (c *Catalog) SpecLimits(id, productID string) (model.SpecLimits, error) {
	e, err := c.Lookup(id)
	if err != nil {
		return model.SpecLimits{}, err
	}
	if productID != "" {
		if spec, ok := e.ProductSpecs[productID]; ok {
			return spec, nil
		}
	}
	return e.Spec, nil
}

func (c *Catalog) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.entries))
	for id := range c.entries {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package component

import (
	"fmt"
	"sync"
)

// Registry holds the components available for one stage, in registration
// order.
//
// Thread Safety:
//
//	Safe for concurrent use. Registration normally happens from init().
type Registry struct {
	stage Stage

	mu    sync.RWMutex
	order []ID
	byID  map[ID]Descriptor
}

// NewRegistry creates an empty registry for stage.
func NewRegistry(stage Stage) *Registry {
	return &Registry{stage: stage, byID: make(map[ID]Descriptor)}
}

// Stage returns the stage the registry serves.
func (r *Registry) Stage() Stage { return r.stage }

// Register adds a descriptor.
//
// Outputs:
//
//	error - ErrInvalidDescriptor for a malformed or wrong-stage descriptor,
//	        ErrDuplicateComponent if the ID is taken.
func (r *Registry) Register(d Descriptor) error {
	if err := d.validate(); err != nil {
		return err
	}
	if d.Stage != r.stage {
		return fmt.Errorf("%w: %s belongs to stage %s, not %s", ErrInvalidDescriptor, d.ID, d.Stage, r.stage)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[d.ID]; exists {
		return fmt.Errorf("%w: %s/%s", ErrDuplicateComponent, r.stage, d.ID)
	}
	r.byID[d.ID] = d
	r.order = append(r.order, d.ID)
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(ds ...Descriptor) {
	for _, d := range ds {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
}

// Lookup returns the descriptor for id.
func (r *Registry) Lookup(id ID) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[id]
	return d, ok
}

// All returns every descriptor in registration order.
func (r *Registry) All() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, len(r.order))
	for i, id := range r.order {
		out[i] = r.byID[id]
	}
	return out
}

// IDs returns registered IDs in registration order.
func (r *Registry) IDs() []ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]ID(nil), r.order...)
}

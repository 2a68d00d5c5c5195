package role

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
)

// Registry caches roles by slug.
type Registry struct {
	mu    sync.RWMutex
	roles map[string]*Role
}

func NewRegistry() *Registry {
	return &Registry{roles: make(map[string]*Role)}
}

// Get returns the role with the given slug, or nil.
func (r *Registry) Get(slug string) *Role {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.roles[slug]
}

// All returns the cached roles ordered by slug.
func (r *Registry) All() []*Role {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roles := make([]*Role, 0, len(r.roles))
	for _, role := range r.roles {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Slug < roles[j].Slug })
	return roles
}

// Load replaces every cached role.
func (r *Registry) Load(roles []*Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roles = make(map[string]*Role, len(roles))
	for _, role := range roles {
		r.roles[role.Slug] = role
	}
}

// LoadAll reads every role from the store into the registry.
func LoadAll(ctx context.Context, st *Store, reg *Registry) error {
	roles, err := st.List(ctx)
	if err != nil {
		return fmt.Errorf("load roles: %w", err)
	}
	reg.Load(roles)
	log.Printf("Loaded %d roles into registry", len(roles))
	return nil
}

// Reload is called after role mutations.
func Reload(ctx context.Context, st *Store, reg *Registry) error {
	return LoadAll(ctx, st, reg)
}

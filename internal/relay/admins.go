package relay

import (
	"errors"
	"sort"
	"sync"
)

// ErrLastAdmin is returned when a removal would leave the registry empty.
var ErrLastAdmin = errors.New("cannot remove the last admin")

// AdminRegistry is the live set of identities with operator privileges.
// The set is never allowed to become empty once seeded.
type AdminRegistry struct {
	mu  sync.RWMutex
	ids map[int64]struct{}
}

// NewAdminRegistry seeds the registry. Non-positive ids are ignored.
func NewAdminRegistry(seed []int64) *AdminRegistry {
	r := &AdminRegistry{ids: map[int64]struct{}{}}
	for _, id := range seed {
		if id > 0 {
			r.ids[id] = struct{}{}
		}
	}
	return r
}

func (r *AdminRegistry) IsAdmin(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ids[id]
	return ok
}

// Add grants admin rights. Returns false when the id was already present.
func (r *AdminRegistry) Add(id int64) bool {
	if id <= 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[id]; ok {
		return false
	}
	r.ids[id] = struct{}{}
	return true
}

// Remove revokes admin rights. Removing an unknown id is a no-op; removing
// the only remaining admin fails with ErrLastAdmin.
func (r *AdminRegistry) Remove(id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[id]; !ok {
		return false, nil
	}
	if len(r.ids) == 1 {
		return false, ErrLastAdmin
	}
	delete(r.ids, id)
	return true, nil
}

// List returns the admin ids sorted ascending, as a fresh slice.
func (r *AdminRegistry) List() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int64, 0, len(r.ids))
	for id := range r.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *AdminRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ids)
}

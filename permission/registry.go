package permission

import (
	"errors"
	"sort"
	"sync"
)

var (
	ErrRegistryFrozen    = errors.New("permission registry frozen")
	ErrEmptyName         = errors.New("permission name cannot be empty")
	ErrAlreadyRegistered = errors.New("permission already registered")
	ErrCapacityExceeded  = errors.New("permission limit exceeded (root bit reserved)")
	ErrUnknownPermission = errors.New("permission not registered")
)

// Registry maps capability names to bit positions in a [Mask]. Bit 63 is kept
// for [RootBit] and is never handed out.
type Registry struct {
	mu        sync.RWMutex
	nameToBit map[string]int
	bitToName map[int]string
	frozen    bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		nameToBit: make(map[string]int),
		bitToName: make(map[int]string),
	}
}

// Register assigns the next free bit to name.
func (r *Registry) Register(name string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return -1, ErrRegistryFrozen
	}
	if name == "" {
		return -1, ErrEmptyName
	}
	if _, exists := r.nameToBit[name]; exists {
		return -1, ErrAlreadyRegistered
	}

	next := len(r.nameToBit)
	if next >= RootBit {
		return -1, ErrCapacityExceeded
	}

	r.nameToBit[name] = next
	r.bitToName[next] = name
	return next, nil
}

// MustRegister is Register for package-level tables; it panics on error.
func (r *Registry) MustRegister(name string) int {
	bit, err := r.Register(name)
	if err != nil {
		panic("permission: " + name + ": " + err.Error())
	}
	return bit
}

// Bit returns the bit index for name.
func (r *Registry) Bit(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bit, ok := r.nameToBit[name]
	return bit, ok
}

// Compose builds a mask from capability names. Unknown names are an error so a
// typo in a role table fails loudly at startup.
func (r *Registry) Compose(names ...string) (Mask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var m Mask
	for _, name := range names {
		bit, ok := r.nameToBit[name]
		if !ok {
			return 0, errors.Join(ErrUnknownPermission, errors.New(name))
		}
		m = m.With(bit)
	}
	return m, nil
}

// Names lists the capability names set in m, sorted. The root bit is reported
// as "*".
func (r *Registry) Names(m Mask) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, m.Count())
	if m.IsRoot() {
		out = append(out, "*")
	}
	for bit, name := range r.bitToName {
		if m&(1<<uint(bit)) != 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Freeze prevents further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Count returns the number of registered capabilities.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nameToBit)
}

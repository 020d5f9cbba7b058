// Package shm provides named shared memory regions that several processes can
// map at once. A region is created or attached by name; local handles to the
// same name share one mapping which is released when the last handle closes.
// The process that created a region removes its name on final release.
package shm

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/tphakala/shmaudio/internal/errors"
)

// NamePrefix is prepended to generated region names.
const NamePrefix = "shmaudio-"

// mapping is one mmap of a region shared by all local handles with that name.
type mapping struct {
	name    string
	data    []byte
	created bool
	refs    int
}

var (
	registryMu sync.Mutex
	registry   = make(map[string]*mapping)
)

// Region is a handle to a mapped shared memory region.
type Region struct {
	m       *mapping
	created bool
	closed  atomic.Bool
}

// NewName returns a fresh region name.
func NewName() string {
	return NamePrefix + uuid.NewString()
}

// Create allocates a region of size bytes under name, or attaches to it when
// a region with that name already exists. An empty name generates one.
// Attaching with size 0 accepts whatever size the existing region has; a
// non-zero size must not exceed it.
func Create(name string, size int) (*Region, error) {
	if name == "" {
		name = NewName()
	}
	if err := validateName(name); err != nil {
		return nil, err
	}
	if size < 0 {
		return nil, allocationError(name, "create", fmt.Errorf("negative size %d", size))
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if m, ok := registry[name]; ok {
		if size > len(m.data) {
			return nil, allocationError(name, "attach",
				fmt.Errorf("region holds %d bytes, %d requested", len(m.data), size))
		}
		m.refs++
		return &Region{m: m}, nil
	}

	if size == 0 {
		data, err := attachRegion(name)
		if err != nil {
			return nil, allocationError(name, "attach", err)
		}
		return register(name, data, false), nil
	}

	data, created, err := mapRegion(name, size)
	if err != nil {
		return nil, allocationError(name, "create", err)
	}
	return register(name, data, created), nil
}

// Open attaches to an existing region without creating one.
func Open(name string) (*Region, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if m, ok := registry[name]; ok {
		m.refs++
		return &Region{m: m}, nil
	}
	data, err := attachRegion(name)
	if err != nil {
		return nil, allocationError(name, "attach", err)
	}
	return register(name, data, false), nil
}

// register records a new mapping. Callers hold registryMu.
func register(name string, data []byte, created bool) *Region {
	m := &mapping{name: name, data: data, created: created, refs: 1}
	registry[name] = m
	return &Region{m: m, created: created}
}

// Name returns the region name other processes attach with.
func (r *Region) Name() string { return r.m.name }

// Bytes returns the mapped memory. It must not be used after Close.
func (r *Region) Bytes() []byte { return r.m.data }

// Size returns the mapped size in bytes.
func (r *Region) Size() int { return len(r.m.data) }

// Created reports whether the call that returned this handle allocated the
// region. Later handles to the same mapping report false.
func (r *Region) Created() bool { return r.created }

// Close releases this handle. The mapping is unmapped when the last local
// handle closes and the name is removed if this process created it. Close is
// idempotent.
func (r *Region) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	m := r.m
	m.refs--
	if m.refs > 0 {
		return nil
	}
	delete(registry, m.name)

	var errs []error
	if err := unmapRegion(m.data); err != nil {
		errs = append(errs, err)
	}
	m.data = nil
	if m.created {
		if err := removeRegion(m.name); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return errors.New(err).
			Component("shm").
			Category(errors.CategorySystem).
			Context("region", m.name).
			Context("operation", "release").
			Build()
	}
	return nil
}

// Unlink removes a region name regardless of which process created it.
// Existing mappings stay valid until they are closed.
func Unlink(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	return removeRegion(name)
}

// handles returns the number of open local handles for name.
func handles(name string) int {
	registryMu.Lock()
	defer registryMu.Unlock()
	if m, ok := registry[name]; ok {
		return m.refs
	}
	return 0
}

func validateName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return errors.New(nil).
			Component("shm").
			Category(errors.CategoryAllocation).
			Context("region", name).
			Context("error", "invalid region name").
			Build()
	}
	return nil
}

func allocationError(name, op string, err error) error {
	return errors.New(err).
		Component("shm").
		Category(errors.CategoryAllocation).
		Context("region", name).
		Context("operation", op).
		Build()
}
